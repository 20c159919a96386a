// Package tenants lets the operator pick, create or leave the tenant the
// console acts for.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/theme"
)

// Directory is the slice of the API this view uses.
type Directory interface {
	Tenants(ctx context.Context) ([]api.Tenant, error)
	CreateTenant(ctx context.Context, in api.TenantInput) (*api.Tenant, error)
}

// SelectedMsg asks the root model to switch to Tenant.
type SelectedMsg struct{ Tenant api.Tenant }

// LogoutMsg asks the root model to forget the current tenant.
type LogoutMsg struct{}

type loadedMsg struct {
	list []api.Tenant
	err  error
}

type createdMsg struct {
	tenant *api.Tenant
	err    error
}

const (
	fieldName = iota
	fieldWebhook
	fieldGroups
	fieldReconnect
	fieldCount
)

var keys = struct {
	Up, Down, Select, New, Logout, Refresh, Next, Prev, Toggle, Cancel key.Binding
}{
	Up:      key.NewBinding(key.WithKeys("k", "up")),
	Down:    key.NewBinding(key.WithKeys("j", "down")),
	Select:  key.NewBinding(key.WithKeys("enter")),
	New:     key.NewBinding(key.WithKeys("n")),
	Logout:  key.NewBinding(key.WithKeys("L")),
	Refresh: key.NewBinding(key.WithKeys("r")),
	Next:    key.NewBinding(key.WithKeys("tab", "down")),
	Prev:    key.NewBinding(key.WithKeys("shift+tab", "up")),
	Toggle:  key.NewBinding(key.WithKeys(" ")),
	Cancel:  key.NewBinding(key.WithKeys("esc")),
}

type Model struct {
	dir Directory
	ctx context.Context

	list    []api.Tenant
	cursor  int
	current *api.Tenant
	loading bool

	creating  bool
	field     int
	name      textinput.Model
	webhook   textinput.Model
	groups    bool
	reconnect bool

	Err string
}

func New(ctx context.Context, d Directory) Model {
	name := textinput.New()
	name.Placeholder = "Minha empresa"
	name.Prompt = "name:    "
	name.CharLimit = 80
	hook := textinput.New()
	hook.Placeholder = "https://example.com/webhook (optional)"
	hook.Prompt = "webhook: "
	return Model{dir: d, ctx: ctx, name: name, webhook: hook}
}

func (m Model) Init() tea.Cmd { return m.load() }

// SetCurrent marks the tenant the console is acting for.
func (m *Model) SetCurrent(t *api.Tenant) { m.current = t }

func (m Model) Capturing() bool { return m.creating }

func (m Model) load() tea.Cmd {
	d, ctx := m.dir, m.ctx
	return func() tea.Msg {
		list, err := d.Tenants(ctx)
		return loadedMsg{list: list, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.Err = msg.err.Error()
			return m, nil
		}
		m.Err = ""
		m.list = msg.list
		if m.cursor >= len(m.list) {
			m.cursor = max(len(m.list)-1, 0)
		}
		return m, nil

	case createdMsg:
		if msg.err != nil {
			m.Err = "create tenant: " + msg.err.Error()
			return m, nil
		}
		m.creating = false
		m.resetForm()
		t := *msg.tenant
		m.list = append(m.list, t)
		m.cursor = len(m.list) - 1
		return m, func() tea.Msg { return SelectedMsg{Tenant: t} }

	case tea.KeyMsg:
		if m.creating {
			return m.updateForm(msg)
		}
		switch {
		case key.Matches(msg, keys.Down):
			if len(m.list) > 0 {
				m.cursor = (m.cursor + 1) % len(m.list)
			}
		case key.Matches(msg, keys.Up):
			if len(m.list) > 0 {
				m.cursor = (m.cursor - 1 + len(m.list)) % len(m.list)
			}
		case key.Matches(msg, keys.Select):
			if m.cursor < len(m.list) {
				t := m.list[m.cursor]
				if t.APIKey == "" {
					m.Err = "this tenant has no API key"
					return m, nil
				}
				return m, func() tea.Msg { return SelectedMsg{Tenant: t} }
			}
		case key.Matches(msg, keys.New):
			m.creating = true
			m.field = fieldName
			m.groups, m.reconnect = true, true
			m.Err = ""
			cmd := m.name.Focus()
			return m, cmd
		case key.Matches(msg, keys.Logout):
			if m.current != nil {
				return m, func() tea.Msg { return LogoutMsg{} }
			}
		case key.Matches(msg, keys.Refresh):
			m.loading = true
			return m, m.load()
		}
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.creating = false
		m.resetForm()
		return m, nil
	case key.Matches(msg, keys.Next):
		return m.focus((m.field + 1) % fieldCount)
	case key.Matches(msg, keys.Prev):
		return m.focus((m.field - 1 + fieldCount) % fieldCount)
	case key.Matches(msg, keys.Toggle) && m.field == fieldGroups:
		m.groups = !m.groups
		return m, nil
	case key.Matches(msg, keys.Toggle) && m.field == fieldReconnect:
		m.reconnect = !m.reconnect
		return m, nil
	case key.Matches(msg, keys.Select):
		in, err := m.input()
		if err != nil {
			m.Err = err.Error()
			return m, nil
		}
		d, ctx := m.dir, m.ctx
		return m, func() tea.Msg {
			t, err := d.CreateTenant(ctx, in)
			return createdMsg{tenant: t, err: err}
		}
	}

	var cmd tea.Cmd
	switch m.field {
	case fieldName:
		m.name, cmd = m.name.Update(msg)
	case fieldWebhook:
		m.webhook, cmd = m.webhook.Update(msg)
	}
	return m, cmd
}

func (m Model) focus(field int) (Model, tea.Cmd) {
	m.field = field
	m.name.Blur()
	m.webhook.Blur()
	var cmd tea.Cmd
	switch field {
	case fieldName:
		cmd = m.name.Focus()
	case fieldWebhook:
		cmd = m.webhook.Focus()
	}
	return m, cmd
}

func (m Model) input() (api.TenantInput, error) {
	in := api.TenantInput{
		Name:                 strings.TrimSpace(m.name.Value()),
		WebhookURL:           strings.TrimSpace(m.webhook.Value()),
		ReceiveGroupMessages: m.groups,
		AutoReconnect:        m.reconnect,
	}
	if in.Name == "" {
		return in, errors.New("name is required")
	}
	if in.WebhookURL != "" {
		if err := api.ValidateWebhookURL(in.WebhookURL); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (m *Model) resetForm() {
	m.name.Reset()
	m.webhook.Reset()
	m.name.Blur()
	m.webhook.Blur()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render("Tenants"))
	if m.current != nil {
		b.WriteString(theme.StyleDimmed.Render("  acting as ") + theme.StyleSelected.Render(m.current.Name))
	}
	b.WriteString("\n\n")

	if m.creating {
		b.WriteString(m.viewForm())
	} else {
		if len(m.list) == 0 {
			b.WriteString(theme.StyleDimmed.Render("  No tenants found. Press n to create one.") + "\n")
		}
		for i, t := range m.list {
			prefix := "  "
			if i == m.cursor {
				prefix = "> "
			}
			name := t.Name
			if m.current != nil && m.current.ID == t.ID {
				name = theme.StyleSelected.Render(name + " ✓")
			}
			line := fmt.Sprintf("%s%s %s", prefix, name, theme.StyleDimmed.Render(t.ID))
			if t.CreatedAt != nil {
				line += theme.StyleDimmed.Render("  created " + t.CreatedAt.Local().Format("02/01/2006"))
			}
			b.WriteString(line + "\n")
		}
	}

	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render("✗ "+m.Err) + "\n")
	}
	if !m.creating {
		help := "j/k:select  enter:use tenant  n:new  r:reload"
		if m.current != nil {
			help += "  L:logout"
		}
		b.WriteString("\n" + theme.StyleDimmed.Render(help))
	}
	return b.String()
}

func (m Model) viewForm() string {
	check := func(on bool) string {
		if on {
			return "[x]"
		}
		return "[ ]"
	}
	mark := func(f int) string {
		if m.field == f {
			return "> "
		}
		return "  "
	}
	lines := []string{
		theme.StyleHeader.Render("New tenant"),
		mark(fieldName) + m.name.View(),
		mark(fieldWebhook) + m.webhook.View(),
		mark(fieldGroups) + check(m.groups) + " receive group messages",
		mark(fieldReconnect) + check(m.reconnect) + " reconnect automatically",
		"",
		theme.StyleDimmed.Render("tab:next field  space:toggle  enter:create  esc:cancel"),
	}
	return strings.Join(lines, "\n") + "\n"
}
