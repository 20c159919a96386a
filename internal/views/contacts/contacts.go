// Package contacts lists, searches and blocks contacts.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/theme"
)

const searchLimit = 50

var groupFilters = []string{"all", "contacts", "groups"}

// Directory is the slice of the API this view uses.
type Directory interface {
	Contacts(ctx context.Context, f api.ContactFilter) ([]api.Contact, error)
	SearchContacts(ctx context.Context, query string, limit int) ([]api.Contact, error)
	BlockContact(ctx context.Context, whatsappID string) error
	UnblockContact(ctx context.Context, whatsappID string) error
}

type loadedMsg struct {
	list []api.Contact
	err  error
}

type blockedMsg struct {
	id      string
	blocked bool
	err     error
}

var keys = struct {
	Up, Down, Search, Group, Block, Refresh, Submit, Cancel key.Binding
}{
	Up:      key.NewBinding(key.WithKeys("k", "up")),
	Down:    key.NewBinding(key.WithKeys("j", "down")),
	Search:  key.NewBinding(key.WithKeys("/")),
	Group:   key.NewBinding(key.WithKeys("g")),
	Block:   key.NewBinding(key.WithKeys("b")),
	Refresh: key.NewBinding(key.WithKeys("r")),
	Submit:  key.NewBinding(key.WithKeys("enter")),
	Cancel:  key.NewBinding(key.WithKeys("esc")),
}

type Model struct {
	api Directory
	ctx context.Context

	list      []api.Contact
	cursor    int
	group     int
	query     string
	searching bool
	input     textinput.Model
	loading   bool
	loaded    bool

	Notice string
	Err    string
}

func New(ctx context.Context, d Directory) Model {
	in := textinput.New()
	in.Prompt = "search: "
	in.Placeholder = "name or number"
	return Model{api: d, ctx: ctx, input: in}
}

// Load fetches the list the first time the view is shown.
func (m *Model) Load() tea.Cmd {
	if m.loaded {
		return nil
	}
	m.loaded = true
	m.loading = true
	return m.load()
}

// Reset forgets cached contacts, e.g. after a tenant switch.
func (m *Model) Reset() {
	m.list, m.cursor, m.loaded, m.query = nil, 0, false, ""
}

func (m Model) Capturing() bool { return m.searching }

func (m Model) Filter() api.ContactFilter {
	f := api.ContactFilter{Search: m.query}
	switch groupFilters[m.group] {
	case "contacts":
		no := false
		f.IsGroup = &no
	case "groups":
		yes := true
		f.IsGroup = &yes
	}
	return f
}

func (m Model) load() tea.Cmd {
	d, ctx, f := m.api, m.ctx, m.Filter()
	return func() tea.Msg {
		list, err := d.Contacts(ctx, f)
		return loadedMsg{list: list, err: err}
	}
}

func (m Model) search(q string) tea.Cmd {
	d, ctx := m.api, m.ctx
	return func() tea.Msg {
		list, err := d.SearchContacts(ctx, q, searchLimit)
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

	case blockedMsg:
		if msg.err != nil {
			m.Err = msg.err.Error()
			return m, nil
		}
		for i := range m.list {
			if m.list[i].WhatsappID == msg.id {
				m.list[i].IsBlocked = msg.blocked
			}
		}
		if msg.blocked {
			m.Notice = "Blocked " + api.DisplayPhone(msg.id)
		} else {
			m.Notice = "Unblocked " + api.DisplayPhone(msg.id)
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			switch {
			case key.Matches(msg, keys.Cancel):
				m.searching = false
				m.input.Blur()
				return m, nil
			case key.Matches(msg, keys.Submit):
				m.searching = false
				m.input.Blur()
				m.query = strings.TrimSpace(m.input.Value())
				m.loading = true
				if m.query == "" {
					return m, m.load()
				}
				return m, m.search(m.query)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
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
		case key.Matches(msg, keys.Search):
			m.searching = true
			cmd := m.input.Focus()
			return m, cmd
		case key.Matches(msg, keys.Group):
			m.group = (m.group + 1) % len(groupFilters)
			m.loading = true
			return m, m.load()
		case key.Matches(msg, keys.Refresh):
			m.loading = true
			return m, m.load()
		case key.Matches(msg, keys.Block):
			if m.cursor >= len(m.list) {
				return m, nil
			}
			c := m.list[m.cursor]
			d, ctx := m.api, m.ctx
			return m, func() tea.Msg {
				if c.IsBlocked {
					return blockedMsg{id: c.WhatsappID, blocked: false, err: d.UnblockContact(ctx, c.WhatsappID)}
				}
				return blockedMsg{id: c.WhatsappID, blocked: true, err: d.BlockContact(ctx, c.WhatsappID)}
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render(fmt.Sprintf("Contacts (%d)", len(m.list))))
	b.WriteString(theme.StyleDimmed.Render("  showing:" + groupFilters[m.group]))
	if m.query != "" {
		b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("  search:%q", m.query)))
	}
	if m.loading {
		b.WriteString(theme.StyleDimmed.Render("  loading…"))
	}
	b.WriteString("\n\n")

	if m.searching {
		b.WriteString(m.input.View() + "\n\n")
	}
	if len(m.list) == 0 && !m.loading {
		b.WriteString(theme.StyleDimmed.Render("  No contacts found.") + "\n")
	}
	for i, c := range m.list {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		name := c.Name
		if name == "" {
			name = api.DisplayPhone(c.WhatsappID)
		}
		line := fmt.Sprintf("%s%-24s %s", prefix, name, theme.StyleDimmed.Render(api.DisplayPhone(c.WhatsappID)))
		if c.IsGroup {
			line += " " + theme.StyleDimmed.Render("[group]")
		}
		if c.IsBlocked {
			line += " " + theme.StyleError.Render("[blocked]")
		}
		line += theme.StyleDimmed.Render(fmt.Sprintf("  ↑%d ↓%d", c.MessagesSent, c.MessagesReceived))
		b.WriteString(line + "\n")
	}

	if m.Notice != "" {
		b.WriteString("\n" + theme.StyleOK.Render(m.Notice) + "\n")
	}
	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render("✗ "+m.Err) + "\n")
	}
	b.WriteString("\n" + theme.StyleDimmed.Render("j/k:select  /:search  g:groups filter  b:block/unblock  r:refresh"))
	return b.String()
}
