// Package webhooks edits the tenant's webhook subscription, shows delivery
// logs and mirrors what the local relay has received.
package webhooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/push"
	"github.com/marcostaira/app-whatsapp/internal/theme"
)

const (
	logLimit  = 10
	feedLimit = 8
)

// Hooks is the slice of the API this view uses.
type Hooks interface {
	WebhookConfig(ctx context.Context, tenantID string) (*api.WebhookConfig, error)
	SaveWebhookConfig(ctx context.Context, tenantID string, cfg api.WebhookConfig) error
	TestWebhook(ctx context.Context, tenantID, webhookURL string) (*api.WebhookTestResult, error)
	WebhookLogs(ctx context.Context, tenantID string, limit int) ([]api.WebhookLog, error)
	ClearWebhookLogs(ctx context.Context, tenantID string) error
}

type configMsg struct {
	cfg *api.WebhookConfig
	err error
}

type logsMsg struct {
	logs []api.WebhookLog
	err  error
}

type resultMsg struct {
	op     string
	notice string
	err    error
	reload bool
}

var keys = struct {
	Up, Down, Toggle, Enabled, EditURL, Save, Test, Logs, ClearLogs, Submit, Cancel key.Binding
}{
	Up:        key.NewBinding(key.WithKeys("k", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down")),
	Toggle:    key.NewBinding(key.WithKeys(" ")),
	Enabled:   key.NewBinding(key.WithKeys("o")),
	EditURL:   key.NewBinding(key.WithKeys("u")),
	Save:      key.NewBinding(key.WithKeys("s")),
	Test:      key.NewBinding(key.WithKeys("T")),
	Logs:      key.NewBinding(key.WithKeys("l")),
	ClearLogs: key.NewBinding(key.WithKeys("C")),
	Submit:    key.NewBinding(key.WithKeys("enter")),
	Cancel:    key.NewBinding(key.WithKeys("esc")),
}

type Model struct {
	api      Hooks
	ctx      context.Context
	tenantID string

	cfg     api.WebhookConfig
	cursor  int
	editing bool
	url     textinput.Model
	logs    []api.WebhookLog
	feed    []push.Event
	busy    string

	Notice string
	Err    string
}

func New(ctx context.Context, h Hooks) Model {
	in := textinput.New()
	in.Prompt = "url: "
	in.Placeholder = "https://your-tunnel.example/webhook"
	return Model{
		api: h,
		ctx: ctx,
		url: in,
		cfg: api.WebhookConfig{EventTypes: api.DefaultWebhookEvents()},
	}
}

// SetTenant switches the tenant and reloads its configuration and logs.
func (m *Model) SetTenant(id string) tea.Cmd {
	if id == m.tenantID {
		return nil
	}
	m.tenantID = id
	m.cfg = api.WebhookConfig{EventTypes: api.DefaultWebhookEvents()}
	m.logs = nil
	if id == "" {
		return nil
	}
	return tea.Batch(m.loadConfig(), m.loadLogs())
}

// SetFeed replaces the relay events shown, newest first.
func (m *Model) SetFeed(events []push.Event) {
	m.feed = append([]push.Event(nil), events...)
	if len(m.feed) > feedLimit {
		m.feed = m.feed[:feedLimit]
	}
}

// AddFeed prepends one relay event.
func (m *Model) AddFeed(ev push.Event) {
	m.SetFeed(append([]push.Event{ev}, m.feed...))
}

// ClearFeed empties the relay events shown.
func (m *Model) ClearFeed() { m.feed = nil }

func (m Model) Capturing() bool { return m.editing }

func (m Model) loadConfig() tea.Cmd {
	h, ctx, id := m.api, m.ctx, m.tenantID
	return func() tea.Msg {
		cfg, err := h.WebhookConfig(ctx, id)
		return configMsg{cfg: cfg, err: err}
	}
}

func (m Model) loadLogs() tea.Cmd {
	h, ctx, id := m.api, m.ctx, m.tenantID
	return func() tea.Msg {
		logs, err := h.WebhookLogs(ctx, id, logLimit)
		return logsMsg{logs: logs, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case configMsg:
		if msg.err != nil {
			if !api.IsNotFound(msg.err) {
				m.Err = "load config: " + msg.err.Error()
			}
			return m, nil
		}
		m.cfg = *msg.cfg
		if m.cfg.EventTypes == nil {
			m.cfg.EventTypes = api.DefaultWebhookEvents()
		}
		m.url.SetValue(m.cfg.URL)
		return m, nil

	case logsMsg:
		if msg.err != nil {
			m.Err = "load logs: " + msg.err.Error()
			return m, nil
		}
		m.logs = msg.logs
		return m, nil

	case resultMsg:
		m.busy = ""
		if msg.err != nil {
			m.Err = msg.op + ": " + msg.err.Error()
			return m, nil
		}
		m.Err = ""
		m.Notice = msg.notice
		if msg.reload {
			return m, m.loadLogs()
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			switch {
			case key.Matches(msg, keys.Cancel):
				m.editing = false
				m.url.Blur()
				m.url.SetValue(m.cfg.URL)
				return m, nil
			case key.Matches(msg, keys.Submit):
				u := strings.TrimSpace(m.url.Value())
				if err := api.ValidateWebhookURL(u); err != nil {
					m.Err = err.Error()
					return m, nil
				}
				m.editing = false
				m.url.Blur()
				m.cfg.URL = u
				m.Err = ""
				return m, nil
			}
			var cmd tea.Cmd
			m.url, cmd = m.url.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.tenantID == "" || m.busy != "" {
		return m, nil
	}
	n := len(api.WebhookEventTypes)
	switch {
	case key.Matches(msg, keys.Down):
		m.cursor = (m.cursor + 1) % n
	case key.Matches(msg, keys.Up):
		m.cursor = (m.cursor - 1 + n) % n
	case key.Matches(msg, keys.Toggle):
		ev := api.WebhookEventTypes[m.cursor]
		m.cfg.EventTypes = cloneEvents(m.cfg.EventTypes)
		m.cfg.EventTypes[ev] = !m.cfg.EventTypes[ev]
	case key.Matches(msg, keys.Enabled):
		m.cfg.Enabled = !m.cfg.Enabled
	case key.Matches(msg, keys.EditURL):
		m.editing = true
		m.Notice = ""
		cmd := m.url.Focus()
		return m, cmd
	case key.Matches(msg, keys.Save):
		if err := api.ValidateWebhookURL(m.cfg.URL); err != nil {
			m.Err = err.Error()
			return m, nil
		}
		cfg := m.cfg
		cfg.EventTypes = cloneEvents(cfg.EventTypes)
		return m.run("save", func(ctx context.Context, h Hooks, id string) (string, error) {
			return "Webhook configuration saved.", h.SaveWebhookConfig(ctx, id, cfg)
		}, false)
	case key.Matches(msg, keys.Test):
		u := m.cfg.URL
		if err := api.ValidateWebhookURL(u); err != nil {
			m.Err = err.Error()
			return m, nil
		}
		return m.run("test", func(ctx context.Context, h Hooks, id string) (string, error) {
			res, err := h.TestWebhook(ctx, id, u)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Test delivered: HTTP %d in %dms", res.StatusCode, res.ResponseTime), nil
		}, true)
	case key.Matches(msg, keys.Logs):
		return m, m.loadLogs()
	case key.Matches(msg, keys.ClearLogs):
		return m.run("clear logs", func(ctx context.Context, h Hooks, id string) (string, error) {
			return "Logs cleared.", h.ClearWebhookLogs(ctx, id)
		}, true)
	}
	return m, nil
}

func (m Model) run(op string, fn func(context.Context, Hooks, string) (string, error), reload bool) (Model, tea.Cmd) {
	m.busy = op
	m.Notice, m.Err = "", ""
	h, ctx, id := m.api, m.ctx, m.tenantID
	return m, func() tea.Msg {
		notice, err := fn(ctx, h, id)
		return resultMsg{op: op, notice: notice, err: err, reload: reload && err == nil}
	}
}

func cloneEvents(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render("Webhooks"))
	if m.busy != "" {
		b.WriteString(theme.StyleDimmed.Render("  " + m.busy + "…"))
	}
	b.WriteString("\n\n")
	if m.tenantID == "" {
		b.WriteString(theme.StyleDimmed.Render("  Select a tenant first.") + "\n")
		return b.String()
	}

	if m.editing {
		b.WriteString(m.url.View() + "\n")
	} else {
		u := m.cfg.URL
		if u == "" {
			u = theme.StyleDimmed.Render("(not set, press u)")
		}
		b.WriteString("URL:     " + u + "\n")
	}
	enabled := theme.StyleError.Render("disabled")
	if m.cfg.Enabled {
		enabled = theme.StyleOK.Render("enabled")
	}
	b.WriteString("Status:  " + enabled + "\n\nEvents:\n")
	for i, ev := range api.WebhookEventTypes {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		box := "[ ]"
		if m.cfg.EventTypes[ev] {
			box = "[x]"
		}
		b.WriteString(prefix + box + " " + ev + "\n")
	}

	b.WriteString("\n" + theme.StyleHeader.Render("Recent deliveries") + "\n")
	if len(m.logs) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  none") + "\n")
	}
	for _, l := range m.logs {
		status := theme.StyleOK.Render(l.Status)
		if l.Status != "success" {
			status = theme.StyleError.Render(l.Status)
		}
		line := fmt.Sprintf("  %s %-16s %s", theme.StyleDimmed.Render(l.Timestamp.Local().Format("02/01 15:04:05")), l.Event, status)
		if l.StatusCode != 0 {
			line += fmt.Sprintf(" %d", l.StatusCode)
		}
		if l.Message != "" {
			line += theme.StyleDimmed.Render(" " + l.Message)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + theme.StyleHeader.Render("Relay feed") + "\n")
	if len(m.feed) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  nothing received yet") + "\n")
	}
	for _, ev := range m.feed {
		name := "(raw)"
		if w, ok := ev.Webhook(); ok {
			name = w.Event
		}
		tag := ""
		if ev.Simulated {
			tag = theme.StyleDimmed.Render(" [simulated]")
		}
		b.WriteString(fmt.Sprintf("  %s %-14s %s%s\n", theme.StyleDimmed.Render(ev.Timestamp.Local().Format("15:04:05")), name, ev.IP, tag))
	}

	if m.Notice != "" {
		b.WriteString("\n" + theme.StyleOK.Render(m.Notice) + "\n")
	}
	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render("✗ "+m.Err) + "\n")
	}
	if !m.editing {
		b.WriteString("\n" + theme.StyleDimmed.Render("u:edit url  o:on/off  j/k+space:events  s:save  T:test  l:logs  C:clear logs"))
	}
	return b.String()
}
