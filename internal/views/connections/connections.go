// Package connections lists every connection the tenant owns and refreshes
// the list on a timer.
package connections

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/theme"
)

// Lister is the slice of the API this view uses.
type Lister interface {
	Connections(ctx context.Context) ([]api.Connection, error)
	DeleteConnection(ctx context.Context, sessionID string) error
}

type loadedMsg struct {
	list []api.Connection
	err  error
	at   time.Time
}

type deletedMsg struct {
	id  string
	err error
}

type tickMsg struct{ gen int }

// DeletedMsg tells the root model a connection was removed here, so the
// reconciler can forget it if it was the tracked one.
type DeletedMsg struct{ SessionID string }

var keys = struct {
	Up, Down, Refresh, Delete, Confirm key.Binding
}{
	Up:      key.NewBinding(key.WithKeys("k", "up")),
	Down:    key.NewBinding(key.WithKeys("j", "down")),
	Refresh: key.NewBinding(key.WithKeys("r")),
	Delete:  key.NewBinding(key.WithKeys("D")),
	Confirm: key.NewBinding(key.WithKeys("y", "Y")),
}

type Model struct {
	api      Lister
	ctx      context.Context
	interval time.Duration

	list       []api.Connection
	cursor     int
	loading    bool
	confirming bool
	updated    time.Time
	gen        int
	Err        string
}

func New(ctx context.Context, l Lister, interval time.Duration) Model {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return Model{api: l, ctx: ctx, interval: interval}
}

// Init loads the list and starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

// Restart drops the running refresh timer and starts a fresh one, e.g. after
// the tenant changes.
func (m *Model) Restart() tea.Cmd {
	m.gen++
	m.list = nil
	m.cursor = 0
	m.loading = true
	return tea.Batch(m.load(), m.tick())
}

func (m Model) Capturing() bool { return m.confirming }

func (m Model) Len() int { return len(m.list) }

func (m Model) load() tea.Cmd {
	l, ctx := m.api, m.ctx
	return func() tea.Msg {
		list, err := l.Connections(ctx)
		return loadedMsg{list: list, err: err, at: time.Now()}
	}
}

func (m Model) tick() tea.Cmd {
	gen := m.gen
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{gen: gen} })
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
		m.updated = msg.at
		if m.cursor >= len(m.list) {
			m.cursor = max(len(m.list)-1, 0)
		}
		return m, nil

	case tickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.load(), m.tick())

	case deletedMsg:
		if msg.err != nil {
			m.Err = fmt.Sprintf("delete %s: %v", msg.id, msg.err)
			return m, nil
		}
		id := msg.id
		return m, tea.Batch(m.load(), func() tea.Msg { return DeletedMsg{SessionID: id} })

	case tea.KeyMsg:
		if m.confirming {
			m.confirming = false
			if key.Matches(msg, keys.Confirm) && m.cursor < len(m.list) {
				id, l, ctx := m.list[m.cursor].SessionID, m.api, m.ctx
				return m, func() tea.Msg { return deletedMsg{id: id, err: l.DeleteConnection(ctx, id)} }
			}
			return m, nil
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
		case key.Matches(msg, keys.Refresh):
			m.loading = true
			return m, m.load()
		case key.Matches(msg, keys.Delete):
			if len(m.list) > 0 {
				m.confirming = true
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	title := fmt.Sprintf("Connections (%d)", len(m.list))
	b.WriteString(theme.StyleHeader.Render(title))
	if !m.updated.IsZero() {
		b.WriteString(theme.StyleDimmed.Render("  updated " + m.updated.Format("15:04:05")))
	}
	if m.loading {
		b.WriteString(theme.StyleDimmed.Render("  refreshing…"))
	}
	b.WriteString("\n\n")

	if len(m.list) == 0 {
		b.WriteString(theme.StyleDimmed.Render("  No connections yet. Use the Connection tab to create one.") + "\n")
	}
	for i, c := range m.list {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		status := "disconnected"
		if c.IsConnected {
			status = "connected"
		} else if c.Status != "" {
			status = c.Status
		}
		line := prefix + theme.StatusBadge(status) + "  " + lipgloss.NewStyle().Width(38).Render(c.SessionID)
		if c.ProfileData != nil {
			line += "  " + c.ProfileData.Name + " " + theme.StyleDimmed.Render(api.DisplayPhone(c.ProfileData.Phone))
		}
		if c.LastConnectedAt != nil {
			line += theme.StyleDimmed.Render("  last seen " + c.LastConnectedAt.Local().Format("02/01 15:04"))
		}
		b.WriteString(line + "\n")
	}

	if m.confirming && m.cursor < len(m.list) {
		b.WriteString("\n" + theme.StyleError.Render(fmt.Sprintf("Delete %s? (y/N)", m.list[m.cursor].SessionID)) + "\n")
	}
	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render("✗ "+m.Err) + "\n")
	}
	b.WriteString("\n" + theme.StyleDimmed.Render(fmt.Sprintf("j/k:select  r:refresh  D:delete  auto-refresh every %s", m.interval)))
	return b.String()
}
