// Package messages lists the active session's messages and sends text
// messages.
package messages

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/theme"
)

const pageSize = 50

var (
	directions = []string{"all", "inbound", "outbound"}
	types      = []string{"all", "text", "image", "audio", "video", "document", "location", "contact"}
)

// Messenger is the slice of the API this view uses.
type Messenger interface {
	Messages(ctx context.Context, f api.MessageFilter) ([]api.Message, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.Message, error)
}

type loadedMsg struct {
	list []api.Message
	err  error
}

type sentMsg struct {
	msg *api.Message
	err error
}

var keys = struct {
	Up, Down, Direction, Type, Refresh, Compose, Next, Send, Cancel key.Binding
}{
	Up:        key.NewBinding(key.WithKeys("k", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down")),
	Direction: key.NewBinding(key.WithKeys("d")),
	Type:      key.NewBinding(key.WithKeys("t")),
	Refresh:   key.NewBinding(key.WithKeys("r")),
	Compose:   key.NewBinding(key.WithKeys("n")),
	Next:      key.NewBinding(key.WithKeys("tab", "shift+tab")),
	Send:      key.NewBinding(key.WithKeys("enter")),
	Cancel:    key.NewBinding(key.WithKeys("esc")),
}

type Model struct {
	api       Messenger
	ctx       context.Context
	sessionID string

	list      []api.Message
	cursor    int
	direction int
	kind      int
	loading   bool

	composing bool
	to        textinput.Model
	body      textinput.Model

	Notice string
	Err    string
}

func New(ctx context.Context, m Messenger) Model {
	to := textinput.New()
	to.Prompt = "to:   "
	to.Placeholder = "5511999999999"
	to.CharLimit = 30
	body := textinput.New()
	body.Prompt = "text: "
	body.Placeholder = "message"
	body.CharLimit = 4096
	return Model{api: m, ctx: ctx, to: to, body: body}
}

// SetSession points the view at a connection and reloads. An empty id
// clears the list.
func (m *Model) SetSession(id string) tea.Cmd {
	if id == m.sessionID {
		return nil
	}
	m.sessionID = id
	m.list, m.cursor = nil, 0
	if id == "" {
		return nil
	}
	m.loading = true
	return m.load()
}

func (m Model) Capturing() bool { return m.composing }

func (m Model) Filter() api.MessageFilter {
	return api.MessageFilter{
		SessionID: m.sessionID,
		Direction: directions[m.direction],
		Type:      types[m.kind],
		Limit:     pageSize,
	}
}

func (m Model) load() tea.Cmd {
	if m.sessionID == "" {
		return nil
	}
	a, ctx, f := m.api, m.ctx, m.Filter()
	return func() tea.Msg {
		list, err := a.Messages(ctx, f)
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

	case sentMsg:
		if msg.err != nil {
			m.Err = "send: " + msg.err.Error()
			return m, nil
		}
		m.composing = false
		m.to.Blur()
		m.body.Blur()
		m.body.Reset()
		m.Notice = "Message sent."
		return m, m.load()

	case tea.KeyMsg:
		if m.composing {
			return m.updateCompose(msg)
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
		case key.Matches(msg, keys.Direction):
			m.direction = (m.direction + 1) % len(directions)
			return m, m.load()
		case key.Matches(msg, keys.Type):
			m.kind = (m.kind + 1) % len(types)
			return m, m.load()
		case key.Matches(msg, keys.Refresh):
			m.loading = true
			return m, m.load()
		case key.Matches(msg, keys.Compose):
			if m.sessionID == "" {
				m.Err = "connect a session first"
				return m, nil
			}
			m.composing = true
			m.Notice, m.Err = "", ""
			m.body.Blur()
			cmd := m.to.Focus()
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) updateCompose(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		m.composing = false
		m.to.Blur()
		m.body.Blur()
		return m, nil
	case key.Matches(msg, keys.Next):
		var cmd tea.Cmd
		if m.to.Focused() {
			m.to.Blur()
			cmd = m.body.Focus()
		} else {
			m.body.Blur()
			cmd = m.to.Focus()
		}
		return m, cmd
	case key.Matches(msg, keys.Send):
		req, err := m.request()
		if err != nil {
			m.Err = err.Error()
			return m, nil
		}
		a, ctx := m.api, m.ctx
		return m, func() tea.Msg {
			out, err := a.SendMessage(ctx, req)
			return sentMsg{msg: out, err: err}
		}
	}
	var cmd tea.Cmd
	if m.to.Focused() {
		m.to, cmd = m.to.Update(msg)
	} else {
		m.body, cmd = m.body.Update(msg)
	}
	return m, cmd
}

func (m Model) request() (api.SendMessageRequest, error) {
	to := strings.TrimSpace(m.to.Value())
	text := strings.TrimSpace(m.body.Value())
	if to == "" || text == "" {
		return api.SendMessageRequest{}, fmt.Errorf("recipient and text are required")
	}
	return api.SendMessageRequest{
		SessionID: m.sessionID,
		To:        api.FormatPhoneNumber(to),
		Type:      "text",
		Content:   text,
	}, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render("Messages"))
	b.WriteString(theme.StyleDimmed.Render(fmt.Sprintf("  direction:%s  type:%s", directions[m.direction], types[m.kind])))
	if m.loading {
		b.WriteString(theme.StyleDimmed.Render("  loading…"))
	}
	b.WriteString("\n\n")

	switch {
	case m.sessionID == "":
		b.WriteString(theme.StyleDimmed.Render("  No active connection.") + "\n")
	case len(m.list) == 0:
		b.WriteString(theme.StyleDimmed.Render("  No messages match the filters.") + "\n")
	}
	for i, msg := range m.list {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		b.WriteString(prefix + renderMessage(msg) + "\n")
	}

	if m.composing {
		b.WriteString("\n" + theme.StyleHeader.Render("New message") + "\n")
		b.WriteString(m.to.View() + "\n" + m.body.View() + "\n")
		b.WriteString(theme.StyleDimmed.Render("tab:switch field  enter:send  esc:cancel") + "\n")
	}
	if m.Notice != "" {
		b.WriteString("\n" + theme.StyleOK.Render(m.Notice) + "\n")
	}
	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render("✗ "+m.Err) + "\n")
	}
	if !m.composing {
		b.WriteString("\n" + theme.StyleDimmed.Render("j/k:select  d:direction  t:type  r:refresh  n:new message"))
	}
	return b.String()
}

func renderMessage(msg api.Message) string {
	arrow, peer := "←", msg.From
	if msg.Direction == "outbound" {
		arrow, peer = "→", msg.To
	}
	dir := lipgloss.NewStyle().Foreground(theme.DirectionColor(msg.Direction)).Render(arrow)
	ts := theme.StyleDimmed.Render(msg.Timestamp.Local().Format("02/01 15:04"))
	content := msg.Content
	switch {
	case msg.Media != nil && msg.Media.Caption != "":
		content = "[" + msg.Type + "] " + msg.Media.Caption
	case msg.Location != nil:
		content = fmt.Sprintf("[location] %.5f,%.5f %s", msg.Location.Latitude, msg.Location.Longitude, msg.Location.Name)
	case msg.Contact != nil:
		content = "[contact] " + msg.Contact.Name + " " + msg.Contact.Phone
	case content == "" && msg.Type != "text":
		content = "[" + msg.Type + "]"
	}
	if len(content) > 60 {
		content = content[:57] + "..."
	}
	line := fmt.Sprintf("%s %s %-15s %s", ts, dir, api.DisplayPhone(peer), content)
	if msg.Status != "" {
		line += theme.StyleDimmed.Render("  " + msg.Status)
	}
	return line
}
