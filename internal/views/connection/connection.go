// Package connection renders the tracked WhatsApp session and drives the
// reconciler from the keyboard: connect by QR or pairing code, restart
// polling, disconnect and delete.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/qr"
	"github.com/marcostaira/app-whatsapp/internal/reconciler"
	"github.com/marcostaira/app-whatsapp/internal/theme"
)

const (
	fps      = 30
	barWidth = 40
)

// Controller is the part of the reconciler this view drives.
type Controller interface {
	Session() reconciler.Session
	Connect(ctx context.Context, usePairingCode bool, phoneNumber string) (reconciler.Session, error)
	Start(sessionID string) error
	Disconnect(ctx context.Context) error
	Delete(ctx context.Context) error
}

// ChangedMsg carries a reconciler change notification into the program.
type ChangedMsg struct {
	Session reconciler.Session
	Cause   reconciler.Cause
}

// ErrorMsg carries a reconciler error report into the program.
type ErrorMsg struct{ Err error }

type doneMsg struct {
	op  string
	err error
}

type frameMsg struct{ gen int }

type mode int

const (
	modeIdle mode = iota
	modePhone
	modeConfirmDelete
)

type keyMap struct {
	ConnectQR key.Binding
	Pair      key.Binding
	Restart   key.Binding
	Close     key.Binding
	Delete    key.Binding
	Confirm   key.Binding
	Submit    key.Binding
	Cancel    key.Binding
}

var keys = keyMap{
	ConnectQR: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect (QR)")),
	Pair:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pairing code")),
	Restart:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "restart polling")),
	Close:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
	Delete:    key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete")),
	Confirm:   key.NewBinding(key.WithKeys("y", "Y")),
	Submit:    key.NewBinding(key.WithKeys("enter")),
	Cancel:    key.NewBinding(key.WithKeys("esc")),
}

// Model is the connection view.
type Model struct {
	ctrl    Controller
	ctx     context.Context
	qrDir   string
	ceiling time.Duration
	now     func() time.Time

	sess   reconciler.Session
	qrFor  string
	qr     qr.Render
	qrErr  string
	mode   mode
	phone  textinput.Model
	spin   spinner.Model
	busy   string
	Err    string
	Notice string
	Width  int

	spring    harmonica.Spring
	pos, vel  float64
	animating bool
	frameGen  int
}

// New creates the view. QR images that cannot be drawn in the terminal are
// written to qrDir.
func New(ctx context.Context, ctrl Controller, qrDir string, ceiling time.Duration) Model {
	in := textinput.New()
	in.Placeholder = "5511999999999"
	in.CharLimit = 20
	in.Prompt = "phone: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorConnecting)

	m := Model{
		ctrl:    ctrl,
		ctx:     ctx,
		qrDir:   qrDir,
		ceiling: ceiling,
		now:     time.Now,
		phone:   in,
		spin:    sp,
		spring:  harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
	}
	if ctrl != nil {
		m.setSession(ctrl.Session())
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick}
	if m.sess.Polling {
		cmds = append(cmds, frame(m.frameGen))
	}
	return tea.Batch(cmds...)
}

// Capturing reports whether keystrokes belong to this view, e.g. while the
// phone number is being typed.
func (m Model) Capturing() bool {
	return m.mode != modeIdle
}

// Session returns the snapshot the view last rendered.
func (m Model) Session() reconciler.Session {
	return m.sess
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ChangedMsg:
		latest := msg.Session
		if m.ctrl != nil {
			latest = m.ctrl.Session()
		}
		m.setSession(latest)
		switch msg.Cause {
		case reconciler.CauseCeiling:
			m.Notice = fmt.Sprintf("Stopped checking after %s. Press s to keep waiting.", m.ceiling)
		case reconciler.CauseDisconnect:
			m.Notice = "Disconnected."
		case reconciler.CauseDelete:
			m.Notice = "Connection deleted."
		default:
			if m.sess.Status == reconciler.Connected {
				m.Notice = "Connected."
			}
		}
		cmd := m.animate()
		return m, cmd

	case ErrorMsg:
		if errors.Is(msg.Err, reconciler.ErrPollCeiling) {
			return m, nil
		}
		m.Err = msg.Err.Error()
		return m, nil

	case doneMsg:
		m.busy = ""
		if msg.err != nil {
			m.Err = describe(msg.op, msg.err)
			return m, nil
		}
		m.Err = ""
		if m.ctrl != nil {
			m.setSession(m.ctrl.Session())
		}
		cmd := m.animate()
		return m, cmd

	case frameMsg:
		if msg.gen != m.frameGen {
			return m, nil
		}
		m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.progress())
		if m.sess.Polling || abs(m.progress()-m.pos) > 0.001 {
			return m, frame(m.frameGen)
		}
		m.animating = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case modePhone:
		switch {
		case key.Matches(msg, keys.Cancel):
			m.mode = modeIdle
			m.phone.Blur()
			m.phone.Reset()
			return m, nil
		case key.Matches(msg, keys.Submit):
			number, err := api.ValidateBrazilianPhone(m.phone.Value())
			if err != nil {
				m.Err = err.Error()
				return m, nil
			}
			m.mode = modeIdle
			m.phone.Blur()
			m.phone.Reset()
			return m.connect(true, number)
		}
		var cmd tea.Cmd
		m.phone, cmd = m.phone.Update(msg)
		return m, cmd

	case modeConfirmDelete:
		m.mode = modeIdle
		if key.Matches(msg, keys.Confirm) {
			return m.run("delete", func(ctx context.Context) error { return m.ctrl.Delete(ctx) })
		}
		m.Notice = "Delete cancelled."
		return m, nil
	}

	if m.busy != "" || m.ctrl == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.ConnectQR):
		return m.connect(false, "")
	case key.Matches(msg, keys.Pair):
		if m.sess.Status != reconciler.Disconnected {
			m.Err = reconciler.ErrSessionActive.Error()
			return m, nil
		}
		m.mode = modePhone
		m.Err = ""
		cmd := m.phone.Focus()
		return m, cmd
	case key.Matches(msg, keys.Restart):
		id := m.sess.SessionID
		if err := m.ctrl.Start(id); err != nil {
			m.Err = describe("restart", err)
			return m, nil
		}
		m.Notice = ""
		m.setSession(m.ctrl.Session())
		cmd := m.animate()
		return m, cmd
	case key.Matches(msg, keys.Close):
		return m.run("disconnect", func(ctx context.Context) error { return m.ctrl.Disconnect(ctx) })
	case key.Matches(msg, keys.Delete):
		if m.sess.SessionID == "" {
			m.Err = reconciler.ErrNoSession.Error()
			return m, nil
		}
		m.mode = modeConfirmDelete
		return m, nil
	}
	return m, nil
}

func (m Model) connect(pairing bool, phone string) (Model, tea.Cmd) {
	return m.run("connect", func(ctx context.Context) error {
		_, err := m.ctrl.Connect(ctx, pairing, phone)
		return err
	})
}

func (m Model) run(op string, fn func(context.Context) error) (Model, tea.Cmd) {
	m.busy = op
	m.Err = ""
	m.Notice = ""
	ctx := m.ctx
	return m, func() tea.Msg {
		return doneMsg{op: op, err: fn(ctx)}
	}
}

func (m *Model) setSession(s reconciler.Session) {
	if s.Rev < m.sess.Rev && s.SessionID == m.sess.SessionID {
		return
	}
	m.sess = s
	if s.QRCode == m.qrFor {
		return
	}
	m.qrFor = s.QRCode
	m.qr, m.qrErr = qr.Render{}, ""
	if s.QRCode == "" {
		return
	}
	r, err := qr.Present(s.QRCode, m.qrDir, s.SessionID)
	if err != nil {
		m.qrErr = err.Error()
		return
	}
	m.qr = r
}

// animate starts the progress animation if it is not already running.
func (m *Model) animate() tea.Cmd {
	if !m.sess.Polling && m.pos == 0 {
		return nil
	}
	if m.animating {
		return nil
	}
	m.animating = true
	m.frameGen++
	return frame(m.frameGen)
}

func frame(gen int) tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return frameMsg{gen: gen} })
}

// progress is the fraction of the polling window already used.
func (m Model) progress() float64 {
	if !m.sess.Polling || m.sess.PollStarted.IsZero() || m.ceiling <= 0 {
		return 0
	}
	p := float64(m.now().Sub(m.sess.PollStarted)) / float64(m.ceiling)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(theme.StyleHeader.Render("WhatsApp connection"))
	b.WriteString("\n\n")
	b.WriteString("Status:  " + theme.StatusBadge(m.sess.Status.String()))
	if m.busy != "" {
		b.WriteString("  " + m.spin.View() + theme.StyleDimmed.Render(" "+m.busy+"…"))
	}
	b.WriteString("\n")
	if m.sess.SessionID != "" {
		b.WriteString("Session: " + theme.StyleDimmed.Render(m.sess.SessionID) + "\n")
	}
	if p := m.sess.Profile; p != nil && m.sess.Status == reconciler.Connected {
		b.WriteString(fmt.Sprintf("Profile: %s %s\n", p.Name, theme.StyleDimmed.Render(api.DisplayPhone(p.Phone))))
	}

	if m.sess.Status == reconciler.Connecting {
		b.WriteString("\n")
		b.WriteString(m.viewCodes())
	}

	if m.sess.Polling || m.animating {
		b.WriteString("\n")
		b.WriteString(m.viewProgress())
		b.WriteString("\n")
	}

	switch m.mode {
	case modePhone:
		b.WriteString("\nEnter the number that will be paired (country code first):\n")
		b.WriteString(m.phone.View() + "\n")
		b.WriteString(theme.StyleDimmed.Render("enter:request code  esc:cancel") + "\n")
	case modeConfirmDelete:
		b.WriteString("\n" + theme.StyleError.Render("Delete this connection? The session will be logged out. (y/N)") + "\n")
	}

	if m.Notice != "" {
		b.WriteString("\n" + theme.StyleOK.Render(m.Notice) + "\n")
	}
	if m.Err != "" {
		b.WriteString("\n" + theme.StyleError.Render("✗ "+m.Err) + "\n")
	}

	if m.mode == modeIdle {
		b.WriteString("\n" + theme.StyleDimmed.Render(helpLine(m.sess)))
	}
	return b.String()
}

func (m Model) viewCodes() string {
	var b strings.Builder
	if m.sess.PairingCode != "" {
		b.WriteString("Pairing code:\n\n")
		b.WriteString(lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorAccent).
			Padding(0, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorAccent).
			Render(formatPairingCode(m.sess.PairingCode)))
		b.WriteString("\n")
		b.WriteString(theme.StyleDimmed.Render("WhatsApp > Linked devices > Link with phone number") + "\n")
	}
	switch {
	case m.qrErr != "":
		b.WriteString(theme.StyleError.Render("QR code unavailable: "+m.qrErr) + "\n")
	case m.qr.Art != "":
		b.WriteString("Scan with WhatsApp > Linked devices:\n")
		b.WriteString(m.qr.Art)
	case m.qr.File != "":
		b.WriteString("QR code saved to " + theme.StyleHeader.Render(m.qr.File) + "\n")
		b.WriteString(theme.StyleDimmed.Render("Open it and scan with WhatsApp > Linked devices") + "\n")
	case m.sess.PairingCode == "":
		b.WriteString(m.spin.View() + " waiting for a code…\n")
	}
	return b.String()
}

func (m Model) viewProgress() string {
	pos := m.pos
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	filled := int(pos*barWidth + 0.5)
	bar := lipgloss.NewStyle().Foreground(theme.ProgressColor(pos)).Render(strings.Repeat("█", filled)) +
		theme.StyleDimmed.Render(strings.Repeat("░", barWidth-filled))

	elapsed := time.Duration(0)
	if !m.sess.PollStarted.IsZero() {
		elapsed = m.now().Sub(m.sess.PollStarted).Truncate(time.Second)
	}
	label := "checking"
	if !m.sess.Polling {
		label = "stopped"
	}
	return fmt.Sprintf("%s %s %s / %s", label, bar, elapsed, m.ceiling)
}

func helpLine(s reconciler.Session) string {
	switch s.Status {
	case reconciler.Connected:
		return "x:disconnect  D:delete"
	case reconciler.Connecting:
		if s.Polling {
			return "x:cancel  D:delete"
		}
		return "s:restart polling  x:cancel  D:delete"
	default:
		if s.SessionID != "" {
			return "c:connect (QR)  p:pairing code  s:check again  D:delete"
		}
		return "c:connect (QR)  p:pairing code"
	}
}

// formatPairingCode groups an 8-character code as XXXX-XXXX.
func formatPairingCode(code string) string {
	if len(code) == 8 && !strings.Contains(code, "-") {
		return code[:4] + "-" + code[4:]
	}
	return code
}

func describe(op string, err error) string {
	switch {
	case errors.Is(err, reconciler.ErrSessionActive):
		return "A connection is already in progress. Disconnect it first."
	case errors.Is(err, reconciler.ErrNoSession):
		return "There is no connection to " + op + "."
	case errors.Is(err, reconciler.ErrClosed):
		return "The console is shutting down."
	case api.IsUnauthorized(err):
		return op + " failed: the API key was rejected."
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
