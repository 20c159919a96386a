// Package debug is the event log overlay: relay traffic, reconciler
// transitions, API failures and navigation, newest at the bottom.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcostaira/app-whatsapp/internal/theme"
)

const maxEntries = 200

// Kinds the dashboard logs under.
const (
	KindPush = "push"
	KindPoll = "poll"
	KindAPI  = "api"
	KindErr  = "err"
	KindNav  = "nav"
)

var filterCycle = []string{"", KindErr, KindPoll, KindPush, KindAPI, KindNav}

type Entry struct {
	Time    time.Time
	Kind    string
	Message string
	// Repeats counts identical lines folded into this one; a poll error
	// every three seconds shows up once with a counter.
	Repeats int
}

type Model struct {
	Entries []Entry
	Offset  int    // lines hidden below the window
	Filter  string // empty shows every kind

	now func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// Add records a line. A line equal to the previous one bumps its counter
// instead. The view stays put while the user is scrolled back.
func (m *Model) Add(kind, message string) {
	now := time.Now()
	if m.now != nil {
		now = m.now()
	}
	if n := len(m.Entries); n > 0 {
		last := &m.Entries[n-1]
		if last.Kind == kind && last.Message == message {
			last.Repeats++
			last.Time = now
			return
		}
	}

	m.Entries = append(m.Entries, Entry{Time: now, Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	if m.Offset > 0 && m.matches(kind) {
		m.Offset++
		m.clamp()
	}
}

func (m *Model) Addf(kind, format string, args ...interface{}) {
	m.Add(kind, fmt.Sprintf(format, args...))
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	m.clamp()
}

func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	m.clamp()
}

// CycleFilter steps through all, err, poll, push, api, nav and jumps back
// to the newest line.
func (m *Model) CycleFilter() {
	for i, k := range filterCycle {
		if k == m.Filter {
			m.Filter = filterCycle[(i+1)%len(filterCycle)]
			break
		}
	}
	m.Offset = 0
}

// Visible returns the entries the current filter lets through.
func (m Model) Visible() []Entry {
	if m.Filter == "" {
		return m.Entries
	}
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == m.Filter {
			out = append(out, e)
		}
	}
	return out
}

func (m Model) matches(kind string) bool { return m.Filter == "" || m.Filter == kind }

func (m *Model) clamp() {
	top := len(m.Visible()) - 1
	if top < 0 {
		top = 0
	}
	m.Offset = max(0, min(m.Offset, top))
}

// View renders the log as a bordered panel of the given outer size.
func (m Model) View(width, height int) string {
	inner := max(width-4, 20)
	rows := max(height-6, 3)

	filter := "all"
	if m.Filter != "" {
		filter = m.Filter
	}
	title := theme.StyleHeader.Render(" EVENT LOG ") + theme.StyleDimmed.Render("  showing "+filter)
	visible := m.Visible()
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:filter  esc:close  %d/%d entries", len(visible), len(m.Entries)))

	panel := lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(visible) == 0 {
		empty := theme.StyleDimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", empty, "", help))
	}

	end := max(len(visible)-m.Offset, 0)
	start := max(end-rows, 0)

	lines := make([]string, 0, end-start)
	for _, e := range visible[start:end] {
		lines = append(lines, renderEntry(e, inner))
	}

	var below string
	if m.Offset > 0 {
		below = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), below, help))
}

func renderEntry(e Entry, width int) string {
	msg := e.Message
	if e.Repeats > 0 {
		msg = fmt.Sprintf("%s (x%d)", msg, e.Repeats+1)
	}
	// timestamp, kind column and spacing take 20 cells
	if room := width - 20; room > 3 && len(msg) > room {
		msg = msg[:room-3] + "..."
	}
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(e.Kind)
	return theme.StyleDimmed.Render(e.Time.Format("15:04:05.000")) + " " + kind + " " + msg
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindPush:
		return theme.ColorInbound
	case KindPoll:
		return theme.ColorConnecting
	case KindAPI:
		return theme.ColorOutbound
	case KindErr:
		return theme.ColorDanger
	case KindNav:
		return theme.ColorAccent
	}
	return theme.ColorDimmed
}
