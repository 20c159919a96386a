package status

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/marcostaira/app-whatsapp/internal/theme"
)

// APIState is the last health check result.
type APIState int

const (
	APIChecking APIState = iota
	APIOnline
	APIOffline
)

func (s APIState) String() string {
	switch s {
	case APIOnline:
		return "online"
	case APIOffline:
		return "offline"
	default:
		return "checking"
	}
}

// FeedState is the relay push channel state.
type FeedState int

const (
	FeedOff FeedState = iota
	FeedConnecting
	FeedLive
)

func (s FeedState) String() string {
	switch s {
	case FeedLive:
		return "live"
	case FeedConnecting:
		return "reconnecting"
	default:
		return "off"
	}
}

// Model holds the status bar state.
type Model struct {
	API        APIState
	BaseURL    string
	Tenant     string
	Connection string // reconciler status name
	SessionID  string
	Feed       FeedState
	Width      int
}

func New() Model {
	return Model{Connection: "disconnected"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var apiColor lipgloss.Color
	switch m.API {
	case APIOnline:
		apiColor = theme.ColorHealthy
	case APIOffline:
		apiColor = theme.ColorDanger
	default:
		apiColor = theme.ColorWarning
	}
	apiStr := lipgloss.NewStyle().Foreground(apiColor).Render("API " + m.API.String())

	tenant := m.Tenant
	if tenant == "" {
		tenant = "no tenant"
	}
	tenantStr := theme.StyleHeader.Render(tenant)

	connStr := theme.StatusBadge(m.Connection)
	if m.SessionID != "" {
		connStr += theme.StyleDimmed.Render(" " + shortID(m.SessionID))
	}

	var feedColor lipgloss.Color
	switch m.Feed {
	case FeedLive:
		feedColor = theme.ColorHealthy
	case FeedConnecting:
		feedColor = theme.ColorWarning
	default:
		feedColor = theme.ColorDimmed
	}
	feedStr := lipgloss.NewStyle().Foreground(feedColor).Render("feed " + m.Feed.String())

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := apiStr + sep + tenantStr + sep + connStr + sep + feedStr
	if m.BaseURL != "" && width > 100 {
		content += sep + theme.StyleDimmed.Render(m.BaseURL)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "…"
	}
	return id
}
