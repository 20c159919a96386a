// Package theme provides the Lip Gloss color palette and reusable styles
// for the WhatsApp console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection status colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#dc2626")
	ColorDefault      = lipgloss.Color("#9ca3af")
)

// Message direction colors.
var (
	ColorInbound  = lipgloss.Color("#3b82f6")
	ColorOutbound = lipgloss.Color("#10b981")
)

// Polling progress thresholds.
var (
	ColorProgressLow  = lipgloss.Color("#22c55e") // <50%
	ColorProgressMid  = lipgloss.Color("#d97706") // 50-80%
	ColorProgressHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorAccent  = lipgloss.Color("#25d366")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a connection status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "connected":
		return ColorConnected
	case "connecting":
		return ColorConnecting
	case "disconnected":
		return ColorDisconnected
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph representing a connection status.
func StatusGlyph(status string) string {
	switch status {
	case "connected":
		return "●"
	case "connecting":
		return "◌"
	case "disconnected":
		return "○"
	default:
		return "·"
	}
}

// StatusBadge renders a colored glyph and label for a connection status.
func StatusBadge(status string) string {
	return lipgloss.NewStyle().
		Foreground(StatusColor(status)).
		Bold(true).
		Render(StatusGlyph(status) + " " + status)
}

// DirectionColor returns the color for a message direction.
func DirectionColor(direction string) lipgloss.Color {
	switch direction {
	case "inbound", "incoming":
		return ColorInbound
	case "outbound", "outgoing":
		return ColorOutbound
	default:
		return ColorDefault
	}
}

// ProgressColor returns the color for a fraction of the polling window used.
func ProgressColor(pct float64) lipgloss.Color {
	switch {
	case pct > 0.8:
		return ColorProgressHigh
	case pct > 0.5:
		return ColorProgressMid
	default:
		return ColorProgressLow
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)

	StyleOK = lipgloss.NewStyle().
		Foreground(ColorHealthy)
)
