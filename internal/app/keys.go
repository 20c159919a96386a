package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keyboard bindings. Views own their own keys.
type KeyMap struct {
	NextTab key.Binding
	PrevTab key.Binding
	Tab1    key.Binding
	Tab2    key.Binding
	Tab3    key.Binding
	Tab4    key.Binding
	Tab5    key.Binding
	Tab6    key.Binding
	Tab7    key.Binding
	Escape  key.Binding
	Quit    key.Binding
	Debug   key.Binding
	Health  key.Binding
	Up      key.Binding
	Down    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextTab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous tab"),
		),
		Tab1: key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "tenants")),
		Tab2: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "connection")),
		Tab3: key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "connections")),
		Tab4: key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "messages")),
		Tab5: key.NewBinding(key.WithKeys("5"), key.WithHelp("5", "contacts")),
		Tab6: key.NewBinding(key.WithKeys("6"), key.WithHelp("6", "webhooks")),
		Tab7: key.NewBinding(key.WithKeys("7"), key.WithHelp("7", "guide")),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Debug: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "event log"),
		),
		Health: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "check API"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
		),
	}
}
