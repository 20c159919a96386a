// Package reconciler keeps one WhatsApp connection session converged with the
// API by merging timed status polls and pushed webhook events.
package reconciler

import (
	"encoding/json"
	"time"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

var statusNames = map[Status]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
}

var statusFromName = map[string]Status{
	"disconnected": Disconnected,
	"connecting":   Connecting,
	"connected":    Connected,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

// Session is a snapshot of the tracked connection. Rev increases with every
// mutation so observers can drop stale snapshots.
type Session struct {
	SessionID   string       `json:"sessionId,omitempty"`
	Status      Status       `json:"status"`
	QRCode      string       `json:"qrCode,omitempty"`
	PairingCode string       `json:"pairingCode,omitempty"`
	Profile     *api.Profile `json:"profile,omitempty"`
	Polling     bool         `json:"polling"`
	PollStarted time.Time    `json:"pollStarted,omitempty"`
	Rev         uint64       `json:"rev"`
}

func (s Session) clone() Session {
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}

// StatusEvent is one observation from either source. Empty strings and nil
// pointers mean the source said nothing about that field. An empty SessionID
// targets whichever session is tracked.
type StatusEvent struct {
	SessionID   string
	IsConnected *bool
	QRCode      string
	PairingCode string
	Profile     *api.Profile
}

// FromStatus converts a poll response into an event for sessionID.
func FromStatus(sessionID string, st *api.ConnectionStatus) StatusEvent {
	connected := st.IsConnected
	return StatusEvent{
		SessionID:   sessionID,
		IsConnected: &connected,
		QRCode:      st.QRCode,
		PairingCode: st.PairingCode,
	}
}

// Cause names what produced a change notification.
type Cause string

const (
	CauseDiscover   Cause = "discover"
	CauseConnect    Cause = "connect"
	CausePoll       Cause = "poll"
	CausePush       Cause = "push"
	CauseProfile    Cause = "profile"
	CauseStart      Cause = "start"
	CauseStop       Cause = "stop"
	CauseCeiling    Cause = "ceiling"
	CauseDisconnect Cause = "disconnect"
	CauseDelete     Cause = "delete"
)
