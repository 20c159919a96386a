// Package push subscribes to the webhook relay's /ws feed and turns the
// WhatsApp API's connection webhooks into reconciler status events. Types
// mirror the relay wire protocol without importing the relay package.
package push

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/reconciler"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
	MsgCleared  MessageType = "cleared"
)

type wsMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Event mirrors a webhook recorded by the relay.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      json.RawMessage   `json:"body"`
	IP        string            `json:"ip"`
	Simulated bool              `json:"simulated,omitempty"`
}

// Webhook decodes the event body. ok is false when the body is not a
// WhatsApp API webhook.
func (e Event) Webhook() (Webhook, bool) {
	var w Webhook
	if err := json.Unmarshal(e.Body, &w); err != nil || w.Event == "" {
		return Webhook{}, false
	}
	return w, true
}

type Webhook struct {
	TenantID  string          `json:"tenantId"`
	SessionID string          `json:"sessionId"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type webhookData struct {
	SessionID   string       `json:"sessionId"`
	QRCode      string       `json:"qrCode"`
	PairingCode string       `json:"pairingCode"`
	IsConnected *bool        `json:"isConnected"`
	Status      string       `json:"status"`
	Profile     *api.Profile `json:"profile"`
	ProfileData *api.Profile `json:"profileData"`
}

// StatusEvent maps qr_code, pairing_code and connection webhooks onto a
// reconciler event. Other event types report ok=false.
func StatusEvent(w Webhook) (reconciler.StatusEvent, bool) {
	var d webhookData
	if len(w.Data) > 0 {
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return reconciler.StatusEvent{}, false
		}
	}
	ev := reconciler.StatusEvent{SessionID: w.SessionID}
	if ev.SessionID == "" {
		ev.SessionID = d.SessionID
	}

	switch w.Event {
	case "qr_code":
		if d.QRCode == "" {
			return reconciler.StatusEvent{}, false
		}
		ev.QRCode = d.QRCode
	case "pairing_code":
		if d.PairingCode == "" {
			return reconciler.StatusEvent{}, false
		}
		ev.PairingCode = d.PairingCode
	case "connection":
		connected, known := connectionState(d)
		if !known {
			return reconciler.StatusEvent{}, false
		}
		ev.IsConnected = &connected
		ev.Profile = d.Profile
		if ev.Profile == nil {
			ev.Profile = d.ProfileData
		}
	default:
		return reconciler.StatusEvent{}, false
	}
	return ev, true
}

func connectionState(d webhookData) (connected, known bool) {
	if d.IsConnected != nil {
		return *d.IsConnected, true
	}
	switch strings.ToLower(d.Status) {
	case "connected", "open":
		return true, true
	case "disconnected", "close", "closed", "logged_out":
		return false, true
	}
	return false, false
}
