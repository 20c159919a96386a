package relay

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvent    MessageType = "event"
	MsgCleared  MessageType = "cleared"
)

// WSMessage is the envelope for everything sent on /ws.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Events []*Event `json:"events"`
}

type ClearedPayload struct {
	Count int `json:"count"`
}

// Webhook is the body the WhatsApp API posts for every event.
type Webhook struct {
	TenantID  string          `json:"tenantId"`
	SessionID string          `json:"sessionId"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Event types the relay can simulate.
const (
	EventQRCode      = "qr_code"
	EventPairingCode = "pairing_code"
	EventConnection  = "connection"
)

var SimulatedTypes = []string{EventQRCode, EventPairingCode, EventConnection}

// placeholderQR is a 1x1 PNG used by simulated qr_code events.
const placeholderQR = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// SimulateRequest optionally names the tenant and session of a simulated event.
type SimulateRequest struct {
	TenantID  string `json:"tenantId"`
	SessionID string `json:"sessionId"`
}

// Simulated builds the webhook body for eventType. ok is false for types the
// relay cannot simulate.
func Simulated(eventType string, req SimulateRequest, now time.Time) (Webhook, bool) {
	if req.TenantID == "" {
		req.TenantID = "test-tenant"
	}
	if req.SessionID == "" {
		req.SessionID = "test-session"
	}

	var data map[string]interface{}
	switch eventType {
	case EventQRCode:
		data = map[string]interface{}{"qrCode": placeholderQR, "sessionId": req.SessionID}
	case EventPairingCode:
		data = map[string]interface{}{"pairingCode": "12345678", "sessionId": req.SessionID}
	case EventConnection:
		data = map[string]interface{}{"status": "connected", "isConnected": true, "sessionId": req.SessionID}
	default:
		return Webhook{}, false
	}

	raw, _ := json.Marshal(data)
	return Webhook{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		Event:     eventType,
		Data:      raw,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}, true
}
