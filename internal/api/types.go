// Package api is a typed client for the external WhatsApp-automation REST API.
// Every call either returns a decoded value or one of TransportError,
// StatusError or DecodeError.
package api

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// envelope is the wrapper the API puts around every /api response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Health is returned by GET /health.
type Health struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Version string `json:"version,omitempty"`
}

// --- Tenants ---

type Tenant struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	APIKey               string     `json:"apiKey"`
	WebhookURL           string     `json:"webhookUrl,omitempty"`
	ReceiveGroupMessages bool       `json:"receiveGroupMessages"`
	AutoReconnect        bool       `json:"autoReconnect"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
}

type TenantInput struct {
	Name                 string `json:"name"`
	WebhookURL           string `json:"webhookUrl,omitempty"`
	ReceiveGroupMessages bool   `json:"receiveGroupMessages"`
	AutoReconnect        bool   `json:"autoReconnect"`
}

// --- Connections ---

// Profile is the WhatsApp account behind a connected session.
type Profile struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	ID    string `json:"id,omitempty"`
}

type Connection struct {
	SessionID       string     `json:"sessionId"`
	IsConnected     bool       `json:"isConnected"`
	Status          string     `json:"status,omitempty"`
	ProfileData     *Profile   `json:"profileData,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
}

type ConnectRequest struct {
	UsePairingCode bool   `json:"usePairingCode"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
}

type ConnectResult struct {
	SessionID   string `json:"sessionId"`
	QRCode      string `json:"qrCode,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

// ConnectionStatus is returned by GET /api/connection/{id}/status.
type ConnectionStatus struct {
	IsConnected bool   `json:"isConnected"`
	QRCode      string `json:"qrCode,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

// --- Messages ---

type Media struct {
	Data     string `json:"data"`
	Mimetype string `json:"mimetype,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type ContactCard struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Message struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionId,omitempty"`
	From      string       `json:"from,omitempty"`
	To        string       `json:"to,omitempty"`
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	Direction string       `json:"direction,omitempty"` // "inbound" | "outbound"
	Status    string       `json:"status,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Media     *Media       `json:"media,omitempty"`
	Location  *Location    `json:"location,omitempty"`
	Contact   *ContactCard `json:"contact,omitempty"`
}

type SendMessageRequest struct {
	SessionID string       `json:"sessionId"`
	To        string       `json:"to"`
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	Media     *Media       `json:"media,omitempty"`
	Location  *Location    `json:"location,omitempty"`
	Contact   *ContactCard `json:"contact,omitempty"`
}

type BulkMessageRequest struct {
	SessionID  string   `json:"sessionId"`
	Recipients []string `json:"recipients"`
	Type       string   `json:"type"`
	Content    string   `json:"content,omitempty"`
	DelayMs    int      `json:"delay,omitempty"`
}

type BulkResult struct {
	Queued int      `json:"queued"`
	Failed []string `json:"failed,omitempty"`
}

// MessageFilter narrows GET /api/messages. Zero values and "all" are omitted.
type MessageFilter struct {
	SessionID string
	Direction string
	Type      string
	DateFrom  string
	DateTo    string
	Limit     int
	Offset    int
}

func (f MessageFilter) Values() url.Values {
	v := url.Values{}
	setIf(v, "sessionId", f.SessionID)
	setIf(v, "direction", f.Direction)
	setIf(v, "type", f.Type)
	setIf(v, "dateFrom", f.DateFrom)
	setIf(v, "dateTo", f.DateTo)
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		v.Set("offset", strconv.Itoa(f.Offset))
	}
	return v
}

type MessageStats struct {
	Total    int            `json:"total"`
	Sent     int            `json:"sent"`
	Received int            `json:"received"`
	Read     int            `json:"read"`
	Failed   int            `json:"failed"`
	ByType   map[string]int `json:"byType,omitempty"`
}

// --- Contacts ---

type Contact struct {
	ID               string     `json:"id"`
	WhatsappID       string     `json:"whatsappId"`
	Name             string     `json:"name,omitempty"`
	ProfilePicture   string     `json:"profilePicture,omitempty"`
	IsGroup          bool       `json:"isGroup"`
	IsBlocked        bool       `json:"isBlocked"`
	LastSeen         *time.Time `json:"lastSeen,omitempty"`
	MessagesSent     int        `json:"messagesSent"`
	MessagesReceived int        `json:"messagesReceived"`
}

type ContactUpdate struct {
	Name string `json:"name,omitempty"`
}

// ContactFilter narrows GET /api/contacts. Nil booleans mean "all".
type ContactFilter struct {
	Search    string
	IsGroup   *bool
	IsBlocked *bool
	Limit     int
}

func (f ContactFilter) Values() url.Values {
	v := url.Values{}
	setIf(v, "search", f.Search)
	if f.IsGroup != nil {
		v.Set("isGroup", strconv.FormatBool(*f.IsGroup))
	}
	if f.IsBlocked != nil {
		v.Set("isBlocked", strconv.FormatBool(*f.IsBlocked))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

// --- Media ---

type MediaUpload struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
}

// --- Webhooks ---

// WebhookEventTypes lists the event kinds a tenant can subscribe to, in
// display order.
var WebhookEventTypes = []string{
	"connection", "message", "message_status", "contact", "group",
	"presence", "qr_code", "pairing_code", "error",
}

// DefaultWebhookEvents is the subscription set offered to new tenants.
func DefaultWebhookEvents() map[string]bool {
	return map[string]bool{
		"connection":     true,
		"message":        true,
		"message_status": true,
		"contact":        false,
		"group":          false,
		"presence":       false,
		"qr_code":        true,
		"pairing_code":   true,
		"error":          true,
	}
}

type WebhookConfig struct {
	URL        string          `json:"url"`
	Enabled    bool            `json:"enabled"`
	EventTypes map[string]bool `json:"eventTypes,omitempty"`
}

type WebhookTestResult struct {
	Message      string `json:"message,omitempty"`
	StatusCode   int    `json:"statusCode,omitempty"`
	ResponseTime int    `json:"responseTime,omitempty"` // milliseconds
}

type WebhookLog struct {
	Event      string    `json:"event"`
	Status     string    `json:"status"`
	StatusCode int       `json:"statusCode,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func setIf(v url.Values, key, value string) {
	if value != "" && value != "all" {
		v.Set(key, value)
	}
}
