package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, token string) (*Server, *httptest.Server) {
	t.Helper()
	store := NewStore(100)
	b := NewBroadcaster(store, zerolog.Nop())
	s := NewServer(store, b, Options{
		Port:     3005,
		Token:    token,
		Gatherer: prometheus.NewRegistry(),
		Logger:   zerolog.Nop(),
	})
	r := mux.NewRouter()
	s.SetupRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return s, srv
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWebhookRecordsEvent(t *testing.T) {
	s, srv := newTestServer(t, "")

	body := `{"event":"message","sessionId":"s1","data":{"content":"oi"}}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode(t, resp)
	if out["success"] != true || out["eventId"] == "" {
		t.Errorf("response = %v", out)
	}

	events := s.store.List(0)
	if len(events) != 1 {
		t.Fatalf("stored %d events, want 1", len(events))
	}
	ev := events[0]
	if string(ev.Body) != body {
		t.Errorf("Body = %s", ev.Body)
	}
	if ev.Headers["content-type"] != "application/json" {
		t.Errorf("Headers = %v", ev.Headers)
	}
	if ev.IP != "127.0.0.1" {
		t.Errorf("IP = %q", ev.IP)
	}
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	s, srv := newTestServer(t, "")
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if s.store.Len() != 0 {
		t.Error("invalid body was recorded")
	}
}

func TestWebhookAcceptsForm(t *testing.T) {
	s, srv := newTestServer(t, "")
	resp, err := http.Post(srv.URL+"/webhook", "application/x-www-form-urlencoded", strings.NewReader("event=message&sessionId=s1"))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := eventName(s.store.List(1)[0].Body); got != "message" {
		t.Errorf("event = %q, want message", got)
	}
}

func TestEventsListAndClear(t *testing.T) {
	s, srv := newTestServer(t, "")
	for i := 0; i < 60; i++ {
		s.Ingest(&Event{Body: json.RawMessage(`{}`)})
	}

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	out := decode(t, resp)
	if out["total"].(float64) != 60 {
		t.Errorf("total = %v, want 60", out["total"])
	}
	if n := len(out["events"].([]interface{})); n != 50 {
		t.Errorf("default page = %d events, want 50", n)
	}

	resp, _ = http.Get(srv.URL + "/events?limit=5")
	if n := len(decode(t, resp)["events"].([]interface{})); n != 5 {
		t.Errorf("limit=5 returned %d", n)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/events", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /events: %v", err)
	}
	out = decode(t, resp)
	if out["count"].(float64) != 60 {
		t.Errorf("count = %v, want 60", out["count"])
	}
	if s.store.Len() != 0 {
		t.Error("events not cleared")
	}
}

func TestStatus(t *testing.T) {
	s, srv := newTestServer(t, "")
	s.Ingest(&Event{})

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	out := decode(t, resp)
	if out["status"] != "online" || out["eventsReceived"].(float64) != 1 {
		t.Errorf("status = %v", out)
	}
	endpoints := out["endpoints"].(map[string]interface{})
	if endpoints["webhook"] != srv.URL+"/webhook" {
		t.Errorf("webhook endpoint = %v", endpoints["webhook"])
	}
}

func TestSimulate(t *testing.T) {
	s, srv := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/simulate/pairing_code", "application/json", strings.NewReader(`{"sessionId":"s9"}`))
	if err != nil {
		t.Fatalf("POST /simulate: %v", err)
	}
	out := decode(t, resp)
	if out["success"] != true {
		t.Fatalf("response = %v", out)
	}

	waitFor(t, "simulated event", func() bool { return s.store.Len() == 1 })
	ev := s.store.List(1)[0]
	if !ev.Simulated {
		t.Error("event not marked simulated")
	}
	var hook Webhook
	if err := json.Unmarshal(ev.Body, &hook); err != nil {
		t.Fatalf("body: %v", err)
	}
	if hook.Event != EventPairingCode || hook.SessionID != "s9" {
		t.Errorf("hook = %+v", hook)
	}
}

func TestSimulateUnsupported(t *testing.T) {
	_, srv := newTestServer(t, "")
	resp, err := http.Post(srv.URL+"/simulate/presence", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /simulate: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	out := decode(t, resp)
	if types, ok := out["supportedTypes"].([]interface{}); !ok || len(types) != 3 {
		t.Errorf("supportedTypes = %v", out["supportedTypes"])
	}
}

func TestTokenRequired(t *testing.T) {
	_, srv := newTestServer(t, "secret")

	tests := []struct {
		name   string
		url    string
		header map[string]string
		want   int
	}{
		{"no token", "/events", nil, http.StatusUnauthorized},
		{"query token", "/events?token=secret", nil, http.StatusOK},
		{"header token", "/events", map[string]string{"X-Relay-Token": "secret"}, http.StatusOK},
		{"bearer token", "/events", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"wrong token", "/events?token=nope", nil, http.StatusUnauthorized},
		{"status is open", "/status", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+tt.url, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("webhook should stay open to the API, got %d", resp.StatusCode)
	}
}

func TestWrongMethod(t *testing.T) {
	_, srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/webhook")
	if err != nil {
		t.Fatalf("GET /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestWebSocketSnapshotThenEvents(t *testing.T) {
	s, srv := newTestServer(t, "")
	s.Ingest(&Event{ID: "old", Body: json.RawMessage(`{"event":"qr_code"}`)})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap struct {
		Type    MessageType     `json:"type"`
		Payload SnapshotPayload `json:"payload"`
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != MsgSnapshot || len(snap.Payload.Events) != 1 || snap.Payload.Events[0].ID != "old" {
		t.Errorf("snapshot = %+v", snap)
	}

	waitFor(t, "client registered", func() bool { return s.broadcaster.ClientCount() == 1 })
	s.Ingest(&Event{ID: "new", Body: json.RawMessage(`{"event":"connection"}`)})

	var msg struct {
		Type    MessageType `json:"type"`
		Seq     uint64      `json:"seq"`
		Payload Event       `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != MsgEvent || msg.Payload.ID != "new" {
		t.Errorf("event message = %+v", msg)
	}
	if msg.Seq <= 1 {
		t.Errorf("Seq = %d, want increasing after snapshot", msg.Seq)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(NewStore(1), NewBroadcaster(NewStore(1), zerolog.Nop()), Options{Logger: zerolog.Nop()})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://relay.local", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://relay.local/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := s.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
