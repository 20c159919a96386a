package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/push"
	"github.com/marcostaira/app-whatsapp/internal/reconciler"
	"github.com/marcostaira/app-whatsapp/internal/tenant"
	"github.com/marcostaira/app-whatsapp/internal/views/connection"
	"github.com/marcostaira/app-whatsapp/internal/views/status"
	"github.com/marcostaira/app-whatsapp/internal/views/tenants"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+d":
		return tea.KeyMsg{Type: tea.KeyCtrlD}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m
}

// fakeAPI answers the routes the dashboard touches while switching tenants.
func fakeAPI(t *testing.T, conns []api.Connection) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var data interface{}
		switch r.URL.Path {
		case "/health":
			json.NewEncoder(w).Encode(api.Health{Success: true, Status: "ok"})
			return
		case "/api/connections":
			data = conns
		default:
			data = []interface{}{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
	}))
	t.Cleanup(srv.Close)
	return api.New(srv.URL, "", api.Options{})
}

func TestTabsRequireTenant(t *testing.T) {
	m := New(Options{})

	m = press(t, m, "3")
	if m.tab != TabTenants {
		t.Errorf("tab = %v without a tenant, want Tenants", m.tab)
	}
	m = press(t, m, "7")
	if m.tab != TabGuide {
		t.Errorf("tab = %v, want Guide to stay reachable", m.tab)
	}
	m = press(t, m, "tab")
	if m.tab != TabTenants {
		t.Errorf("tab = %v after wrap-around, want Tenants", m.tab)
	}
}

func TestDebugOverlay(t *testing.T) {
	m := New(Options{})
	m.width = 100
	m.height = 30

	m = press(t, m, "ctrl+d")
	if m.overlay != OverlayDebug {
		t.Fatal("ctrl+d should open the event log")
	}
	if !strings.Contains(m.View(), "EVENT LOG") {
		t.Error("overlay should render the event log")
	}

	// Keys go to the overlay, not the tabs.
	m = press(t, m, "7")
	if m.tab != TabTenants {
		t.Errorf("tab = %v while the overlay is open", m.tab)
	}

	m = press(t, m, "esc")
	if m.overlay != OverlayNone {
		t.Error("esc should close the overlay")
	}
}

func TestHealth(t *testing.T) {
	m := New(Options{})

	next, _ := m.Update(healthMsg{err: errors.New("connection refused")})
	m = next.(Model)
	if m.statusBar.API != status.APIOffline {
		t.Errorf("API = %v, want offline", m.statusBar.API)
	}

	next, _ = m.Update(healthMsg{})
	m = next.(Model)
	if m.statusBar.API != status.APIOnline {
		t.Errorf("API = %v, want online", m.statusBar.API)
	}

	c := fakeAPI(t, nil)
	m = New(Options{API: c})
	if msg := m.checkHealth()(); msg.(healthMsg).err != nil {
		t.Errorf("checkHealth() = %v", msg.(healthMsg).err)
	}
}

func TestSelectTenantAndLogout(t *testing.T) {
	c := fakeAPI(t, []api.Connection{{SessionID: "s1", IsConnected: true}})
	store := tenant.NewStore(t.TempDir(), zerolog.Nop())
	m := New(Options{API: c, Tenants: store})

	acme := api.Tenant{ID: "t1", Name: "Acme", APIKey: "key-1"}
	next, cmd := m.Update(tenants.SelectedMsg{Tenant: acme})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("selecting a tenant should start loading")
	}
	if m.tab != TabConnection {
		t.Errorf("tab = %v, want Connection", m.tab)
	}
	if c.APIKey() != "key-1" {
		t.Errorf("APIKey = %q", c.APIKey())
	}
	if m.rec == nil {
		t.Fatal("no reconciler for the tenant")
	}
	saved, err := store.Load()
	if err != nil || saved == nil || saved.ID != "t1" {
		t.Fatalf("store.Load() = %+v, %v", saved, err)
	}

	if msg := m.discover()(); msg.(discoveredMsg).err != nil {
		t.Fatalf("discover: %v", msg.(discoveredMsg).err)
	}
	s := m.rec.Session()
	if s.SessionID != "s1" || s.Status != reconciler.Connected {
		t.Errorf("session after discover = %+v", s)
	}

	next, _ = m.Update(connection.ChangedMsg{Session: s, Cause: reconciler.CauseDiscover})
	m = next.(Model)
	if m.statusBar.Connection != "connected" || m.statusBar.SessionID != "s1" {
		t.Errorf("status bar = %q %q", m.statusBar.Connection, m.statusBar.SessionID)
	}

	rec := m.rec
	next, _ = m.Update(tenants.LogoutMsg{})
	m = next.(Model)
	if m.rec != nil || m.tenant != nil {
		t.Error("logout should drop the tenant and its reconciler")
	}
	if _, err := rec.Discover(m.ctx); !errors.Is(err, reconciler.ErrClosed) {
		t.Errorf("old reconciler still usable: %v", err)
	}
	if c.APIKey() != "" {
		t.Errorf("APIKey = %q after logout", c.APIKey())
	}
	if saved, _ := store.Load(); saved != nil {
		t.Errorf("tenant still saved: %+v", saved)
	}
	if m.tab != TabTenants {
		t.Errorf("tab = %v after logout", m.tab)
	}
}

func TestRestoresSavedTenant(t *testing.T) {
	store := tenant.NewStore(t.TempDir(), zerolog.Nop())
	if err := store.Save(api.Tenant{ID: "t1", Name: "Acme", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}

	m := New(Options{API: fakeAPI(t, nil), Tenants: store})
	if m.tenant == nil || m.tenant.ID != "t1" {
		t.Fatalf("tenant = %+v, want restored", m.tenant)
	}
	if m.tab != TabConnection {
		t.Errorf("tab = %v, want Connection", m.tab)
	}
	if m.statusBar.Tenant != "Acme" {
		t.Errorf("status tenant = %q", m.statusBar.Tenant)
	}
}

func TestApplyPush(t *testing.T) {
	m := New(Options{API: fakeAPI(t, nil)})
	next, _ := m.Update(tenants.SelectedMsg{Tenant: api.Tenant{ID: "t1", Name: "Acme", APIKey: "k"}})
	m = next.(Model)

	yes := true
	ev := &reconciler.StatusEvent{SessionID: "s1", IsConnected: &yes}
	tests := []struct {
		name  string
		msg   push.EventMsg
		apply bool
	}{
		{name: "own tenant", msg: push.EventMsg{Webhook: &push.Webhook{TenantID: "t1"}, Status: ev}, apply: true},
		{name: "no tenant on event", msg: push.EventMsg{Webhook: &push.Webhook{}, Status: ev}, apply: true},
		{name: "other tenant", msg: push.EventMsg{Webhook: &push.Webhook{TenantID: "t2"}, Status: ev}},
		{name: "not a status event", msg: push.EventMsg{Webhook: &push.Webhook{TenantID: "t1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.applyPush(tt.msg) != nil; got != tt.apply {
				t.Errorf("applyPush() scheduled = %v, want %v", got, tt.apply)
			}
		})
	}
}

func TestRelayRejectedToken(t *testing.T) {
	m := New(Options{})
	m.statusBar.Feed = status.FeedLive

	next, cmd := m.Update(push.DisconnectedMsg{Err: push.ErrUnauthorized})
	m = next.(Model)
	if cmd != nil {
		t.Error("a rejected token should not reconnect")
	}
	if m.statusBar.Feed != status.FeedOff {
		t.Errorf("feed = %v, want off", m.statusBar.Feed)
	}
}

func TestForwardDropsWhenFull(t *testing.T) {
	ch := make(chan bridgeMsg, 1)
	forward(ch, bridgeMsg{msg: healthTickMsg{}})
	forward(ch, bridgeMsg{msg: healthTickMsg{}})
	if len(ch) != 1 {
		t.Errorf("len = %d, want 1", len(ch))
	}
}

func TestBridgeRearms(t *testing.T) {
	m := New(Options{})
	m.bridge <- bridgeMsg{gen: m.recGen, msg: healthMsg{}}

	msg := m.listenBridge()()
	b, ok := msg.(bridgeMsg)
	if !ok {
		t.Fatalf("listenBridge() = %T", msg)
	}
	next, cmd := m.Update(b)
	if next.(Model).statusBar.API != status.APIOnline {
		t.Error("bridged message was not handled")
	}
	if cmd == nil {
		t.Error("bridge listener not re-armed")
	}
}

func TestViewBeforeSize(t *testing.T) {
	if v := New(Options{}).View(); v != "Initializing..." {
		t.Errorf("View() = %q", v)
	}
}

func TestBridgeDropsStaleReconciler(t *testing.T) {
	m := New(Options{API: fakeAPI(t, nil)})
	next, _ := m.Update(tenants.SelectedMsg{Tenant: api.Tenant{ID: "t1", Name: "Acme", APIKey: "k1"}})
	m = next.(Model)
	oldGen := m.recGen

	next, _ = m.Update(tenants.SelectedMsg{Tenant: api.Tenant{ID: "t2", Name: "Beta", APIKey: "k2"}})
	m = next.(Model)
	if m.recGen == oldGen {
		t.Fatal("switching tenant should start a new reconciler generation")
	}

	stale := bridgeMsg{gen: oldGen, msg: connection.ChangedMsg{
		Session: reconciler.Session{SessionID: "old"},
		Cause:   reconciler.CauseDelete,
	}}
	next, cmd := m.Update(stale)
	m = next.(Model)
	if m.connV.Notice != "" {
		t.Errorf("Notice = %q from the previous tenant's reconciler", m.connV.Notice)
	}
	if cmd == nil {
		t.Error("bridge listener not re-armed after a dropped message")
	}

	current := bridgeMsg{gen: m.recGen, msg: connection.ChangedMsg{
		Session: m.rec.Session(),
		Cause:   reconciler.CauseDelete,
	}}
	next, _ = m.Update(current)
	if next.(Model).connV.Notice == "" {
		t.Error("a change from the current reconciler should reach the view")
	}
}
