package tenants

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

type fakeDir struct {
	list    []api.Tenant
	created []api.TenantInput
}

func (f *fakeDir) Tenants(context.Context) ([]api.Tenant, error) { return f.list, nil }

func (f *fakeDir) CreateTenant(_ context.Context, in api.TenantInput) (*api.Tenant, error) {
	f.created = append(f.created, in)
	return &api.Tenant{ID: "new", Name: in.Name, APIKey: "k-new"}, nil
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func loaded(m Model) Model {
	m, _ = m.Update(m.load()())
	return m
}

func TestSelectTenant(t *testing.T) {
	d := &fakeDir{list: []api.Tenant{{ID: "a", Name: "A", APIKey: "ka"}, {ID: "b", Name: "B", APIKey: "kb"}}}
	m := loaded(New(context.Background(), d))

	m, _ = m.Update(runes("j"))
	_, cmd := m.Update(enter)
	if cmd == nil {
		t.Fatal("enter should select")
	}
	sel, ok := cmd().(SelectedMsg)
	if !ok || sel.Tenant.ID != "b" {
		t.Errorf("got %#v, want SelectedMsg for b", cmd())
	}
}

func TestSelectWithoutKey(t *testing.T) {
	d := &fakeDir{list: []api.Tenant{{ID: "a", Name: "A"}}}
	m := loaded(New(context.Background(), d))
	m, cmd := m.Update(enter)
	if cmd != nil || m.Err == "" {
		t.Error("a tenant without an API key cannot be selected")
	}
}

func TestCreateTenant(t *testing.T) {
	d := &fakeDir{}
	m := loaded(New(context.Background(), d))

	m, _ = m.Update(runes("n"))
	if !m.Capturing() {
		t.Fatal("n should open the form")
	}
	m, _ = m.Update(runes("Loja"))
	m, _ = m.Update(tab)
	m, _ = m.Update(tab)
	m, _ = m.Update(space) // groups off
	m, cmd := m.Update(enter)
	if cmd == nil {
		t.Fatal("enter should submit")
	}
	m, cmd = m.Update(cmd())
	if len(d.created) != 1 {
		t.Fatalf("created = %v", d.created)
	}
	in := d.created[0]
	if in.Name != "Loja" || in.ReceiveGroupMessages || !in.AutoReconnect {
		t.Errorf("input = %+v", in)
	}
	if m.Capturing() {
		t.Error("form should close after creation")
	}
	if sel, ok := cmd().(SelectedMsg); !ok || sel.Tenant.ID != "new" {
		t.Error("a new tenant should be selected right away")
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		keys    []tea.KeyMsg
		wantErr string
	}{
		{"empty name", nil, "name is required"},
		{"bad webhook", []tea.KeyMsg{runes("Loja"), tab, runes("ftp://x")}, "invalid URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDir{}
			m := loaded(New(context.Background(), d))
			m, _ = m.Update(runes("n"))
			for _, k := range tt.keys {
				m, _ = m.Update(k)
			}
			m, cmd := m.Update(enter)
			if cmd != nil {
				t.Fatal("invalid form must not submit")
			}
			if !strings.Contains(m.Err, tt.wantErr) {
				t.Errorf("Err = %q, want %q", m.Err, tt.wantErr)
			}
		})
	}
}

func TestCancelForm(t *testing.T) {
	m := loaded(New(context.Background(), &fakeDir{}))
	m, _ = m.Update(runes("n"))
	m, _ = m.Update(runes("x"))
	m, _ = m.Update(esc)
	if m.Capturing() || m.name.Value() != "" {
		t.Error("esc should close and clear the form")
	}
}

func TestLogout(t *testing.T) {
	m := loaded(New(context.Background(), &fakeDir{}))
	if _, cmd := m.Update(runes("L")); cmd != nil {
		t.Error("logout without a tenant should do nothing")
	}
	m.SetCurrent(&api.Tenant{ID: "a", Name: "A"})
	_, cmd := m.Update(runes("L"))
	if cmd == nil {
		t.Fatal("L should log out")
	}
	if _, ok := cmd().(LogoutMsg); !ok {
		t.Error("expected LogoutMsg")
	}
	if !strings.Contains(m.View(), "acting as") {
		t.Error("view should show the current tenant")
	}
}
