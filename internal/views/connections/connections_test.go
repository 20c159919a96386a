package connections

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

type fakeLister struct {
	mu      sync.Mutex
	list    []api.Connection
	err     error
	calls   int
	deleted []string
}

func (f *fakeLister) Connections(context.Context) ([]api.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.list, f.err
}

func (f *fakeLister) DeleteConnection(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = m.Update(m.load()())
	return m
}

func TestLoadAndRender(t *testing.T) {
	f := &fakeLister{list: []api.Connection{
		{SessionID: "s1", IsConnected: true, ProfileData: &api.Profile{Name: "Loja", Phone: "5511@s.whatsapp.net"}},
		{SessionID: "s2", Status: "connecting"},
	}}
	m := loaded(t, New(context.Background(), f, time.Minute))

	v := m.View()
	for _, want := range []string{"Connections (2)", "s1", "Loja", "connected", "s2", "connecting"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestLoadError(t *testing.T) {
	f := &fakeLister{err: errors.New("offline")}
	m := loaded(t, New(context.Background(), f, time.Minute))
	if !strings.Contains(m.View(), "offline") {
		t.Error("load error should be shown")
	}
}

func TestStaleTickIgnored(t *testing.T) {
	f := &fakeLister{}
	m := New(context.Background(), f, time.Minute)
	m.Restart()

	m, cmd := m.Update(tickMsg{gen: m.gen - 1})
	if cmd != nil {
		t.Error("a tick from a replaced timer should not reload")
	}
	m, cmd = m.Update(tickMsg{gen: m.gen})
	if cmd == nil || !m.loading {
		t.Error("a current tick should reload and reschedule")
	}
}

func TestDeleteWithConfirmation(t *testing.T) {
	f := &fakeLister{list: []api.Connection{{SessionID: "s1"}, {SessionID: "s2"}}}
	m := loaded(t, New(context.Background(), f, time.Minute))

	m, _ = m.Update(runes("j"))
	m, _ = m.Update(runes("D"))
	if !m.Capturing() {
		t.Fatal("delete should ask first")
	}
	m, cmd := m.Update(runes("y"))
	if cmd == nil {
		t.Fatal("confirming should issue the delete")
	}
	m, _ = m.Update(cmd())
	if len(f.deleted) != 1 || f.deleted[0] != "s2" {
		t.Errorf("deleted = %v, want [s2]", f.deleted)
	}
}

func TestDeleteDeclined(t *testing.T) {
	f := &fakeLister{list: []api.Connection{{SessionID: "s1"}}}
	m := loaded(t, New(context.Background(), f, time.Minute))
	m, _ = m.Update(runes("D"))
	m, cmd := m.Update(runes("n"))
	if cmd != nil || m.Capturing() || len(f.deleted) != 0 {
		t.Error("declining should not delete")
	}
}

func TestCursorClampedAfterShrink(t *testing.T) {
	f := &fakeLister{list: []api.Connection{{SessionID: "a"}, {SessionID: "b"}, {SessionID: "c"}}}
	m := loaded(t, New(context.Background(), f, time.Minute))
	m.cursor = 2
	f.list = f.list[:1]
	m = loaded(t, m)
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
}
