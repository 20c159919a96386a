package contacts

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

type fakeDir struct {
	list      []api.Contact
	filters   []api.ContactFilter
	queries   []string
	blocked   []string
	unblocked []string
}

func (f *fakeDir) Contacts(_ context.Context, fl api.ContactFilter) ([]api.Contact, error) {
	f.filters = append(f.filters, fl)
	return f.list, nil
}

func (f *fakeDir) SearchContacts(_ context.Context, q string, _ int) ([]api.Contact, error) {
	f.queries = append(f.queries, q)
	return f.list[:1], nil
}

func (f *fakeDir) BlockContact(_ context.Context, id string) error {
	f.blocked = append(f.blocked, id)
	return nil
}

func (f *fakeDir) UnblockContact(_ context.Context, id string) error {
	f.unblocked = append(f.unblocked, id)
	return nil
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func run(m Model, cmd tea.Cmd) Model {
	if cmd != nil {
		m, _ = m.Update(cmd())
	}
	return m
}

func newLoaded(f *fakeDir) Model {
	m := New(context.Background(), f)
	return run(m, m.Load())
}

func sample() *fakeDir {
	return &fakeDir{list: []api.Contact{
		{WhatsappID: "5511999999999@s.whatsapp.net", Name: "Ana"},
		{WhatsappID: "1203@g.us", Name: "Equipe", IsGroup: true, IsBlocked: true},
	}}
}

func TestLoadOnce(t *testing.T) {
	f := sample()
	m := newLoaded(f)
	if cmd := m.Load(); cmd != nil {
		t.Error("second Load should be a no-op")
	}
	v := m.View()
	for _, want := range []string{"Ana", "Equipe", "[group]", "[blocked]"} {
		if !strings.Contains(v, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	m.Reset()
	if m.Load() == nil {
		t.Error("Load after Reset should fetch again")
	}
}

func TestGroupFilter(t *testing.T) {
	f := sample()
	m := newLoaded(f)
	m, cmd := m.Update(runes("g"))
	m = run(m, cmd)
	last := f.filters[len(f.filters)-1]
	if last.IsGroup == nil || *last.IsGroup {
		t.Errorf("filter = %+v, want isGroup=false", last)
	}
	m, cmd = m.Update(runes("g"))
	run(m, cmd)
	last = f.filters[len(f.filters)-1]
	if last.IsGroup == nil || !*last.IsGroup {
		t.Errorf("filter = %+v, want isGroup=true", last)
	}
}

func TestSearch(t *testing.T) {
	f := sample()
	m := newLoaded(f)
	m, _ = m.Update(runes("/"))
	if !m.Capturing() {
		t.Fatal("/ should open search")
	}
	m, _ = m.Update(runes("ana"))
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = run(m, cmd)
	if len(f.queries) != 1 || f.queries[0] != "ana" {
		t.Errorf("queries = %v", f.queries)
	}
	if len(m.list) != 1 {
		t.Errorf("list = %v", m.list)
	}
}

func TestEmptySearchLists(t *testing.T) {
	f := sample()
	m := newLoaded(f)
	m, _ = m.Update(runes("/"))
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	run(m, cmd)
	if len(f.queries) != 0 || len(f.filters) != 2 {
		t.Errorf("queries = %v, filters = %d", f.queries, len(f.filters))
	}
}

func TestBlockToggle(t *testing.T) {
	f := sample()
	m := newLoaded(f)

	m, cmd := m.Update(runes("b"))
	m = run(m, cmd)
	if len(f.blocked) != 1 || !m.list[0].IsBlocked {
		t.Errorf("blocked = %v, list[0] = %+v", f.blocked, m.list[0])
	}

	m, _ = m.Update(runes("j"))
	m, cmd = m.Update(runes("b"))
	m = run(m, cmd)
	if len(f.unblocked) != 1 || m.list[1].IsBlocked {
		t.Errorf("unblocked = %v, list[1] = %+v", f.unblocked, m.list[1])
	}
	if !strings.Contains(m.Notice, "Unblocked") {
		t.Errorf("Notice = %q", m.Notice)
	}
}
