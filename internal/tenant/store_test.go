package tenant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir(), zerolog.Nop())
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewStore(dir, zerolog.Nop())

	in := api.Tenant{ID: "t1", Name: "Loja", APIKey: "k-1", WebhookURL: "https://x.example/webhook", AutoReconnect: true}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got == nil || got.ID != "t1" || got.Name != "Loja" || got.APIKey != "k-1" || !got.AutoReconnect || got.WebhookURL != in.WebhookURL {
		t.Errorf("Load() = %+v", got)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the tenant file", len(entries))
	}
}

func TestSaveRequiresKey(t *testing.T) {
	s := NewStore(t.TempDir(), zerolog.Nop())
	if err := s.Save(api.Tenant{ID: "t1"}); err == nil {
		t.Error("Save without API key should fail")
	}
}

func TestCorruptFileRemoved(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "{{{ nope"},
		{"missing key", "id: t1\nname: Loja\n"},
		{"wrong shape", "- a\n- b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir(), zerolog.Nop())
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := s.Load()
			if err != nil || got != nil {
				t.Fatalf("Load() = %+v, %v; want nil, nil", got, err)
			}
			if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
				t.Error("corrupt tenant file was not removed")
			}
		})
	}
}

func TestClear(t *testing.T) {
	s := NewStore(t.TempDir(), zerolog.Nop())
	if err := s.Clear(); err != nil {
		t.Errorf("Clear() on empty store: %v", err)
	}
	if err := s.Save(api.Tenant{ID: "t1", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if got, _ := s.Load(); got != nil {
		t.Errorf("Load() after Clear = %+v", got)
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg-home")
	t.Setenv("HOME", "/tmp/home")
	if got := DefaultDir(); filepath.Base(got) != appDirName {
		t.Errorf("DefaultDir() = %q", got)
	}
}
