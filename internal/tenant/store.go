// Package tenant remembers which tenant the console is acting for. The
// selection, including its API key, lives in a small YAML file under the
// user's config directory.
package tenant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/marcostaira/app-whatsapp/internal/api"
)

const (
	fileName   = "tenant.yaml"
	appDirName = "wa-console"
)

// record is the on-disk form of the selected tenant.
type record struct {
	ID                   string    `yaml:"id"`
	Name                 string    `yaml:"name"`
	APIKey               string    `yaml:"api_key"`
	WebhookURL           string    `yaml:"webhook_url,omitempty"`
	ReceiveGroupMessages bool      `yaml:"receive_group_messages"`
	AutoReconnect        bool      `yaml:"auto_reconnect"`
	SelectedAt           time.Time `yaml:"selected_at"`
}

// Store reads and writes the selected tenant.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates a Store in dir. Pass an empty string to use the default
// config path.
func NewStore(dir string, logger zerolog.Logger) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{dir: dir, log: logger}
}

// Path returns the full path to the tenant file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Load returns the saved tenant, or nil when none is selected. A file that
// cannot be parsed, or that lacks an ID or API key, is removed and treated
// as no selection.
func (s *Store) Load() (*api.Tenant, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tenant: %w", err)
	}

	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil || rec.ID == "" || rec.APIKey == "" {
		s.log.Warn().Err(err).Str("path", s.Path()).Msg("discarding unreadable tenant file")
		if rmErr := os.Remove(s.Path()); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("removing tenant file: %w", rmErr)
		}
		return nil, nil
	}

	return &api.Tenant{
		ID:                   rec.ID,
		Name:                 rec.Name,
		APIKey:               rec.APIKey,
		WebhookURL:           rec.WebhookURL,
		ReceiveGroupMessages: rec.ReceiveGroupMessages,
		AutoReconnect:        rec.AutoReconnect,
	}, nil
}

// Save writes t atomically with owner-only permissions, since the file
// holds an API key.
func (s *Store) Save(t api.Tenant) error {
	if t.ID == "" || t.APIKey == "" {
		return errors.New("tenant needs an id and api key")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating tenant dir: %w", err)
	}

	data, err := yaml.Marshal(record{
		ID:                   t.ID,
		Name:                 t.Name,
		APIKey:               t.APIKey,
		WebhookURL:           t.WebhookURL,
		ReceiveGroupMessages: t.ReceiveGroupMessages,
		AutoReconnect:        t.AutoReconnect,
		SelectedAt:           time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling tenant: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tenant-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming tenant file: %w", err)
	}
	committed = true

	s.log.Info().Str("tenant", t.ID).Msg("tenant selected")
	return nil
}

// Clear forgets the selection. Clearing when nothing is saved is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing tenant file: %w", err)
	}
	return nil
}

// DefaultDir returns the wa-console directory under os.UserConfigDir,
// falling back to the temp dir.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName)
}
