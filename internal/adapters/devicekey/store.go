package devicekey

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mikey-austin/playsync/internal/ports"
)

// Store keeps one transport key per device name under XDG_STATE_HOME or
// ~/.local/state, so a restarted client reconnects as the same device.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a key store at the default location.
func NewStore() (*Store, error) {
	path, err := keyPath()
	if err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// NewStoreAt creates a key store backed by path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Get returns the stored key for a device name.
func (s *Store) Get(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAll()
	if err != nil {
		return "", false, err
	}
	key, ok := data[name]
	return key, ok, nil
}

// Ensure returns the stored key for name, generating and saving one when
// none exists.
func (s *Store) Ensure(name string, gen ports.IDGen) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("device name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAll()
	if err != nil {
		return "", err
	}
	if key, ok := data[name]; ok && key != "" {
		return key, nil
	}
	key := gen.NewID()
	if key == "" {
		return "", errors.New("failed to generate device key")
	}
	data[name] = key
	if err := s.writeAll(data); err != nil {
		return "", err
	}
	return key, nil
}

// Clear forgets the key for a device name.
func (s *Store) Clear(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAll()
	if err != nil {
		return err
	}
	delete(data, name)
	return s.writeAll(data)
}

func (s *Store) readAll() (map[string]string, error) {
	data := map[string]string{}
	file, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return nil, err
	}
	if len(file) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) writeAll(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, payload, 0o600)
}

func keyPath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "ps", "devices.json"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "ps", "devices.json"), nil
}
