package claimer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonesrussell/promowatch/internal/logger"
)

// Cookie is one persisted browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// SessionStore persists login cookies between runs so the browser does not
// have to log in on every claim.
type SessionStore struct {
	path string
	log  logger.Interface
}

// NewSessionStore creates a store backed by the given file path.
func NewSessionStore(path string, log logger.Interface) *SessionStore {
	return &SessionStore{path: path, log: log.WithComponent("session")}
}

// Load returns the persisted cookies. A missing file is an empty session,
// not an error: the first run has nothing to restore.
func (s *SessionStore) Load() ([]Cookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("no persisted session", "path", s.path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode session file %s: %w", s.path, err)
	}
	return cookies, nil
}

// Save overwrites the persisted session with the given cookies.
func (s *SessionStore) Save(cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	s.log.Debug("session persisted", "path", s.path, "cookies", len(cookies))
	return nil
}
