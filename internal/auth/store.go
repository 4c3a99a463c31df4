// Package auth owns the Tidal session lifecycle: credential persistence,
// device authorization, and token refresh.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/tidalarr/tidalarr/internal/constants"
)

// Credential is the session credential bundle persisted between runs. The
// embedded oauth2.Token carries the access/refresh tokens and expiry; the
// extra fields are Tidal-specific.
type Credential struct {
	oauth2.Token
	CountryCode string `json:"country_code,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// ValidFor reports whether the access token is usable for at least margin.
func (c *Credential) ValidFor(margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return false
	}
	return time.Until(c.Expiry) > margin
}

// Store persists the credential as a single JSON record at a fixed path.
type Store struct {
	path string
}

// NewStore creates a token store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted credential. A missing or unreadable file yields
// (nil, nil) so the caller falls through to a fresh device authorization; a
// present but corrupt file is reported as an error.
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &cred, nil
}

// Save writes the credential atomically: the JSON record goes to a temp file
// in the same directory, then replaces the old file with a rename so a crash
// mid-write never leaves a corrupt token behind.
func (s *Store) Save(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
