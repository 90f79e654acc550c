package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CacheFileName is the name of the persisted session file.
const CacheFileName = "apex_auth_session.json"

// ErrNoSession is returned by FileCache.Load when nobody is signed in.
var ErrNoSession = errors.New("not signed in")

// FileCache persists the current client session across process restarts.
type FileCache struct {
	path string
}

// NewFileCache keeps the session file in dir.
func NewFileCache(dir string) *FileCache {
	return &FileCache{path: filepath.Join(dir, CacheFileName)}
}

func (c *FileCache) Path() string { return c.path }

// Save writes o, replacing any previous session.
func (c *FileCache) Save(o Outcome) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing session: %w", err)
	}
	return nil
}

// Load returns the saved session, or ErrNoSession.
func (c *FileCache) Load() (Outcome, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return Outcome{}, ErrNoSession
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("reading session: %w", err)
	}

	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return Outcome{}, fmt.Errorf("decoding session %s: %w", c.path, err)
	}
	if o.Session.UserID == "" {
		return Outcome{}, ErrNoSession
	}
	return o, nil
}

// Clear removes the saved session. Clearing when signed out is not an error.
func (c *FileCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}
