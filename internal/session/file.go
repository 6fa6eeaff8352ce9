package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister keeps the session in a JSON file readable only by the
// owner. It is the terminal client's equivalent of browser storage.
type FilePersister struct {
	Path   string
	Sealer *Sealer
}

// DefaultPath returns the session file location under the user config dir
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "roadguard", "session.json")
}

// Load implements Persister. A missing file means no session.
func (p *FilePersister) Load() (*Session, error) {
	data, err := os.ReadFile(p.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Path, err)
	}
	if s.Token, err = p.Sealer.Open(s.Token); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save implements Persister
func (p *FilePersister) Save(s Session) error {
	sealed, err := p.Sealer.Seal(s.Token)
	if err != nil {
		return err
	}
	s.Token = sealed

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.Path, data, 0o600)
}

// Clear implements Persister
func (p *FilePersister) Clear() error {
	err := os.Remove(p.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
