package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bgbye/bgbye/internal/storage"
	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
)

const lockRetryDelay = 25 * time.Millisecond

// PreferenceStore keeps preferences in a TOML file guarded by an advisory
// lock, so a CLI and a server sharing the file do not clobber each other.
type PreferenceStore struct {
	path string
	lock *flock.Flock
}

var _ storage.PreferenceStore = (*PreferenceStore)(nil)

type document struct {
	Preferences map[string]string `toml:"preferences"`
}

// NewPreferenceStore creates a store backed by path. The file is created on first write.
func NewPreferenceStore(path string) (*PreferenceStore, error) {
	if path == "" {
		return nil, errors.New("preference file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create preference dir: %w", err)
		}
	}
	return &PreferenceStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the backing file.
func (s *PreferenceStore) Path() string {
	return s.path
}

// GetPreference reads a single key
func (s *PreferenceStore) GetPreference(ctx context.Context, key string) (string, bool, error) {
	ok, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", false, fmt.Errorf("lock preferences: %w", err)
	}
	if !ok {
		return "", false, errors.New("lock preferences: not acquired")
	}
	defer s.lock.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, found := doc.Preferences[key]
	return v, found, nil
}

// SetPreference rewrites the file with key set to value
func (s *PreferenceStore) SetPreference(ctx context.Context, key, value string) error {
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock preferences: %w", err)
	}
	if !ok {
		return errors.New("lock preferences: not acquired")
	}
	defer s.lock.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Preferences[key] = value

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

func (s *PreferenceStore) read() (*document, error) {
	doc := &document{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read preferences: %w", err)
	default:
		if err := toml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("decode preferences %s: %w", s.path, err)
		}
	}
	if doc.Preferences == nil {
		doc.Preferences = make(map[string]string)
	}
	return doc, nil
}
