package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// FileStore keeps one JSON file per conversation under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.Dir, id+".json")
}

func (f *FileStore) Load(_ context.Context, id string) (session.State, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s session.State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if s == nil {
		s = session.State{}
	}
	return s, nil
}

// Save writes through a temporary file so readers never see a partial record.
func (f *FileStore) Save(_ context.Context, id string, s session.State) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.Clone(), "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, id+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(id))
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
