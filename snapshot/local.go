package snapshot

import (
	"os"
	"path/filepath"

	"github.com/guestbox/guestbox/wasienv"
)

type localStore struct {
	dir string
}

// NewLocalStore creates a snapshot store persisting into the directory, so
// suspended continuations survive a process restart.
func NewLocalStore(dir string) (Store, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &localStore{dir: dir}, nil
}

func (s *localStore) Add(rs wasienv.RewindState) (string, error) {
	id, data, err := encode(rs)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, id), data, 0o644); err != nil {
		return "", err
	}
	return id, nil
}

func (s *localStore) Get(id string) (wasienv.RewindState, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(id)))
	if os.IsNotExist(err) {
		return wasienv.RewindState{}, ErrNotExist
	} else if err != nil {
		return wasienv.RewindState{}, err
	}
	return decode(data)
}

func (s *localStore) Remove(id string) bool {
	p := filepath.Join(s.dir, filepath.Base(id))
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return false
	}
	return os.Remove(p) == nil
}

func (s *localStore) List() []string {
	fi, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(fi))
	for _, f := range fi {
		if !f.IsDir() {
			ids = append(ids, f.Name())
		}
	}
	return ids
}
