package wasienv

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// SandboxFS is the default in-memory isolated filesystem backing. It has no
// host path exposure beyond explicit preopens and supports mounting
// additional file trees, such as dependency package volumes.
type SandboxFS struct {
	mu      sync.RWMutex
	nodes   map[string]*memNode
	limiter MemoryLimiter
}

type memNode struct {
	dir     bool
	data    []byte
	modTime time.Time
}

// NewSandboxFS creates an empty sandbox filesystem with only the root
// directory present.
func NewSandboxFS() *SandboxFS {
	return &SandboxFS{
		nodes: map[string]*memNode{
			"/": {dir: true, modTime: time.Now()},
		},
	}
}

// SetMemoryLimiter installs the limiter charged for file content bytes.
func (s *SandboxFS) SetMemoryLimiter(l MemoryLimiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = l
}

func cleanPath(p string) string {
	p = path.Clean("/" + p)
	return p
}

// MkdirAll creates the directory and any missing parents.
func (s *SandboxFS) MkdirAll(p string) error {
	p = cleanPath(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mkdirAllLocked(p)
}

func (s *SandboxFS) mkdirAllLocked(p string) error {
	if n, ok := s.nodes[p]; ok {
		if !n.dir {
			return fmt.Errorf("mkdir %s: %w", p, os.ErrExist)
		}
		return nil
	}
	if p != "/" {
		if err := s.mkdirAllLocked(path.Dir(p)); err != nil {
			return err
		}
	}
	s.nodes[p] = &memNode{dir: true, modTime: time.Now()}
	return nil
}

// WriteFile stores content at the path, creating missing parents.
func (s *SandboxFS) WriteFile(p string, data []byte) error {
	p = cleanPath(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[p]; ok && n.dir {
		return fmt.Errorf("write %s: is a directory", p)
	}
	if err := s.mkdirAllLocked(path.Dir(p)); err != nil {
		return err
	}
	var prev uint64
	if n, ok := s.nodes[p]; ok {
		prev = uint64(len(n.data))
	}
	if s.limiter != nil {
		if err := s.limiter.Reserve(uint64(len(data))); err != nil {
			return err
		}
		if prev > 0 {
			s.limiter.Release(prev)
		}
	}
	s.nodes[p] = &memNode{data: append([]byte(nil), data...), modTime: time.Now()}
	return nil
}

// ReadFile returns a copy of the file content.
func (s *SandboxFS) ReadFile(p string) ([]byte, error) {
	p = cleanPath(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, os.ErrNotExist)
	}
	if n.dir {
		return nil, fmt.Errorf("read %s: is a directory", p)
	}
	return append([]byte(nil), n.data...), nil
}

// Stat describes the entry at the path.
func (s *SandboxFS) Stat(p string) (FileInfo, error) {
	p = cleanPath(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, os.ErrNotExist)
	}
	return FileInfo{
		Name:    path.Base(p),
		Size:    int64(len(n.data)),
		Dir:     n.dir,
		ModTime: n.modTime,
	}, nil
}

// ReadDir lists the immediate children of the directory, sorted by name.
func (s *SandboxFS) ReadDir(p string) ([]FileInfo, error) {
	p = cleanPath(p)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[p]
	if !ok {
		return nil, fmt.Errorf("readdir %s: %w", p, os.ErrNotExist)
	}
	if !n.dir {
		return nil, fmt.Errorf("readdir %s: not a directory", p)
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	var out []FileInfo
	for name, node := range s.nodes {
		if name == p || !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		out = append(out, FileInfo{
			Name:    rest,
			Size:    int64(len(node.data)),
			Dir:     node.dir,
			ModTime: node.modTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Remove deletes a file or an empty directory.
func (s *SandboxFS) Remove(p string) error {
	p = cleanPath(p)
	if p == "/" {
		return fmt.Errorf("remove %s: %w", p, os.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("remove %s: %w", p, os.ErrNotExist)
	}
	if n.dir {
		prefix := p + "/"
		for name := range s.nodes {
			if strings.HasPrefix(name, prefix) {
				return fmt.Errorf("remove %s: directory not empty", p)
			}
		}
	}
	if s.limiter != nil && len(n.data) > 0 {
		s.limiter.Release(uint64(len(n.data)))
	}
	delete(s.nodes, p)
	return nil
}

// Mount unions the source tree of the other filesystem into this one under
// the destination path. Later mounts win on conflicting file names.
func (s *SandboxFS) Mount(dst string, other FileSystem, src string) error {
	dst = cleanPath(dst)
	src = cleanPath(src)
	if err := s.MkdirAll(dst); err != nil {
		return err
	}
	entries, err := other.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := path.Join(src, e.Name)
		to := path.Join(dst, e.Name)
		if e.Dir {
			if err := s.Mount(to, other, from); err != nil {
				return err
			}
			continue
		}
		data, err := other.ReadFile(from)
		if err != nil {
			return err
		}
		if err := s.WriteFile(to, data); err != nil {
			return err
		}
	}
	return nil
}

// memoryBudget is a fixed-size memory limiter.
type memoryBudget struct {
	mu    sync.Mutex
	limit uint64
	inUse uint64
}

// NewMemoryBudget returns a limiter that admits at most limit bytes.
func NewMemoryBudget(limit uint64) MemoryLimiter {
	return &memoryBudget{limit: limit}
}

func (m *memoryBudget) Reserve(n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inUse+n > m.limit {
		return fmt.Errorf("filesystem memory budget exceeded: %d + %d > %d", m.inUse, n, m.limit)
	}
	m.inUse += n
	return nil
}

func (m *memoryBudget) Release(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.inUse {
		m.inUse = 0
		return
	}
	m.inUse -= n
}
