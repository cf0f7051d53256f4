package wasienv

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Well known descriptor slots.
const (
	FdStdin  Fd = 0
	FdStdout Fd = 1
	FdStderr Fd = 2
)

// Fd is a guest visible file descriptor.
type Fd uint32

// FileInfo describes a filesystem entry of a backing.
type FileInfo struct {
	Name    string
	Size    int64
	Dir     bool
	ModTime time.Time
}

// FileSystem is the filesystem collaborator interface backing a guest's
// virtual view. Implementations must allow concurrent readers.
type FileSystem interface {
	MkdirAll(path string) error
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
	Stat(path string) (FileInfo, error)
	ReadDir(path string) ([]FileInfo, error)
	Remove(path string) error
}

// MemoryLimiter bounds the bytes an in-memory filesystem may hold.
type MemoryLimiter interface {
	Reserve(n uint64) error
	Release(n uint64)
}

// FsRoot is the tagged filesystem backing selection: an owned in-memory
// sandbox or an externally supplied backing.
type FsRoot struct {
	sandbox *SandboxFS
	backing FileSystem
}

// SandboxRoot selects an owned in-memory sandbox backing.
func SandboxRoot(fs *SandboxFS) FsRoot {
	return FsRoot{sandbox: fs}
}

// BackingRoot selects an externally supplied backing.
func BackingRoot(fs FileSystem) FsRoot {
	return FsRoot{backing: fs}
}

// FS returns the selected backing filesystem.
func (r FsRoot) FS() FileSystem {
	if r.sandbox != nil {
		return r.sandbox
	}
	return r.backing
}

// Sandbox returns the owned sandbox backing if this root holds one.
func (r FsRoot) Sandbox() (*SandboxFS, bool) {
	return r.sandbox, r.sandbox != nil
}

// SetMemoryLimiter installs a memory limiter on the sandbox backing.
// Calling it on an externally backed root is an error.
func (r FsRoot) SetMemoryLimiter(l MemoryLimiter) error {
	if r.sandbox == nil {
		return fmt.Errorf("%w: memory limiter requires a sandbox backing", ErrBadRequest)
	}
	r.sandbox.SetMemoryLimiter(l)
	return nil
}

func (r FsRoot) empty() bool { return r.sandbox == nil && r.backing == nil }

// Inodes allocates inode identities for the assembled filesystem state.
type Inodes struct {
	next atomic.Uint64
}

// NewInodes creates an empty inode table.
func NewInodes() *Inodes {
	return &Inodes{}
}

// Alloc returns a fresh inode number.
func (i *Inodes) Alloc() uint64 {
	return i.next.Add(1)
}

// FsState is the assembled filesystem view for one guest: the chosen
// backing, the validated preopens and the well known descriptor bindings.
type FsState struct {
	root     FsRoot
	inodes   *Inodes
	preopens []PreopenedDir
	vfs      []string

	mu  sync.Mutex
	fds map[Fd]File
	ino map[string]uint64 // guest name to inode
}

// NewFsState constructs the filesystem state from preopens, virtual
// preopens and the chosen backing. It reports any inconsistency, such as
// overlapping guest visible names, without applying partial state.
func NewFsState(inodes *Inodes, preopens []PreopenedDir, vfsPreopens []string, root FsRoot) (*FsState, error) {
	if root.empty() {
		return nil, &FsCreationError{Detail: "no filesystem backing selected"}
	}

	seen := make(map[string]bool, len(preopens))
	ino := make(map[string]uint64, len(preopens)+len(vfsPreopens))
	for _, p := range preopens {
		if st, err := os.Stat(p.Path); err != nil {
			return nil, &PreopenDirNotFoundError{Path: p.Path}
		} else if !st.IsDir() {
			return nil, &FsCreationError{Detail: fmt.Sprintf("preopen %q is not a directory", p.Path)}
		}
		name := p.GuestName()
		if seen[name] {
			return nil, &FsCreationError{Detail: fmt.Sprintf("overlapping preopen name %q", name)}
		}
		seen[name] = true
		ino[name] = inodes.Alloc()
	}
	for _, p := range vfsPreopens {
		if seen[p] {
			return nil, &FsCreationError{Detail: fmt.Sprintf("overlapping virtual preopen %q", p)}
		}
		seen[p] = true
		if err := root.FS().MkdirAll(p); err != nil {
			return nil, &FsCreationError{Detail: fmt.Sprintf("virtual preopen %q: %v", p, err)}
		}
		ino[p] = inodes.Alloc()
	}

	return &FsState{
		root:     root,
		inodes:   inodes,
		preopens: append([]PreopenedDir(nil), preopens...),
		vfs:      append([]string(nil), vfsPreopens...),
		fds:      make(map[Fd]File, 3),
		ino:      ino,
	}, nil
}

// Root returns the backing selection.
func (s *FsState) Root() FsRoot { return s.root }

// Preopens returns the validated directory exposures.
func (s *FsState) Preopens() []PreopenedDir { return s.preopens }

// VirtualPreopens returns the virtual preopen paths.
func (s *FsState) VirtualPreopens() []string { return s.vfs }

// SwapFile binds a file into one of the well known descriptor slots and
// returns the previously bound file, if any.
func (s *FsState) SwapFile(fd Fd, f File) (File, error) {
	if fd > FdStderr {
		return nil, &FileSystemError{Op: "swap", Err: fmt.Errorf("fd %d is not a well known descriptor", fd)}
	}
	if f == nil {
		return nil, &FileSystemError{Op: "swap", Err: fmt.Errorf("nil file for fd %d", fd)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.fds[fd]
	s.fds[fd] = f
	return old, nil
}

// StdioFile returns the file bound at the given well known slot, or nil if
// the backing's own default stands.
func (s *FsState) StdioFile(fd Fd) File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fds[fd]
}
