package wasienv

import (
	"crypto/rand"
	"encoding/binary"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/guestbox/guestbox/binpkg"
)

// Env is the initialized, immutable environment snapshot produced by
// Builder.Build. Its filesystem state and inode table are exclusively owned
// by the one executing guest; the runtime handle is shared.
type Env struct {
	fs     *FsState
	inodes *Inodes

	// secret is generated fresh per environment and never reused. It keys
	// internal lookups such as futex identities.
	secret [32]byte

	args []string
	envs [][]byte // key=value byte strings

	futexes     *FutexTable
	clockOffset atomic.Int64

	runtime      Runtime
	controlPlane *ControlPlane

	packages []*binpkg.BinaryPackage
	commands map[string]string

	capabilities Capabilities

	callInitialize bool
	canDeepSleep   bool

	process Store
	thread  Store

	running     atomic.Bool
	cleanupOnce sync.Once
	exitCode    atomic.Uint32
	done        chan struct{}
}

// Build validates the entire pending configuration, then consumes the
// builder and assembles the environment. Validation completes with zero
// observable side effects before any mutation of the emerging environment;
// a builder is consumed exactly once and never retried.
func (b *Builder) Build() (*Env, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	if b.err != nil {
		return nil, b.err
	}
	if err := validateArgs(b.args); err != nil {
		return nil, err
	}
	if err := validateEnvs(b.envs); err != nil {
		return nil, err
	}
	b.consumed = true

	// stdin always gets a binding; a default console input when unset
	stdin := b.stdin
	if stdin == nil {
		stdin = DefaultStdin()
	}

	fsRoot := b.fs
	if fsRoot.empty() {
		fsRoot = SandboxRoot(NewSandboxFS())
	}

	inodes := NewInodes()
	fsState, err := NewFsState(inodes, b.preopens, b.vfsPreopens, fsRoot)
	if err != nil {
		return nil, err
	}

	if _, err := fsState.SwapFile(FdStdin, stdin); err != nil {
		return nil, err
	}
	if b.stdout != nil {
		if _, err := fsState.SwapFile(FdStdout, b.stdout); err != nil {
			return nil, err
		}
	}
	if b.stderr != nil {
		if _, err := fsState.SwapFile(FdStderr, b.stderr); err != nil {
			return nil, err
		}
	}

	if b.setupFs != nil {
		if err := b.setupFs(inodes, fsState); err != nil {
			return nil, &FsSetupError{Err: err}
		}
	}

	commands := make(map[string]string, len(b.mapCommands))
	for name, target := range b.mapCommands {
		commands[name] = target
	}
	for _, pkg := range b.uses {
		if err := applyPackage(fsRoot, pkg, commands); err != nil {
			return nil, &IncludePackageError{Package: pkg.Name, Err: err}
		}
	}

	envs := make([][]byte, 0, len(b.envs))
	for _, p := range b.envs {
		kv := make([]byte, 0, len(p.key)+1+len(p.value))
		kv = append(kv, p.key...)
		kv = append(kv, '=')
		kv = append(kv, p.value...)
		envs = append(envs, kv)
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, &FsCreationError{Detail: "secret generation failed: " + err.Error()}
	}

	rt := b.runtime
	if rt == nil {
		rt = DefaultRuntime()
		if rt == nil {
			return nil, ErrNoDefaultRuntime
		}
	}

	plane, err := NewControlPlane(ControlPlaneConfig{
		MaxTaskCount:                b.capabilities.Threading.MaxThreads,
		EnableAsynchronousThreading: b.capabilities.Threading.EnableAsynchronousThreading,
	})
	if err != nil {
		return nil, err
	}

	env := &Env{
		fs:             fsState,
		inodes:         inodes,
		secret:         secret,
		args:           append([]string(nil), b.args...),
		envs:           envs,
		futexes:        NewFutexTable(),
		runtime:        rt,
		controlPlane:   plane,
		packages:       append([]*binpkg.BinaryPackage(nil), b.uses...),
		commands:       commands,
		capabilities:   b.capabilities,
		callInitialize: true,
		canDeepSleep:   false,
		done:           make(chan struct{}),
	}
	return env, nil
}

// applyPackage unions a package's volumes into the backing filesystem and
// registers its commands.
func applyPackage(root FsRoot, pkg *binpkg.BinaryPackage, commands map[string]string) error {
	fs := root.FS()
	for mount, files := range pkg.Volumes {
		if err := fs.MkdirAll(mount); err != nil {
			return err
		}
		for rel, data := range files {
			if err := fs.WriteFile(path.Join(mount, rel), data); err != nil {
				return err
			}
		}
	}
	for name, atom := range pkg.Commands {
		commands[name] = pkg.Name + "/" + atom
	}
	return nil
}

// Fs returns the assembled filesystem state.
func (e *Env) Fs() *FsState { return e.fs }

// Inodes returns the inode table.
func (e *Env) Inodes() *Inodes { return e.inodes }

// Secret returns the per-environment secret.
func (e *Env) Secret() [32]byte { return e.secret }

// Args returns the finalized argument list.
func (e *Env) Args() []string { return e.args }

// Environ returns the finalized key=value environment byte strings.
func (e *Env) Environ() [][]byte { return e.envs }

// Runtime returns the shared runtime handle.
func (e *Env) Runtime() Runtime { return e.runtime }

// ControlPlane returns the sized scheduling control.
func (e *Env) ControlPlane() *ControlPlane { return e.controlPlane }

// Packages returns the injected dependency packages.
func (e *Env) Packages() []*binpkg.BinaryPackage { return e.packages }

// Commands returns the guest visible command mapping.
func (e *Env) Commands() map[string]string { return e.commands }

// Capabilities returns the capability record.
func (e *Env) Capabilities() Capabilities { return e.capabilities }

// Process returns the pre-bound process handle, if any.
func (e *Env) Process() Store { return e.process }

// Thread returns the pre-bound thread handle, if any.
func (e *Env) Thread() Store { return e.thread }

// CallInitialize reports whether the guest's initialize export should run.
func (e *Env) CallInitialize() bool { return e.callInitialize }

// CanDeepSleep reports whether this environment currently permits deep
// sleep suspension.
func (e *Env) CanDeepSleep() bool { return e.canDeepSleep }

// SetCanDeepSleep toggles deep sleep permission; the asynchronous driver
// enables it before entering the guest.
func (e *Env) SetCanDeepSleep(v bool) { e.canDeepSleep = v }

// SetRunning marks the guest's logical main thread as running.
func (e *Env) SetRunning() { e.running.Store(true) }

// IsRunning reports whether the logical main thread is marked running.
func (e *Env) IsRunning() bool { return e.running.Load() }

// ClockOffset returns the monotonic clock offset, initially zero.
func (e *Env) ClockOffset() time.Duration {
	return time.Duration(e.clockOffset.Load())
}

// SetClockOffset adjusts the monotonic clock offset.
func (e *Env) SetClockOffset(d time.Duration) {
	e.clockOffset.Store(int64(d))
}

// FutexKey derives the futex identity for a guest address, keyed by the
// environment secret so independent environments never collide.
func (e *Env) FutexKey(addr uint64) uint64 {
	h, err := blake3.NewKeyed(e.secret[:])
	if err != nil {
		// the secret is always 32 bytes
		panic(err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], addr)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Futexes returns the process-wide synchronization primitive table owned by
// this environment.
func (e *Env) Futexes() *FutexTable { return e.futexes }

// Cleanup tears the environment down exactly once with the derived exit
// code. Later calls are no-ops and the first recorded exit code stands.
func (e *Env) Cleanup(code ExitCode) {
	e.cleanupOnce.Do(func() {
		e.exitCode.Store(uint32(code))
		e.running.Store(false)
		e.futexes.wakeAll()
		for fd := FdStdin; fd <= FdStderr; fd++ {
			if p, ok := e.fs.StdioFile(fd).(*FilePipe); ok {
				p.Close()
			}
		}
		close(e.done)
	})
}

// Done is closed once the environment has been torn down.
func (e *Env) Done() <-chan struct{} { return e.done }

// ExitCode returns the exit code recorded at cleanup.
func (e *Env) ExitCode() ExitCode { return ExitCode(e.exitCode.Load()) }

// FutexTable maps futex identities to their waiters. It starts empty and
// belongs exclusively to one environment for its entire lifetime.
type FutexTable struct {
	mu      sync.Mutex
	waiters map[uint64][]chan struct{}
}

// NewFutexTable creates an empty table.
func NewFutexTable() *FutexTable {
	return &FutexTable{waiters: make(map[uint64][]chan struct{})}
}

// Wait registers a waiter for the key and returns its wake channel.
func (t *FutexTable) Wait(key uint64) <-chan struct{} {
	ch := make(chan struct{})
	t.mu.Lock()
	t.waiters[key] = append(t.waiters[key], ch)
	t.mu.Unlock()
	return ch
}

// Wake wakes up to count waiters for the key and reports how many woke.
func (t *FutexTable) Wake(key uint64, count int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ws := t.waiters[key]
	n := max(0, min(count, len(ws)))
	for _, ch := range ws[:n] {
		close(ch)
	}
	if n == len(ws) {
		delete(t.waiters, key)
	} else {
		t.waiters[key] = ws[n:]
	}
	return n
}

func (t *FutexTable) wakeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, ws := range t.waiters {
		for _, ch := range ws {
			close(ch)
		}
		delete(t.waiters, key)
	}
}
