package wasienv

import (
	"context"
	"sync"
)

// Store is an opaque engine execution context. A fresh store backs every
// instantiation and every resumption task.
type Store interface{}

// TaskManager schedules the logical tasks of guest executions.
type TaskManager interface {
	// SpawnDedicated runs fn on a dedicated worker.
	SpawnDedicated(fn func())

	// ResumeAfter registers a resumption callback against the trigger. The
	// callback runs on a freshly scheduled task once the trigger resolves;
	// no worker is held while waiting.
	ResumeAfter(tr Trigger, fn func(payload []byte))

	// BlockOn runs fn and blocks the calling logical thread until it
	// completes. Used during bootstrap, never inside the deep sleep path.
	BlockOn(ctx context.Context, fn func(ctx context.Context) error) error
}

// Runtime is the runtime collaborator: it hands out execution stores and
// the task manager. A runtime handle is shared across possibly many
// independently executing guests; all mutation-free operations are safe for
// concurrent callers.
type Runtime interface {
	NewStore() Store
	Tasks() TaskManager
}

type taskManager struct{}

func (taskManager) SpawnDedicated(fn func()) {
	go fn()
}

func (taskManager) ResumeAfter(tr Trigger, fn func(payload []byte)) {
	go func() {
		payload, ok := <-tr
		if !ok {
			return
		}
		go fn(payload)
	}()
}

func (taskManager) BlockOn(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sharedRuntime struct {
	tasks taskManager
}

func (r *sharedRuntime) NewStore() Store { return &struct{}{} }

func (r *sharedRuntime) Tasks() TaskManager { return r.tasks }

// The process-wide default runtime is constructed lazily on first use and
// shared across every assembly that does not override it. It outlives all
// environments; no teardown is ever required.
var (
	defaultRuntimeOnce    sync.Once
	defaultRuntimeInst    Runtime
	defaultRuntimeFactory = func() Runtime { return &sharedRuntime{} }

	defaultRuntimeMu sync.Mutex
)

// DefaultRuntime returns the process-wide shared runtime, or nil when the
// default has been replaced with an unavailable one.
func DefaultRuntime() Runtime {
	defaultRuntimeMu.Lock()
	factory := defaultRuntimeFactory
	defaultRuntimeMu.Unlock()
	if factory == nil {
		return nil
	}
	defaultRuntimeOnce.Do(func() {
		defaultRuntimeInst = factory()
	})
	return defaultRuntimeInst
}

// SetDefaultRuntimeFactory replaces how the process-wide default runtime is
// constructed. Passing nil removes the default entirely, after which
// assemblies without a runtime override fail with ErrNoDefaultRuntime. It
// has no effect once the default has been constructed.
func SetDefaultRuntimeFactory(factory func() Runtime) {
	defaultRuntimeMu.Lock()
	defer defaultRuntimeMu.Unlock()
	defaultRuntimeFactory = factory
}
