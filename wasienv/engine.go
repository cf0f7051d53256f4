package wasienv

import (
	"context"
	"fmt"
)

// Errno is the guest-facing error number namespace.
type Errno uint16

// Errno values used by the execution lifecycle.
const (
	ErrnoSuccess Errno = 0
	ErrnoNoexec  Errno = 45
	ErrnoNotsup  Errno = 58
)

func (e Errno) String() string {
	switch e {
	case ErrnoSuccess:
		return "success"
	case ErrnoNoexec:
		return "noexec"
	case ErrnoNotsup:
		return "notsup"
	default:
		return fmt.Sprintf("errno(%d)", uint16(e))
	}
}

// ExitCode is the canonical guest exit code.
type ExitCode uint32

// Canonical exit codes derived from the errno namespace.
const (
	ExitCodeSuccess ExitCode = ExitCode(ErrnoSuccess)
	ExitCodeNoexec  ExitCode = ExitCode(ErrnoNoexec)
)

// IsSuccess reports whether the code denotes a successful termination.
func (c ExitCode) IsSuccess() bool { return c == ExitCodeSuccess }

// ExitError is the pseudo-error a guest raises to request an explicit exit.
// An explicit exit with a success code is not a failure and the exit code
// normalizer rewrites it to a plain success.
type ExitError struct {
	Code ExitCode
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest requested exit with code %d", e.Code)
}

// RewindState is the continuation snapshot captured when a guest enters
// deep sleep. It is self contained: replaying it against a freshly cloned
// instance resumes the guest exactly where it suspended, so it may cross
// thread and scheduling task boundaries.
type RewindState struct {
	// MemoryStack is the raw guest value stack.
	MemoryStack []byte
	// RewindStack is the raw internal rewind stack.
	RewindStack []byte
	// StoreData is opaque engine store data.
	StoreData []byte
	// Is64Bit selects 64-bit address width decoding during replay.
	Is64Bit bool
}

// Trigger is the opaque awaitable a deep sleeping guest waits on. It
// resolves at most once with the payload that becomes the rewind result. A
// trigger that never resolves leaves the execution suspended; timeout
// policy belongs to whatever produced the trigger.
type Trigger <-chan []byte

// DeepSleepError is the distinguished signal a guest raises when a blocking
// operation suspends it. It carries the continuation to persist and the
// trigger to await.
type DeepSleepError struct {
	Rewind  RewindState
	Trigger Trigger
}

func (e *DeepSleepError) Error() string {
	return "guest entered deep sleep"
}

// EntryFunc invokes the guest entry export. It returns nil on a normal
// return, an *ExitError for an explicit exit, a *DeepSleepError when the
// guest suspends, or any other error for a fault.
type EntryFunc func(ctx context.Context) error

// Guest is a single instantiated guest execution. A guest is exclusively
// owned by one logical execution; the driver guarantees that entry and
// rewind calls are strictly sequential.
type Guest interface {
	// Entry resolves the guest entry export. It fails when the guest does
	// not export one.
	Entry() (EntryFunc, error)

	// Rewind replays a captured continuation paired with the result of the
	// operation that triggered the sleep. A non-success errno means the
	// continuation is corrupted or incompatible and the execution cannot
	// continue.
	Rewind(rs RewindState, result []byte) Errno

	// TryClone produces a fresh instance for re-entry. It reports false
	// when the instance cannot be cloned.
	TryClone() (Guest, bool)
}

// Module is an opaque loaded guest binary.
type Module interface {
	Name() string
}

// RawModule is a guest binary held in memory.
type RawModule struct {
	name string
	data []byte
}

// NewRawModule wraps guest binary bytes as a Module.
func NewRawModule(name string, data []byte) *RawModule {
	return &RawModule{name: name, data: data}
}

func (m *RawModule) Name() string { return m.name }

// Bytes returns the guest binary content.
func (m *RawModule) Bytes() []byte { return m.data }

// Engine loads guest modules against an assembled environment and produces
// executable instances.
type Engine interface {
	Instantiate(ctx context.Context, env *Env, mod Module) (Guest, error)
}
