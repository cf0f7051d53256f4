package worker

import (
	"fmt"
	"time"
)

// Status is the canonical disposition of one guest execution.
type Status int

// Execution dispositions.
const (
	StatusInvalid Status = iota // not executed

	StatusExited      // finished with a success exit code
	StatusNonzeroExit // finished with a failure exit code

	StatusRuntimeError  // guest faulted
	StatusInternalError // worker side failure
)

var statusString = []string{
	"Invalid",
	"Exited",
	"Nonzero Exit Status",
	"Runtime Error",
	"Internal Error",
}

func (s Status) String() string {
	si := int(s)
	if si < 0 || si >= len(statusString) {
		return "Invalid"
	}
	return statusString[si]
}

// Cmd defines a single guest execution and its limits.
type Cmd struct {
	// Args is the guest command line. The first element names the program.
	Args []string
	// Env holds key=value environment entries.
	Env []string
	// Binary is the guest module content.
	Binary []byte

	// Uses lists package specifiers resolved and injected before start.
	Uses []string
	// MapDirs preopens host directories under guest aliases.
	MapDirs map[string]string

	// Stdin is fed to the guest as standard input.
	Stdin []byte

	// FsMemoryLimit caps the sandbox filesystem size in bytes. Zero means
	// unlimited.
	FsMemoryLimit uint64

	// AllowDeepSleep selects the asynchronous driver so the guest may
	// suspend and resume.
	AllowDeepSleep bool
}

// Request defines a single worker request. Commands run sequentially.
type Request struct {
	RequestID string
	Cmd       []Cmd
}

// Result defines a single command response.
type Result struct {
	Status   Status
	ExitCode uint32
	Error    string
	Time     time.Duration

	Stdout []byte
	Stderr []byte

	// Suspensions counts deep sleep cycles observed during the run.
	Suspensions int
	// Snapshots lists ids of continuations persisted while suspended.
	Snapshots []string
}

// Response defines the worker response for a single request.
type Response struct {
	RequestID string
	Results   []Result
	Error     error
}

func (r Result) String() string {
	type Result struct {
		Status      Status
		ExitCode    uint32
		Error       string
		Time        time.Duration
		Stdout      string
		Stderr      string
		Suspensions int
		Snapshots   []string
	}
	d := Result{
		Status:      r.Status,
		ExitCode:    r.ExitCode,
		Error:       r.Error,
		Time:        r.Time,
		Stdout:      fmt.Sprintf("(len:%d)", len(r.Stdout)),
		Stderr:      fmt.Sprintf("(len:%d)", len(r.Stderr)),
		Suspensions: r.Suspensions,
		Snapshots:   r.Snapshots,
	}
	return fmt.Sprintf("%+v", d)
}
