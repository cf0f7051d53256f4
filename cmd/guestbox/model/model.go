package model

import (
	"github.com/guestbox/guestbox/worker"
)

// Cmd defines the REST API command to run a guest
type Cmd struct {
	Args []string `json:"args"`
	Env  []string `json:"env,omitempty"`

	// Binary is the guest module content, base64 encoded on the wire.
	Binary []byte `json:"binary"`

	Uses    []string          `json:"uses,omitempty"`
	MapDirs map[string]string `json:"mapDirs,omitempty"`

	Stdin string `json:"stdin,omitempty"`

	FsMemoryLimit  uint64 `json:"fsMemoryLimit,omitempty"`
	AllowDeepSleep bool   `json:"allowDeepSleep,omitempty"`
}

// Request defines the REST API request to run guests
type Request struct {
	RequestID string `json:"requestId,omitempty"`
	Cmd       []Cmd  `json:"cmd"`
}

// Result defines the REST API result of a single guest execution
type Result struct {
	Status   string `json:"status"`
	ExitCode uint32 `json:"exitCode"`
	Error    string `json:"error,omitempty"`

	// Time is the wall time in nanoseconds.
	Time uint64 `json:"time"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	Suspensions int      `json:"suspensions,omitempty"`
	Snapshots   []string `json:"snapshots,omitempty"`
}

// Response defines the REST API response to a run request
type Response struct {
	RequestID string   `json:"requestId,omitempty"`
	Results   []Result `json:"results"`
}

// ConvertRequest converts a REST API request into a worker request
func ConvertRequest(req *Request) *worker.Request {
	cmds := make([]worker.Cmd, 0, len(req.Cmd))
	for _, c := range req.Cmd {
		wc := worker.Cmd{
			Args:           c.Args,
			Env:            c.Env,
			Binary:         c.Binary,
			Uses:           c.Uses,
			MapDirs:        c.MapDirs,
			FsMemoryLimit:  c.FsMemoryLimit,
			AllowDeepSleep: c.AllowDeepSleep,
		}
		if c.Stdin != "" {
			wc.Stdin = []byte(c.Stdin)
		}
		cmds = append(cmds, wc)
	}
	return &worker.Request{
		RequestID: req.RequestID,
		Cmd:       cmds,
	}
}

// ConvertResponse converts a worker response into a REST API response
func ConvertResponse(resp worker.Response) Response {
	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, Result{
			Status:      r.Status.String(),
			ExitCode:    r.ExitCode,
			Error:       r.Error,
			Time:        uint64(r.Time),
			Stdout:      string(r.Stdout),
			Stderr:      string(r.Stderr),
			Suspensions: r.Suspensions,
			Snapshots:   r.Snapshots,
		})
	}
	return Response{
		RequestID: resp.RequestID,
		Results:   results,
	}
}
