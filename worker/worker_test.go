package worker

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/guestbox/guestbox/snapshot"
	"github.com/guestbox/guestbox/wasienv"
)

// scriptEngine instantiates guests whose entry behavior is produced per
// environment by the script function.
type scriptEngine struct {
	script func(env *wasienv.Env) wasienv.EntryFunc
}

func (e *scriptEngine) Instantiate(_ context.Context, env *wasienv.Env, _ wasienv.Module) (wasienv.Guest, error) {
	return &scriptGuest{entry: e.script(env)}, nil
}

type scriptGuest struct {
	entry wasienv.EntryFunc
}

func (g *scriptGuest) Entry() (wasienv.EntryFunc, error) { return g.entry, nil }

func (g *scriptGuest) Rewind(wasienv.RewindState, []byte) wasienv.Errno { return wasienv.ErrnoSuccess }

func (g *scriptGuest) TryClone() (wasienv.Guest, bool) { return &scriptGuest{entry: g.entry}, true }

func echoScript(env *wasienv.Env) wasienv.EntryFunc {
	return func(context.Context) error {
		in, err := wasienv.FileToReader(env.Fs().StdioFile(wasienv.FdStdin))
		if err != nil {
			return err
		}
		out, err := wasienv.FileToWriter(env.Fs().StdioFile(wasienv.FdStdout))
		if err != nil {
			return err
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
}

func startWorker(t *testing.T, conf Config) Worker {
	t.Helper()
	w := New(conf)
	w.Start()
	t.Cleanup(w.Shutdown)
	return w
}

func TestWorkerSubmit(t *testing.T) {
	var observed []Response
	w := startWorker(t, Config{
		Engine:       &scriptEngine{script: echoScript},
		Parallelism:  2,
		ExecObserver: func(r Response) { observed = append(observed, r) },
	})

	res := <-w.Submit(context.TODO(), &Request{
		RequestID: "r1",
		Cmd: []Cmd{{
			Args:  []string{"echo"},
			Stdin: []byte("hello"),
		}},
	})
	if res.RequestID != "r1" {
		t.Fatalf("request id = %q", res.RequestID)
	}
	if len(res.Results) != 1 {
		t.Fatalf("results = %v", res.Results)
	}
	r := res.Results[0]
	if r.Status != StatusExited {
		t.Fatalf("status = %v: %s", r.Status, r.Error)
	}
	if r.ExitCode != 0 {
		t.Fatalf("exit code = %d", r.ExitCode)
	}
	if !bytes.Equal(r.Stdout, []byte("hello")) {
		t.Fatalf("stdout = %q", r.Stdout)
	}
	if len(observed) != 1 {
		t.Fatalf("observer saw %d responses", len(observed))
	}
}

func TestWorkerInvalidRequest(t *testing.T) {
	w := startWorker(t, Config{Engine: &scriptEngine{script: echoScript}})

	res := <-w.Execute(context.TODO(), &Request{Cmd: []Cmd{{}}})
	if res.Results[0].Status != StatusInvalid {
		t.Fatalf("status = %v", res.Results[0].Status)
	}

	res = <-w.Execute(context.TODO(), &Request{Cmd: []Cmd{{
		Args: []string{"prog"},
		Env:  []string{"NOEQUALS"},
	}}})
	if res.Results[0].Status != StatusInvalid {
		t.Fatalf("status = %v", res.Results[0].Status)
	}
}

func TestWorkerNonzeroExit(t *testing.T) {
	w := startWorker(t, Config{Engine: &scriptEngine{
		script: func(*wasienv.Env) wasienv.EntryFunc {
			return func(context.Context) error {
				return &wasienv.ExitError{Code: 7}
			}
		},
	}})

	res := <-w.Execute(context.TODO(), &Request{Cmd: []Cmd{{Args: []string{"prog"}}}})
	r := res.Results[0]
	if r.Status != StatusNonzeroExit {
		t.Fatalf("status = %v", r.Status)
	}
	if r.ExitCode != 7 {
		t.Fatalf("exit code = %d", r.ExitCode)
	}
}

func TestWorkerDeepSleep(t *testing.T) {
	snaps := snapshot.NewMemoryStore()
	engine := &scriptEngine{script: func(env *wasienv.Env) wasienv.EntryFunc {
		slept := false
		return func(context.Context) error {
			if !slept {
				slept = true
				tr := make(chan []byte, 1)
				tr <- []byte("pong")
				return &wasienv.DeepSleepError{
					Rewind:  wasienv.RewindState{MemoryStack: []byte{1}, Is64Bit: true},
					Trigger: tr,
				}
			}
			return nil
		}
	}}
	w := startWorker(t, Config{Engine: engine, Snapshots: snaps})

	res := <-w.Execute(context.TODO(), &Request{Cmd: []Cmd{{
		Args:           []string{"prog"},
		AllowDeepSleep: true,
	}}})
	r := res.Results[0]
	if r.Status != StatusExited {
		t.Fatalf("status = %v: %s", r.Status, r.Error)
	}
	if r.Suspensions != 1 {
		t.Fatalf("suspensions = %d", r.Suspensions)
	}
	if len(r.Snapshots) != 1 {
		t.Fatalf("snapshots = %v", r.Snapshots)
	}
	rs, err := snaps.Get(r.Snapshots[0])
	if err != nil {
		t.Fatal(err)
	}
	if !rs.Is64Bit || len(rs.MemoryStack) != 1 {
		t.Fatalf("persisted continuation = %+v", rs)
	}
}

func TestWorkerSequentialCmds(t *testing.T) {
	w := startWorker(t, Config{Engine: &scriptEngine{script: echoScript}})

	res := <-w.Execute(context.TODO(), &Request{Cmd: []Cmd{
		{Args: []string{"echo"}, Stdin: []byte("a")},
		{Args: []string{"echo"}, Stdin: []byte("b")},
	}})
	if len(res.Results) != 2 {
		t.Fatalf("results = %v", res.Results)
	}
	if string(res.Results[0].Stdout) != "a" || string(res.Results[1].Stdout) != "b" {
		t.Fatalf("stdout = %q %q", res.Results[0].Stdout, res.Results[1].Stdout)
	}
}
