// Package worker provides a parallel execution service over the guest
// driver: requests carry guest command lines and limits, responses carry
// normalized results.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guestbox/guestbox/binpkg"
	"github.com/guestbox/guestbox/driver"
	"github.com/guestbox/guestbox/snapshot"
	"github.com/guestbox/guestbox/wasienv"
)

const maxWaiting = 512

// Config defines worker configuration
type Config struct {
	Engine       wasienv.Engine
	Runtime      wasienv.Runtime
	Resolver     binpkg.Resolver
	Snapshots    snapshot.Store
	Parallelism  int
	ExecObserver func(Response)
	Logger       *zap.Logger
}

// Worker defines interface for the executor
type Worker interface {
	Start()
	Submit(context.Context, *Request) <-chan Response
	Execute(context.Context, *Request) <-chan Response
	Shutdown()
}

// worker defines executor worker
type worker struct {
	engine      wasienv.Engine
	runtime     wasienv.Runtime
	resolver    binpkg.Resolver
	snapshots   snapshot.Store
	parallelism int

	execObserver func(Response)
	logger       *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	workCh    chan workRequest
	done      chan struct{}
}

type workRequest struct {
	*Request
	context.Context
	resultCh chan<- Response
}

// New creates new worker
func New(conf Config) Worker {
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parallelism := conf.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &worker{
		engine:       conf.Engine,
		runtime:      conf.Runtime,
		resolver:     conf.Resolver,
		snapshots:    conf.Snapshots,
		parallelism:  parallelism,
		execObserver: conf.ExecObserver,
		logger:       logger,
	}
}

// Start starts worker loops with given parallelism
func (w *worker) Start() {
	w.startOnce.Do(func() {
		w.workCh = make(chan workRequest, maxWaiting)
		w.done = make(chan struct{})
		w.wg.Add(w.parallelism)
		for i := 0; i < w.parallelism; i++ {
			go w.loop()
		}
	})
}

// Submit submits a single request
func (w *worker) Submit(ctx context.Context, req *Request) <-chan Response {
	ch := make(chan Response, 1)
	w.workCh <- workRequest{
		Request:  req,
		Context:  ctx,
		resultCh: ch,
	}
	return ch
}

// Execute will execute the request in a new goroutine (bypass the parallelism limit)
func (w *worker) Execute(ctx context.Context, req *Request) <-chan Response {
	ch := make(chan Response, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		wq := workRequest{
			Request:  req,
			Context:  ctx,
			resultCh: ch,
		}
		w.workDoCmd(wq)
	}()
	return ch
}

// Shutdown waits for all workers to finish
func (w *worker) Shutdown() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

func (w *worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case req, ok := <-w.workCh:
			if !ok {
				return
			}
			w.workDoCmd(req)
		case <-w.done:
			return
		}
	}
}

func (w *worker) workDoCmd(req workRequest) {
	var rt Response
	rt.Results = make([]Result, 0, len(req.Cmd))
	for _, c := range req.Cmd {
		rt.Results = append(rt.Results, w.workDoSingle(req.Context, c))
	}
	rt.RequestID = req.RequestID
	if w.execObserver != nil {
		w.execObserver(rt)
	}
	req.resultCh <- rt
}

func (w *worker) workDoSingle(ctx context.Context, rc Cmd) (rt Result) {
	start := time.Now()
	defer func() {
		rt.Time = time.Since(start)
	}()

	env, stdout, stderr, err := w.assemble(ctx, rc)
	if err != nil {
		rt.Status = StatusInvalid
		rt.Error = err.Error()
		return
	}

	module := wasienv.NewRawModule(rc.Args[0], rc.Binary)
	guest, err := w.engine.Instantiate(ctx, env, module)
	if err != nil {
		env.Cleanup(wasienv.ExitCodeNoexec)
		rt.Status = StatusRuntimeError
		rt.ExitCode = uint32(env.ExitCode())
		rt.Error = fmt.Sprintf("failed to instantiate guest %v", err)
		return
	}

	opts := []driver.Option{driver.WithLogger(w.logger)}
	if rc.AllowDeepSleep {
		opts = append(opts, driver.WithSuspendObserver(func(rs wasienv.RewindState) {
			rt.Suspensions++
			if w.snapshots == nil {
				return
			}
			id, err := w.snapshots.Add(rs)
			if err != nil {
				w.logger.Warn("failed to persist continuation", zap.Error(err))
				return
			}
			rt.Snapshots = append(rt.Snapshots, id)
		}))
		err = driver.RunAsync(ctx, env, guest, opts...)
	} else {
		err = driver.Run(ctx, env, guest, opts...)
	}

	rt.ExitCode = uint32(env.ExitCode())
	rt.Stdout = stdout.Bytes()
	rt.Stderr = stderr.Bytes()

	var exitErr *wasienv.ExitError
	switch {
	case err == nil:
		rt.Status = StatusExited
	case errors.Is(err, driver.ErrNoResult):
		rt.Status = StatusInternalError
		rt.Error = err.Error()
	case errors.As(err, &exitErr):
		rt.Status = StatusNonzeroExit
		rt.Error = err.Error()
	default:
		rt.Status = StatusRuntimeError
		rt.Error = err.Error()
	}
	return
}

// assemble builds the environment for one command, returning the capture
// buffers bound to the guest's stdout and stderr.
func (w *worker) assemble(ctx context.Context, rc Cmd) (*wasienv.Env, *bytes.Buffer, *bytes.Buffer, error) {
	if len(rc.Args) == 0 {
		return nil, nil, nil, errors.New("no program arguments")
	}

	b := wasienv.NewBuilder(rc.Args[0]).Args(rc.Args[1:]...)
	for _, e := range rc.Env {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			return nil, nil, nil, fmt.Errorf("malformed environment entry %q", e)
		}
		b.Env(key, value)
	}
	for alias, path := range rc.MapDirs {
		b.MapDir(alias, path)
	}

	if len(rc.Uses) > 0 {
		if w.resolver == nil {
			return nil, nil, nil, errors.New("packages requested without a resolver")
		}
		for _, spec := range rc.Uses {
			pkg, err := w.resolver.Resolve(ctx, spec)
			if err != nil {
				return nil, nil, nil, err
			}
			b.Use(pkg)
		}
	}

	fs := wasienv.NewSandboxFS()
	if rc.FsMemoryLimit > 0 {
		fs.SetMemoryLimiter(wasienv.NewMemoryBudget(rc.FsMemoryLimit))
	}
	b.SandboxFS(fs)

	if rc.Stdin != nil {
		b.Stdin(wasienv.NewFileReader(bytes.NewReader(rc.Stdin)))
	}
	var stdout, stderr bytes.Buffer
	b.Stdout(wasienv.NewFileWriter(&stdout))
	b.Stderr(wasienv.NewFileWriter(&stderr))

	if w.runtime != nil {
		b.Runtime(w.runtime)
	}

	env, err := b.Build()
	if err != nil {
		return nil, nil, nil, err
	}
	return env, &stdout, &stderr, nil
}
