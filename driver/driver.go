// Package driver runs assembled guest environments, either synchronously on
// the calling thread or asynchronously with deep sleep support.
package driver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/guestbox/guestbox/wasienv"
)

// ErrNoResult is reported when the asynchronous worker terminated without
// delivering a result. This normally means a panic occurred inside the
// worker.
var ErrNoResult = errors.New("guest worker terminated without a result, this normally means a panic occurred")

type options struct {
	logger    *zap.Logger
	onSuspend func(wasienv.RewindState)
}

// Option configures a guest run.
type Option func(*options)

// WithLogger routes driver logs to the given logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSuspendObserver registers a hook invoked with every continuation
// captured when the guest enters deep sleep, before resumption is
// scheduled.
func WithSuspendObserver(fn func(wasienv.RewindState)) Option {
	return func(o *options) { o.onSuspend = fn }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// Run executes the guest synchronously, occupying the calling thread for
// the guest's entire run. The environment is cleaned up with the derived
// exit code before returning.
func Run(ctx context.Context, env *wasienv.Env, g wasienv.Guest, opts ...Option) error {
	o := buildOptions(opts)
	if env.Capabilities().Threading.EnableAsynchronousThreading {
		o.logger.Warn("the asynchronous threading capability is enabled, use RunAsync to avoid spurious errors")
	}

	entry, err := g.Entry()
	if err == nil {
		env.SetRunning()
		err = entry(ctx)
	}

	res, exitCode := Normalize(err)
	env.Cleanup(exitCode)
	o.logger.Debug("main exit",
		zap.Uint32("exitCode", uint32(exitCode)),
		zap.Error(res))
	return res
}

// RunAsync executes the guest on a dedicated worker and blocks the caller
// until the worker delivers the final result. The worker is released while
// the guest is suspended in deep sleep; resumption re-enters on a freshly
// scheduled task. The worker-to-caller handoff is exactly one message on a
// single-value channel.
func RunAsync(ctx context.Context, env *wasienv.Env, g wasienv.Guest, opts ...Option) error {
	o := buildOptions(opts)
	env.SetCanDeepSleep(true)

	resCh := make(chan error, 1)
	c := &controller{
		env:   env,
		guest: g,
		opts:  o,
		resCh: resCh,
	}
	env.Runtime().Tasks().SpawnDedicated(func() {
		c.step(ctx, nil)
	})

	// The result is passed synchronously because the main thread can go
	// into a deep sleep and exit the dedicated worker. A closed channel
	// with no message means the worker died without reporting.
	res, ok := <-resCh
	if !ok {
		return ErrNoResult
	}
	return res
}
