package driver

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/guestbox/guestbox/wasienv"
)

// pendingRewind pairs a captured continuation with the result payload of
// the operation that triggered the sleep.
type pendingRewind struct {
	state  wasienv.RewindState
	result []byte
}

// controller drives one guest execution through the deep sleep cycle:
//
//	Start → Running → Done
//	Start → Running → Suspended → Rewinding → Running → …
//
// Each step occupies one worker task; while Suspended no task or thread is
// held. Steps for one execution are strictly sequential: the entry export
// is never invoked again before the prior invocation returned or
// suspended, and at most one resumption task is ever scheduled at a time.
type controller struct {
	env   *wasienv.Env
	guest wasienv.Guest
	opts  *options

	resCh     chan error
	abortOnce sync.Once
}

// step runs one Start or Rewinding entry into the guest. rewind is nil on
// first entry.
func (c *controller) step(ctx context.Context, rewind *pendingRewind) {
	defer c.guard()

	g, ok := c.guest.TryClone()
	if !ok {
		c.opts.logger.Debug("unable to clone the guest instance")
		c.finish(&wasienv.ExitError{Code: wasienv.ExitCodeNoexec})
		return
	}

	entry, err := g.Entry()
	if err != nil {
		c.opts.logger.Debug("unable to resolve the guest entry export", zap.Error(err))
		c.finish(err)
		return
	}

	if rewind != nil {
		// Rewinding: replay the continuation before re-entering. A failed
		// replay means the continuation is corrupted or incompatible and
		// the execution is unrecoverable.
		c.opts.logger.Debug("rewinding", zap.Bool("is64bit", rewind.state.Is64Bit))
		if errno := g.Rewind(rewind.state, rewind.result); errno != wasienv.ErrnoSuccess {
			c.finish(&wasienv.ExitError{Code: wasienv.ExitCode(errno)})
			return
		}
	}

	c.env.SetRunning()
	c.handleResult(ctx, entry(ctx))
}

// handleResult resolves the outcome of one entry invocation: either the
// distinguished deep sleep signal, which suspends the execution, or a final
// result.
func (c *controller) handleResult(ctx context.Context, err error) {
	var sleep *wasienv.DeepSleepError
	if errors.As(err, &sleep) {
		c.opts.logger.Debug("entered a deep sleep")
		if c.opts.onSuspend != nil {
			c.opts.onSuspend(sleep.Rewind)
		}

		// Register resumption and return, releasing the worker. The
		// continuation re-enters on a freshly scheduled task with the
		// running context detached.
		rewind := sleep.Rewind
		detached := context.WithoutCancel(ctx)
		c.env.Runtime().Tasks().ResumeAfter(sleep.Trigger, func(payload []byte) {
			c.step(detached, &pendingRewind{state: rewind, result: payload})
		})
		return
	}

	c.finish(err)
}

// finish normalizes the outcome, tears the environment down and delivers
// the single final result.
func (c *controller) finish(err error) {
	res, exitCode := Normalize(err)
	c.env.Cleanup(exitCode)
	c.opts.logger.Debug("main exit",
		zap.Uint32("exitCode", uint32(exitCode)),
		zap.Error(res))
	c.resCh <- res
}

// guard keeps a worker panic from silently vanishing: the environment is
// torn down and the result channel is closed without a value, which the
// receiving side reports as an unrecoverable internal fault.
func (c *controller) guard() {
	if r := recover(); r != nil {
		c.opts.logger.Error("guest worker panicked", zap.Any("panic", r))
		c.abortOnce.Do(func() {
			c.env.Cleanup(wasienv.ExitCodeNoexec)
			close(c.resCh)
		})
	}
}
