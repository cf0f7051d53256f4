package wasienv

import (
	"errors"
	"fmt"
	"sync"
)

// maxTaskCountLimit bounds the accepted control plane sizing. Anything above
// cannot be scheduled meaningfully and indicates a configuration mistake.
const maxTaskCountLimit = 1 << 20

// ControlPlaneConfig sizes the scheduling control for one environment.
type ControlPlaneConfig struct {
	MaxTaskCount                uint32
	EnableAsynchronousThreading bool
}

// ControlPlane governs how many concurrent logical tasks an environment may
// run. All methods are safe for concurrent callers.
type ControlPlane struct {
	conf ControlPlaneConfig

	mu     sync.Mutex
	active uint32
}

var errTooManyTasks = errors.New("task count limit reached")

// NewControlPlane validates the sizing and returns the scheduling control.
func NewControlPlane(conf ControlPlaneConfig) (*ControlPlane, error) {
	if conf.MaxTaskCount > maxTaskCountLimit {
		return nil, &ControlPlaneError{
			Err: fmt.Errorf("max task count %d exceeds limit %d", conf.MaxTaskCount, maxTaskCountLimit),
		}
	}
	return &ControlPlane{conf: conf}, nil
}

// Config returns the sizing this control plane was built with.
func (c *ControlPlane) Config() ControlPlaneConfig { return c.conf }

// AcquireTask claims one task slot. It fails when the configured task count
// is exhausted.
func (c *ControlPlane) AcquireTask() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conf.MaxTaskCount > 0 && c.active >= c.conf.MaxTaskCount {
		return &ControlPlaneError{Err: errTooManyTasks}
	}
	c.active++
	return nil
}

// ReleaseTask returns a task slot claimed by AcquireTask.
func (c *ControlPlane) ReleaseTask() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// ActiveTasks reports the currently claimed task slots.
func (c *ControlPlane) ActiveTasks() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
