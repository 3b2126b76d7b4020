package bridge

import (
	"context"
	"sync"
	"sync/atomic"
)

type State int32

const (
	StateActive State = iota
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// coordinator propagates termination between the poll driver and the
// consumer. Active -> Draining -> Closed, never backwards.
type coordinator struct {
	state  atomic.Int32
	cancel context.CancelFunc
	q      *queue

	driverDone chan struct{}
	exited     atomic.Bool
	drained    atomic.Bool
	closeOnce  sync.Once
}

func newCoordinator(cancel context.CancelFunc, q *queue) *coordinator {
	return &coordinator{
		cancel:     cancel,
		q:          q,
		driverDone: make(chan struct{}),
	}
}

// Cancel stops polling and rejects further pushes. Safe to call many times.
func (c *coordinator) Cancel() {
	if c.state.CompareAndSwap(int32(StateActive), int32(StateDraining)) {
		c.q.CloseRecv()
		c.cancel()
	}
}

// driverExited is called once by the driver after it recorded its outcome.
func (c *coordinator) driverExited() {
	c.state.CompareAndSwap(int32(StateActive), int32(StateDraining))
	c.cancel()
	c.exited.Store(true)
	c.maybeClose()
	close(c.driverDone)
}

// consumerDrained is called when the consumer observed the terminal outcome.
func (c *coordinator) consumerDrained() {
	c.drained.Store(true)
	c.maybeClose()
}

func (c *coordinator) maybeClose() {
	if !c.drained.Load() || !c.exited.Load() {
		return
	}
	c.closeOnce.Do(func() {
		c.q.CloseRecv()
		c.state.Store(int32(StateClosed))
	})
}

func (c *coordinator) State() State {
	return State(c.state.Load())
}

func (c *coordinator) Done() <-chan struct{} {
	return c.driverDone
}
