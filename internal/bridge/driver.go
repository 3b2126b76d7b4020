package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	dLog "pgbridge/internal/domain/log"
	"pgbridge/internal/domain/notify"
)

const releaseTimeout = 5 * time.Second

// Source yields asynchronous protocol messages of an established session.
// Poll returns io.EOF once the connection is closed. Poll is never called
// concurrently.
type Source interface {
	Poll(ctx context.Context) (notify.RawMessage, error)
}

// Releaser is implemented by sources that need cleanup (e.g. UNLISTEN) once
// the driver stops using them.
type Releaser interface {
	Release(ctx context.Context) error
}

// driver owns the source exclusively: it is the only caller of Poll.
type driver struct {
	source Source
	q      *queue
	coord  *coordinator
	log    dLog.Logger
}

func (d *driver) run(ctx context.Context) {
	var outcome error
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("poll driver crashed", dLog.Field{Key: "panic", Value: r})
			outcome = fmt.Errorf("%w: %v", ErrChannelClosed, r)
		}
		d.q.CloseSend(outcome)
		d.release()
		d.coord.driverExited()
	}()

	outcome = d.loop(ctx)
}

func (d *driver) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			d.log.Debug("poll driver cancelled")
			return nil
		}

		msg, err := d.source.Poll(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				d.log.Info("connection closed")
				return nil
			case ctx.Err() != nil:
				d.log.Debug("poll driver cancelled")
				return nil
			default:
				d.log.Error("connection error", dLog.Field{Key: "err", Value: err})
				return &TransportError{Err: err}
			}
		}

		if err := d.q.Push(ctx, msg); err != nil {
			if errors.Is(err, ErrQueueFull) {
				d.log.Warn("notification dropped", dLog.Field{Key: "dropped", Value: d.q.Dropped()})
				continue
			}
			// receiver gone or cancelled while waiting for space
			d.log.Debug("receiver gone, stop polling")
			return nil
		}
	}
}

func (d *driver) release() {
	r, ok := d.source.(Releaser)
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("source release panicked", dLog.Field{Key: "panic", Value: p})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := r.Release(ctx); err != nil {
		d.log.Warn("source release failed", dLog.Field{Key: "err", Value: err})
	}
}
