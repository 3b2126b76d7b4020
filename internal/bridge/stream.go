package bridge

import (
	"context"
	"errors"
	"iter"

	dLog "pgbridge/internal/domain/log"
	"pgbridge/internal/domain/notify"
)

// DiagnosticHook receives every ignored protocol message.
type DiagnosticHook func(Event)

// ChannelState is a snapshot of a bridge's subscription.
type ChannelState struct {
	Channel string
	Running bool
}

// Stream is a single-pass, non-restartable sequence of notifications.
// Next and All must be called from one goroutine; Cancel and Close may be
// called from any goroutine.
type Stream struct {
	q       *queue
	coord   *coordinator
	hook    DiagnosticHook
	log     dLog.Logger
	channel string

	err error
}

// Next blocks until a notification is available. It returns ErrEndOfStream
// when the connection closed or the stream was cancelled, and the terminal
// error (*TransportError, ErrChannelClosed) when delivery failed. Terminal
// outcomes are sticky. A ctx cancellation is returned as is and does not end
// the stream.
func (s *Stream) Next(ctx context.Context) (notify.Notification, error) {
	if s.err != nil {
		return notify.Notification{}, s.err
	}

	for {
		msg, err := s.q.Pop(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return notify.Notification{}, err
			}
			s.err = err
			s.coord.consumerDrained()
			return notify.Notification{}, err
		}

		ev := Decode(msg)
		if ev.Kind == KindIgnored {
			s.ignored(ev)
			continue
		}
		return ev.Notification, nil
	}
}

// All returns the stream as a range-over-func sequence. A terminal error is
// yielded once; a clean end simply stops the iteration.
func (s *Stream) All(ctx context.Context) iter.Seq2[notify.Notification, error] {
	return func(yield func(notify.Notification, error) bool) {
		for {
			n, err := s.Next(ctx)
			if errors.Is(err, ErrEndOfStream) {
				return
			}
			if err != nil {
				yield(notify.Notification{}, err)
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

// Cancel stops the poll driver. Buffered notifications can still be read.
func (s *Stream) Cancel() {
	s.coord.Cancel()
}

// Close cancels the stream and waits for the poll driver to exit.
func (s *Stream) Close(ctx context.Context) error {
	s.coord.Cancel()
	select {
	case <-s.coord.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the poll driver has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.coord.Done()
}

func (s *Stream) State() State {
	return s.coord.State()
}

func (s *Stream) ChannelState() ChannelState {
	return ChannelState{
		Channel: s.channel,
		Running: s.coord.State() == StateActive,
	}
}

// Buffered reports the number of raw messages waiting in the queue.
func (s *Stream) Buffered() int {
	return s.q.Len()
}

// Dropped reports how many messages a bounded queue discarded.
func (s *Stream) Dropped() uint64 {
	return s.q.Dropped()
}

func (s *Stream) ignored(ev Event) {
	msg := dLog.Field{Key: "message", Value: describe(ev.Raw)}
	if ev.Anomaly != "" {
		s.log.Warn("malformed protocol message ignored", msg, dLog.Field{Key: "anomaly", Value: ev.Anomaly})
	} else {
		s.log.Debug("non-notification message ignored", msg)
	}
	if s.hook != nil {
		s.hook(ev)
	}
}
