// Package bridge turns a polled PostgreSQL session into an ordered stream of
// notifications.
//
// A poll driver goroutine owns the Source and pushes raw protocol messages
// into a queue; the Stream pops, decodes and hands notifications to the
// caller. Cancelling the stream stops the driver at its next poll boundary;
// the driver ending (connection closed, read error) ends the stream once the
// buffered messages are consumed.
package bridge

import (
	"context"

	dLog "pgbridge/internal/domain/log"
)

type options struct {
	log      dLog.Logger
	capacity int
	policy   OverflowPolicy
	hook     DiagnosticHook
	channel  string
}

type Option func(*options)

func WithLogger(l dLog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithCapacity bounds the queue. 0 (the default) keeps it unbounded.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithOverflowPolicy sets what a bounded queue does when full.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithDiagnosticHook(h DiagnosticHook) Option {
	return func(o *options) { o.hook = h }
}

// WithChannel records the subscribed channel name for logs and ChannelState.
func WithChannel(name string) Option {
	return func(o *options) { o.channel = name }
}

// Start launches the poll driver over source and returns the consuming end.
// The subscription must already be active on the session. Cancelling ctx has
// the same effect as Stream.Cancel.
func Start(ctx context.Context, source Source, opts ...Option) *Stream {
	o := options{log: dLog.Nop(), policy: OverflowBlock}
	for _, opt := range opts {
		opt(&o)
	}
	if o.channel != "" {
		o.log = o.log.With(dLog.Field{Key: "channel", Value: o.channel})
	}

	q := newQueue(o.capacity, o.policy)
	runCtx, cancel := context.WithCancel(ctx)
	coord := newCoordinator(cancel, q)

	d := &driver{
		source: source,
		q:      q,
		coord:  coord,
		log:    o.log,
	}
	go d.run(runCtx)

	return &Stream{
		q:       q,
		coord:   coord,
		hook:    o.hook,
		log:     o.log,
		channel: o.channel,
	}
}
