package listener

import (
	"context"
	"errors"
	"time"

	"pgbridge/internal/bridge"
	"pgbridge/internal/config"
	dLog "pgbridge/internal/domain/log"
	"pgbridge/internal/domain/notify"
)

// Notifier is a session able to bridge one channel at a time.
type Notifier interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, channel string) (*bridge.Stream, error)
	Close() error
}

// NotifierFactory builds a fresh, unconnected notifier. A new one is used for
// every reconnect since a bridge is never resurrected.
type NotifierFactory func() Notifier

// Sink consumes decoded notifications.
type Sink interface {
	Handle(ctx context.Context, n notify.Notification) error
	Close() error
}

type Service struct {
	newNotifier NotifierFactory
	sink        Sink
	log         dLog.Logger
	channel     string
	reconnect   config.ReconnectConfig
}

func New(newNotifier NotifierFactory, sink Sink, log dLog.Logger, channel string, reconnect config.ReconnectConfig) *Service {
	return &Service{
		newNotifier: newNotifier,
		sink:        sink,
		log:         log,
		channel:     channel,
		reconnect:   reconnect,
	}
}

// Run listens until ctx is done or the connection is closed normally.
// Transport failures are retried with a doubling backoff when reconnect is
// enabled.
func (s *Service) Run(ctx context.Context) error {
	backoff := s.reconnect.InitialBackoff

	for {
		subscribed, err := s.runOnce(ctx)
		if err == nil {
			s.log.Info("notification stream ended", dLog.Field{Key: "channel", Value: s.channel})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.reconnect.Enabled {
			return err
		}
		if subscribed {
			backoff = s.reconnect.InitialBackoff
		}

		s.log.Warn("listener failed, reconnecting",
			dLog.Field{Key: "channel", Value: s.channel},
			dLog.Field{Key: "err", Value: err},
			dLog.Field{Key: "backoff", Value: backoff.String()},
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < s.reconnect.MaxBackoff {
			backoff = min(backoff*2, s.reconnect.MaxBackoff)
		}
	}
}

func (s *Service) runOnce(ctx context.Context) (subscribed bool, err error) {
	n := s.newNotifier()
	if err := n.Connect(ctx); err != nil {
		return false, err
	}
	defer func() {
		if cErr := n.Close(); cErr != nil {
			s.log.Warn("close notifier", dLog.Field{Key: "err", Value: cErr})
		}
	}()

	stream, err := n.Subscribe(ctx, s.channel)
	if err != nil {
		return false, err
	}
	s.log.Info("start listening channel", dLog.Field{Key: "channel", Value: s.channel})

	for ntf, err := range stream.All(ctx) {
		if err != nil {
			var te *bridge.TransportError
			if errors.As(err, &te) {
				s.log.Error("listener error", dLog.Field{Key: "err", Value: err})
			}
			return true, err
		}
		if err := s.sink.Handle(ctx, ntf); err != nil {
			s.log.Error("sink failed",
				dLog.Field{Key: "channel", Value: ntf.Channel},
				dLog.Field{Key: "err", Value: err},
			)
		}
	}
	return true, nil
}
