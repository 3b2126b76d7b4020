package pgnotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"

	"pgbridge/internal/bridge"
	dLog "pgbridge/internal/domain/log"
	"pgbridge/internal/domain/notify"
)

const closeTimeout = 10 * time.Second

var (
	ErrNotConnected     = errors.New("pgnotify: nil connection")
	ErrAlreadyListening = errors.New("pgnotify: Subscribe already running on this instance")
)

// session is the part of *pgx.Conn the notifier uses.
type session interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	IsClosed() bool
	Close(ctx context.Context) error
	// Abort drops the socket without the termination handshake. It is safe
	// while another goroutine is blocked reading.
	Abort() error
}

type pgxSession struct {
	*pgx.Conn
}

func (s pgxSession) Abort() error {
	return s.PgConn().Conn().Close()
}

// PgNotifier owns one session and bridges a single LISTEN channel of it.
type PgNotifier struct {
	dsn          string
	log          dLog.Logger
	opts         []bridge.Option
	conn         session
	listening    atomic.Bool
	stream       *bridge.Stream
	closeTimeout time.Duration

	mu      sync.Mutex
	notices []notify.RawMessage
	wake    context.CancelFunc
}

func New(dsn string, log dLog.Logger, opts ...bridge.Option) *PgNotifier {
	if log == nil {
		log = dLog.Nop()
	}
	return &PgNotifier{dsn: dsn, log: log, opts: opts, closeTimeout: closeTimeout}
}

func (n *PgNotifier) Connect(ctx context.Context) error {
	cfg, err := pgx.ParseConfig(n.dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	cfg.OnNotice = func(_ *pgconn.PgConn, nt *pgconn.Notice) {
		n.onNotice(&notify.NoticeMessage{
			Severity: nt.Severity,
			Code:     nt.Code,
			Message:  nt.Message,
		})
	}
	// A cancelled wait must leave the session usable: a deadline interrupts
	// the read without closing the connection.
	cfg.BuildContextWatcherHandler = func(pgConn *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.DeadlineContextWatcherHandler{Conn: pgConn.Conn()}
	}

	c, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return err
	}
	n.conn = pgxSession{Conn: c}
	return nil
}

var channelNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateChannel rejects names that are not plain identifiers.
func ValidateChannel(ch string) error {
	if !channelNameRe.MatchString(ch) {
		return fmt.Errorf("invalid channel name: %q", ch)
	}
	return nil
}

// Subscribe issues LISTEN and starts the bridge. The returned stream owns the
// session until it ends; call Close to stop it and release the connection.
func (n *PgNotifier) Subscribe(ctx context.Context, channel string) (*bridge.Stream, error) {
	if err := ValidateChannel(channel); err != nil {
		return nil, err
	}
	if n.conn == nil {
		return nil, ErrNotConnected
	}
	if !n.listening.CompareAndSwap(false, true) {
		return nil, ErrAlreadyListening
	}

	ident := pgx.Identifier{channel}.Sanitize()
	if _, err := n.conn.Exec(ctx, "UNLISTEN "+ident); err != nil {
		// ignored: we may not have been subscribed
		n.log.Debug("unlisten before listen failed", dLog.Field{Key: "err", Value: err})
	}
	if _, err := n.conn.Exec(ctx, "LISTEN "+ident); err != nil {
		n.listening.Store(false)
		return nil, fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	n.log.Info("listening", dLog.Field{Key: "channel", Value: channel})

	src := &source{n: n, ident: ident}
	opts := append([]bridge.Option{
		bridge.WithLogger(n.log),
		bridge.WithChannel(channel),
	}, n.opts...)
	n.stream = bridge.Start(ctx, src, opts...)
	return n.stream, nil
}

// Close stops the running stream, if any, and closes the session. When the
// poll driver does not stop in time the socket is dropped instead of closed
// gracefully.
func (n *PgNotifier) Close() error {
	var stopErr error
	if n.stream != nil {
		ctx, cancel := context.WithTimeout(context.Background(), n.closeTimeout)
		stopErr = n.stream.Close(ctx)
		cancel()
	}
	if n.conn == nil {
		return stopErr
	}
	if stopErr != nil {
		return errors.Join(fmt.Errorf("stop stream: %w", stopErr), n.conn.Abort())
	}
	return n.conn.Close(context.Background())
}

func (n *PgNotifier) onNotice(m notify.RawMessage) {
	n.mu.Lock()
	n.notices = append(n.notices, m)
	wake := n.wake
	n.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// armWake registers the cancel func of the wait in progress; a notice
// interrupts it so it is delivered without waiting for the next notification.
func (n *PgNotifier) armWake(cancel context.CancelFunc) {
	n.mu.Lock()
	n.wake = cancel
	n.mu.Unlock()
}

func (n *PgNotifier) takeNotices() []notify.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns := n.notices
	n.notices = nil
	return ns
}

// source is the bridge.Source over the notifier's session. Only the poll
// driver touches it.
type source struct {
	n       *PgNotifier
	ident   string
	pending []notify.RawMessage
	err     error
}

// Poll returns protocol messages in arrival order: notices received while
// waiting come before the notification that ended the wait.
func (s *source) Poll(ctx context.Context) (notify.RawMessage, error) {
	for {
		if len(s.pending) > 0 {
			m := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			return m, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if ns := s.n.takeNotices(); len(ns) > 0 {
			s.pending = ns
			continue
		}
		if s.n.conn.IsClosed() {
			return nil, io.EOF
		}

		waitCtx, cancel := context.WithCancel(ctx)
		s.n.armWake(cancel)
		ntf, err := s.n.conn.WaitForNotification(waitCtx)
		s.n.armWake(nil)
		woken := waitCtx.Err() != nil && ctx.Err() == nil
		cancel()

		s.pending = append(s.pending, s.n.takeNotices()...)
		if ntf != nil {
			s.pending = append(s.pending, &notify.NotificationMessage{
				PID:     ntf.PID,
				Channel: ntf.Channel,
				Payload: ntf.Payload,
			})
		}
		if err != nil && !woken {
			s.err = err
		}
	}
}

func (s *source) Release(ctx context.Context) error {
	defer s.n.listening.Store(false)
	if s.n.conn.IsClosed() {
		return nil
	}
	if _, err := s.n.conn.Exec(ctx, "UNLISTEN "+s.ident); err != nil {
		return fmt.Errorf("UNLISTEN: %w", err)
	}
	return nil
}
