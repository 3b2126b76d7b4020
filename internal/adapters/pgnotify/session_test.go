package pgnotify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbridge/internal/bridge"
	"pgbridge/internal/domain/notify"
)

type waitFunc func(ctx context.Context) (*pgconn.Notification, error)

// fakeSession replays scripted waits, then blocks like an idle connection.
type fakeSession struct {
	mu       sync.Mutex
	waits    []waitFunc
	execs    []string
	closed   bool
	graceful int
	aborts   int
	abortCh  chan struct{}
}

func newFakeSession(waits ...waitFunc) *fakeSession {
	return &fakeSession{waits: waits, abortCh: make(chan struct{})}
}

func (s *fakeSession) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	s.mu.Lock()
	if len(s.waits) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	w := s.waits[0]
	s.waits = s.waits[1:]
	s.mu.Unlock()
	return w(ctx)
}

func (s *fakeSession) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (s *fakeSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graceful++
	return nil
}

func (s *fakeSession) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.abortCh)
	}
	s.closed = true
	s.aborts++
	return nil
}

func (s *fakeSession) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.execs...)
}

func notice(n *PgNotifier, text string) func() {
	return func() { n.onNotice(&notify.NoticeMessage{Severity: "NOTICE", Message: text}) }
}

func notification(payload string) *pgconn.Notification {
	return &pgconn.Notification{PID: 11, Channel: "alerts", Payload: payload}
}

func messageText(t *testing.T, m notify.RawMessage) string {
	t.Helper()
	switch v := m.(type) {
	case *notify.NoticeMessage:
		return "notice:" + v.Message
	case *notify.NotificationMessage:
		return "notify:" + v.Payload
	default:
		t.Fatalf("unexpected message %T", m)
		return ""
	}
}

func TestSource_NoticesBeforeNotification(t *testing.T) {
	n := New("", nil)
	n.conn = newFakeSession(
		func(context.Context) (*pgconn.Notification, error) {
			notice(n, "first")()
			notice(n, "second")()
			return notification("1"), nil
		},
		func(context.Context) (*pgconn.Notification, error) {
			return notification("2"), nil
		},
	)
	src := &source{n: n}
	ctx := context.Background()

	var got []string
	for range 4 {
		m, err := src.Poll(ctx)
		require.NoError(t, err)
		got = append(got, messageText(t, m))
	}
	assert.Equal(t, []string{"notice:first", "notice:second", "notify:1", "notify:2"}, got)
}

func TestSource_NoticeWakesIdleWait(t *testing.T) {
	n := New("", nil)
	n.conn = newFakeSession(
		func(ctx context.Context) (*pgconn.Notification, error) {
			notice(n, "while idle")()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)
	src := &source{n: n}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m, err := src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "notice:while idle", messageText(t, m))
	require.NoError(t, ctx.Err())
}

func TestSource_ErrorAfterPendingMessages(t *testing.T) {
	boom := errors.New("connection reset")
	n := New("", nil)
	n.conn = newFakeSession(
		func(context.Context) (*pgconn.Notification, error) {
			notice(n, "last words")()
			return nil, boom
		},
	)
	src := &source{n: n}
	ctx := context.Background()

	m, err := src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "notice:last words", messageText(t, m))

	_, err = src.Poll(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = src.Poll(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestSource_ClosedSessionIsEOF(t *testing.T) {
	n := New("", nil)
	sess := newFakeSession()
	sess.closed = true
	n.conn = sess

	_, err := (&source{n: n}).Poll(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_DiagnosticsInArrivalOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}
	n := New("", nil, bridge.WithDiagnosticHook(func(ev bridge.Event) {
		record("notice:" + ev.Raw.(*notify.NoticeMessage).Message)
	}))
	sess := newFakeSession()
	sess.waits = []waitFunc{
		func(ctx context.Context) (*pgconn.Notification, error) {
			notice(n, "idle")()
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(context.Context) (*pgconn.Notification, error) {
			notice(n, "before")()
			return notification("1"), nil
		},
	}
	n.conn = sess

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, err := n.Subscribe(ctx, "alerts")
	require.NoError(t, err)

	got, err := stream.Next(ctx)
	require.NoError(t, err)
	record("notify:" + got.Payload)

	require.NoError(t, n.Close())
	mu.Lock()
	assert.Equal(t, []string{"notice:idle", "notice:before", "notify:1"}, seen)
	mu.Unlock()

	assert.Equal(t, []string{`UNLISTEN "alerts"`, `LISTEN "alerts"`, `UNLISTEN "alerts"`}, sess.executed())
	assert.Equal(t, 1, sess.graceful)
	assert.Zero(t, sess.aborts)
}

func TestClose_AbortsWhenStreamDoesNotStop(t *testing.T) {
	n := New("", nil)
	n.closeTimeout = 20 * time.Millisecond
	sess := newFakeSession()
	sess.waits = []waitFunc{
		// ignores cancellation, like a read stuck on a dead peer
		func(context.Context) (*pgconn.Notification, error) {
			<-sess.abortCh
			return nil, errors.New("use of closed network connection")
		},
	}
	n.conn = sess

	stream, err := n.Subscribe(context.Background(), "alerts")
	require.NoError(t, err)

	err = n.Close()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, sess.aborts)
	assert.Zero(t, sess.graceful)

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("poll driver did not exit after abort")
	}
}
