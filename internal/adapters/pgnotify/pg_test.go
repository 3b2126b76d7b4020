package pgnotify

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbridge/internal/bridge"
	"pgbridge/internal/domain/notify"
)

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		wantErr bool
	}{
		{name: "simple", channel: "test_notifications"},
		{name: "mixed case", channel: "Alerts_2"},
		{name: "leading underscore", channel: "_x"},
		{name: "empty", channel: "", wantErr: true},
		{name: "leading digit", channel: "1abc", wantErr: true},
		{name: "injection", channel: "x; DROP TABLE users", wantErr: true},
		{name: "quoted", channel: `"x"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannel(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscribe_Errors(t *testing.T) {
	n := New("postgres://localhost/db", nil)

	_, err := n.Subscribe(context.Background(), "bad name")
	assert.Error(t, err)

	_, err = n.Subscribe(context.Background(), "alerts")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, n.Close())
}

func TestConnect_BadDSN(t *testing.T) {
	n := New("postgres://%zz", nil)
	assert.Error(t, n.Connect(context.Background()))
}

func TestNoticeBuffer(t *testing.T) {
	n := New("", nil)
	assert.Empty(t, n.takeNotices())

	n.onNotice(&notify.NoticeMessage{Message: "a"})
	n.onNotice(&notify.NoticeMessage{Message: "b"})
	got := n.takeNotices()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].(*notify.NoticeMessage).Message)
	assert.Equal(t, "b", got[1].(*notify.NoticeMessage).Message)
	assert.Empty(t, n.takeNotices())
}

func TestPublish_RejectsInvalidChannel(t *testing.T) {
	p := &PgPublisher{}
	assert.Error(t, p.Publish(context.Background(), "no spaces allowed", "{}"))
	assert.NoError(t, p.Close())
}

// Runs against a real server when PGBRIDGE_TEST_DATABASE_URL is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("PGBRIDGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PGBRIDGE_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n := New(dsn, nil)
	require.NoError(t, n.Connect(ctx))
	defer func() { assert.NoError(t, n.Close()) }()

	stream, err := n.Subscribe(ctx, "pgbridge_test")
	require.NoError(t, err)

	_, err = n.Subscribe(ctx, "pgbridge_test")
	assert.ErrorIs(t, err, ErrAlreadyListening)

	pub, err := NewPublisher(ctx, dsn)
	require.NoError(t, err)
	defer pub.Close()

	for _, p := range []string{`{"k":1}`, `{"k":2}`} {
		require.NoError(t, pub.Publish(ctx, "pgbridge_test", p))
	}

	for _, want := range []string{`{"k":1}`, `{"k":2}`} {
		got, err := stream.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "pgbridge_test", got.Channel)
		assert.Equal(t, want, got.Payload)
		assert.NotZero(t, got.SenderID)
	}

	stream.Cancel()
	_, err = stream.Next(ctx)
	assert.True(t, errors.Is(err, bridge.ErrEndOfStream), "got %v", err)
}
