package notify

import "context"

// Notification is a decoded NOTIFY event. Values are passed by copy and never
// retained by the bridge.
type Notification struct {
	Channel  string
	Payload  string
	SenderID uint32
}

// RawMessage is an undecoded asynchronous protocol message received on a session.
type RawMessage interface {
	rawMessage()
}

// NotificationMessage is a NotificationResponse as sent by the server.
type NotificationMessage struct {
	PID     uint32
	Channel string
	Payload string
}

// NoticeMessage is a NoticeResponse (RAISE NOTICE, warnings and the like).
type NoticeMessage struct {
	Severity string
	Code     string
	Message  string
}

func (*NotificationMessage) rawMessage() {}
func (*NoticeMessage) rawMessage()       {}

type Publisher interface {
	Publish(ctx context.Context, channel, payload string) error
	Close() error
}
