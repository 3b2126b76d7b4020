package bridge

import (
	"fmt"

	"pgbridge/internal/domain/notify"
)

type Kind int

const (
	KindIgnored Kind = iota
	KindNotification
)

// Event is the result of decoding one raw message.
type Event struct {
	Kind         Kind
	Notification notify.Notification

	// Raw is set for ignored messages so diagnostics can inspect them.
	Raw notify.RawMessage
	// Anomaly describes why a message that looked like a notification was
	// ignored.
	Anomaly string
}

// Decode classifies msg. It never fails: anything that is not a well formed
// notification decodes to KindIgnored.
func Decode(msg notify.RawMessage) Event {
	switch m := msg.(type) {
	case *notify.NotificationMessage:
		if m == nil {
			return Event{Kind: KindIgnored, Raw: msg, Anomaly: "nil notification"}
		}
		if m.Channel == "" {
			return Event{Kind: KindIgnored, Raw: msg, Anomaly: "notification without channel name"}
		}
		return Event{
			Kind: KindNotification,
			Notification: notify.Notification{
				Channel:  m.Channel,
				Payload:  m.Payload,
				SenderID: m.PID,
			},
		}
	default:
		return Event{Kind: KindIgnored, Raw: msg}
	}
}

// describe renders an ignored message for logs.
func describe(msg notify.RawMessage) string {
	switch m := msg.(type) {
	case *notify.NoticeMessage:
		return fmt.Sprintf("notice %s %s: %s", m.Severity, m.Code, m.Message)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", msg)
	}
}
