package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pgbridge/internal/domain/notify"
)

// OverflowPolicy decides what a bounded queue does when it is full.
type OverflowPolicy int

const (
	// OverflowBlock makes the producer wait for free space.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest buffered message.
	OverflowDropOldest
	// OverflowDropNewest discards the incoming message.
	OverflowDropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowDropNewest:
		return "drop_newest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy maps a config value to a policy. Empty means block.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return OverflowBlock, nil
	case "drop_oldest":
		return OverflowDropOldest, nil
	case "drop_newest":
		return OverflowDropNewest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy: %q", s)
	}
}

// queue is an ordered single-producer/single-consumer queue of raw messages.
// capacity 0 means unbounded.
type queue struct {
	capacity int
	policy   OverflowPolicy

	mu       sync.Mutex
	items    []notify.RawMessage
	dropped  uint64
	sendDone bool
	recvDone bool
	outcome  error

	ready  chan struct{} // an item or an outcome is available
	space  chan struct{} // an item was popped
	closed chan struct{} // closed on CloseRecv
}

func newQueue(capacity int, policy OverflowPolicy) *queue {
	if capacity < 0 {
		capacity = 0
	}
	return &queue{
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// Push appends msg. It returns errReceiverGone once the consumer went away and
// ErrQueueFull when a DropNewest queue discards msg.
func (q *queue) Push(ctx context.Context, msg notify.RawMessage) error {
	for {
		q.mu.Lock()
		if q.recvDone || q.sendDone {
			q.mu.Unlock()
			return errReceiverGone
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, msg)
			q.mu.Unlock()
			signal(q.ready)
			return nil
		}
		switch q.policy {
		case OverflowDropOldest:
			q.items[0] = nil
			q.items = append(q.items[1:], msg)
			q.dropped++
			q.mu.Unlock()
			signal(q.ready)
			return nil
		case OverflowDropNewest:
			q.dropped++
			q.mu.Unlock()
			return ErrQueueFull
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-q.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop returns the next buffered message. Once the queue is empty and the
// producer closed its half, it returns the outcome (ErrEndOfStream when the
// producer reported none). After CloseRecv an empty queue ends the stream
// without waiting for the producer.
func (q *queue) Pop(ctx context.Context) (notify.RawMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			signal(q.space)
			return msg, nil
		}
		if q.sendDone {
			err := q.outcome
			q.mu.Unlock()
			if err == nil {
				err = ErrEndOfStream
			}
			return nil, err
		}
		if q.recvDone {
			q.mu.Unlock()
			return nil, ErrEndOfStream
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.closed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CloseSend records the producer's terminal outcome. Only the first call has
// an effect.
func (q *queue) CloseSend(err error) {
	q.mu.Lock()
	if q.sendDone {
		q.mu.Unlock()
		return
	}
	q.sendDone = true
	q.outcome = err
	q.mu.Unlock()
	signal(q.ready)
}

// CloseRecv rejects further pushes. Buffered messages stay poppable.
func (q *queue) CloseRecv() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.recvDone {
		return
	}
	q.recvDone = true
	close(q.closed)
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
