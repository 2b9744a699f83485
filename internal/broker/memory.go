package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smart-support/routingcore/internal/ticket"
)

// MemoryBroker is the in-process channel-backed Broker, used for
// single-binary deployments and tests. It keeps the same four logical
// buckets (pending/processing/completed/dead-letter) as the Redis backend,
// implemented with a mutex-guarded map plus a buffered channel standing in
// for the pending list so Consume can block with a timeout the way
// BRPOPLPUSH does against Redis.
type MemoryBroker struct {
	pending chan ticket.Message

	mu         sync.Mutex
	processing map[string]ticket.Message
	completed  map[string]bool
	deadLetter []DeadLetterEntry
}

// NewMemoryBroker constructs a MemoryBroker with the given pending queue
// capacity.
func NewMemoryBroker(capacity int) *MemoryBroker {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBroker{
		pending:    make(chan ticket.Message, capacity),
		processing: make(map[string]ticket.Message),
		completed:  make(map[string]bool),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, msg ticket.Message) (string, error) {
	if msg.TicketID == "" {
		msg.TicketID = uuid.New().String()
	}

	b.mu.Lock()
	b.processing[msg.TicketID] = msg
	b.mu.Unlock()

	select {
	case b.pending <- msg:
		return msg.TicketID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, timeout time.Duration) (*ticket.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-b.pending:
		return &msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBroker) Ack(ctx context.Context, ticketID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.processing, ticketID)
	b.completed[ticketID] = true
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, ticketID string, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.processing, ticketID)
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	b.deadLetter = append(b.deadLetter, DeadLetterEntry{
		TicketID:  ticketID,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (b *MemoryBroker) Stats(ctx context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		QueueSize:       len(b.pending),
		ProcessingCount: len(b.processing),
		CompletedCount:  len(b.completed),
		DeadLetterCount: len(b.deadLetter),
	}, nil
}

func (b *MemoryBroker) Close() error { return nil }
