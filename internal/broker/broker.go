// Package broker defines the substitutable broker contract (C7): push,
// pop-with-lock, ack, and dead-letter operations connecting producers and
// the worker pipeline. Implementations below cover the three backends named
// in SPEC_FULL.md §4.6: in-process channel, Redis, and NATS JetStream.
package broker

import (
	"context"
	"time"

	"github.com/smart-support/routingcore/internal/ticket"
)

// DeadLetterEntry is one failed, non-retried ticket.
type DeadLetterEntry struct {
	TicketID  string    `json:"ticket_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is a point-in-time summary of broker occupancy.
type Stats struct {
	QueueSize        int
	ProcessingCount  int
	CompletedCount   int
	DeadLetterCount  int
}

// Broker is the C7 contract. publish/consume/ack/fail are each individually
// atomic; retries, if any, are the concern of the backend, not callers.
type Broker interface {
	// Publish atomically appends the ticket to the pending queue and marks
	// it processing, returning its id.
	Publish(ctx context.Context, msg ticket.Message) (string, error)

	// Consume atomically moves one ticket from pending to processing,
	// blocking up to timeout. Returns (nil, nil) on timeout with no ticket.
	Consume(ctx context.Context, timeout time.Duration) (*ticket.Message, error)

	// Ack atomically moves ticketID from processing to completed.
	Ack(ctx context.Context, ticketID string) error

	// Fail atomically moves ticketID from processing to the dead-letter list.
	Fail(ctx context.Context, ticketID string, cause error) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
