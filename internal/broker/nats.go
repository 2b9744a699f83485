package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smart-support/routingcore/internal/ticket"
	"github.com/smart-support/routingcore/pkg/messaging"
)

// NATS subjects and the durable consumer name for the pending ticket queue.
const (
	SubjectPending    = "tickets.pending"
	SubjectDeadLetter = "tickets.dead_letter"
	durableConsumer   = "routingcore-workers"
)

// NATSBroker is a JetStream-backed Broker: at-least-once delivery with
// broker-side redelivery instead of the in-process or Redis backends'
// caller-managed processing set. Ack/Fail translate to JetStream's own
// Ack/Nak against the message the consumer handed out, so Consume must
// hold onto the *nats.Msg between calls.
type NATSBroker struct {
	client *messaging.Client
	sub    *nats.Subscription

	// outstanding maps a ticket id to the JetStream message delivered for
	// it, so a later Ack/Fail can acknowledge the right message. Guarded by
	// mu since the pipeline runs multiple workers consuming off the same
	// subscription concurrently.
	mu          sync.Mutex
	outstanding map[string]*nats.Msg
}

// NewNATSBroker creates the stream and a durable consumer on it, read through
// a synchronous (push-based, not pull) subscription, then returns a Broker
// ready to Consume.
func NewNATSBroker(client *messaging.Client) (*NATSBroker, error) {
	if _, err := client.CreateStream(&nats.StreamConfig{
		Name:     messaging.TicketStreamName,
		Subjects: messaging.TicketStreamSubjects,
		Storage:  nats.FileStorage,
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("create ticket stream: %w", err)
	}

	sub, err := client.JetStreamSubscribeSync(SubjectPending, durableConsumer)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", SubjectPending, err)
	}

	return &NATSBroker{
		client:      client,
		sub:         sub,
		outstanding: make(map[string]*nats.Msg),
	}, nil
}

func (b *NATSBroker) Publish(ctx context.Context, msg ticket.Message) (string, error) {
	if _, err := b.client.PublishAsync(ctx, SubjectPending, msg); err != nil {
		return "", fmt.Errorf("publish ticket: %w", err)
	}
	return msg.TicketID, nil
}

func (b *NATSBroker) Consume(ctx context.Context, timeout time.Duration) (*ticket.Message, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	natsMsg, err := b.sub.NextMsgWithContext(deadlineCtx)
	if err == nats.ErrTimeout || err == context.DeadlineExceeded {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	var msg ticket.Message
	if err := json.Unmarshal(natsMsg.Data, &msg); err != nil {
		natsMsg.Nak()
		return nil, fmt.Errorf("unmarshal ticket message: %w", err)
	}

	b.mu.Lock()
	b.outstanding[msg.TicketID] = natsMsg
	b.mu.Unlock()
	return &msg, nil
}

func (b *NATSBroker) Ack(ctx context.Context, ticketID string) error {
	b.mu.Lock()
	natsMsg, ok := b.outstanding[ticketID]
	if ok {
		delete(b.outstanding, ticketID)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no outstanding delivery for ticket %s", ticketID)
	}
	return natsMsg.Ack()
}

func (b *NATSBroker) Fail(ctx context.Context, ticketID string, cause error) error {
	b.mu.Lock()
	natsMsg, ok := b.outstanding[ticketID]
	if ok {
		delete(b.outstanding, ticketID)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no outstanding delivery for ticket %s", ticketID)
	}

	entry := DeadLetterEntry{TicketID: ticketID, Timestamp: time.Now().UTC()}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := b.client.Publish(ctx, SubjectDeadLetter, entry); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return natsMsg.Nak()
}

func (b *NATSBroker) Stats(ctx context.Context) (Stats, error) {
	info, err := b.sub.ConsumerInfo()
	if err != nil {
		return Stats{}, fmt.Errorf("consumer info: %w", err)
	}
	return Stats{
		QueueSize:       int(info.NumPending),
		ProcessingCount: int(info.NumAckPending),
	}, nil
}

func (b *NATSBroker) Close() error {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	return nil
}
