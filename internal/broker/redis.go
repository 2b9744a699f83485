package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smart-support/routingcore/internal/ticket"
)

// Redis key names, matching the wire format named in SPEC_FULL.md §6 and
// the original system's broker/async_broker.py.
const (
	KeyTicketQueue = "tickets:queue"
	KeyProcessing  = "tickets:processing"
	KeyCompleted   = "tickets:completed"
	KeyDeadLetter  = "tickets:dead_letter"

	processingTTL = time.Hour
)

// RedisBroker is the Redis-backed Broker, grounded directly on the original
// Python system's thin AsyncBroker: LPUSH+SADD+EXPIRE pipelined for publish,
// BRPOPLPUSH for an atomic consume-and-lock.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an already-connected *redis.Client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, msg ticket.Message) (string, error) {
	if msg.TicketID == "" {
		msg.TicketID = uuid.New().String()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	pipe := b.client.Pipeline()
	pipe.LPush(ctx, KeyTicketQueue, payload)
	pipe.SAdd(ctx, KeyProcessing, msg.TicketID)
	pipe.Expire(ctx, KeyProcessing, processingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return msg.TicketID, nil
}

func (b *RedisBroker) Consume(ctx context.Context, timeout time.Duration) (*ticket.Message, error) {
	result, err := b.client.BRPopLPush(ctx, KeyTicketQueue, KeyProcessing, timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msg ticket.Message
	if err := json.Unmarshal([]byte(result), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (b *RedisBroker) Ack(ctx context.Context, ticketID string) error {
	pipe := b.client.Pipeline()
	pipe.SRem(ctx, KeyProcessing, ticketID)
	pipe.SAdd(ctx, KeyCompleted, ticketID)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Fail(ctx context.Context, ticketID string, cause error) error {
	entry := DeadLetterEntry{TicketID: ticketID, Timestamp: time.Now().UTC()}
	if cause != nil {
		entry.Error = cause.Error()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.SRem(ctx, KeyProcessing, ticketID)
	pipe.LPush(ctx, KeyDeadLetter, payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Stats(ctx context.Context) (Stats, error) {
	pipe := b.client.Pipeline()
	queueSize := pipe.LLen(ctx, KeyTicketQueue)
	processing := pipe.SCard(ctx, KeyProcessing)
	completed := pipe.SCard(ctx, KeyCompleted)
	deadLetter := pipe.LLen(ctx, KeyDeadLetter)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}

	return Stats{
		QueueSize:       int(queueSize.Val()),
		ProcessingCount: int(processing.Val()),
		CompletedCount:  int(completed.Val()),
		DeadLetterCount: int(deadLetter.Val()),
	}, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
