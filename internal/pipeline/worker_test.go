package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/broker"
	"github.com/smart-support/routingcore/internal/classifier"
	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/internal/dedup"
	"github.com/smart-support/routingcore/internal/notifier"
	"github.com/smart-support/routingcore/internal/queue"
	"github.com/smart-support/routingcore/internal/registry"
	"github.com/smart-support/routingcore/internal/routing"
	"github.com/smart-support/routingcore/internal/ticket"
)

type countingNotifier struct {
	alerts []notifier.Alert
}

func (c *countingNotifier) Notify(ctx context.Context, alert notifier.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, broker.Broker, *registry.Registry, *countingNotifier) {
	fake := clock.NewFake(time.Now())
	b := broker.NewMemoryBroker(8)
	reg := registry.New(fake)
	q := queue.New()
	coord := routing.New(reg, routing.Config{Clock: fake})
	dd := dedup.New(dedup.Config{Clock: fake})
	n := &countingNotifier{}

	p := New(b, classifier.NewKeywordClassifier(), dd, q, coord, n, nil, Config{WorkerCount: 1, PollTimeout: 50 * time.Millisecond})
	return p, b, reg, n
}

func TestProcessTicketRoutesToAvailableAgent(t *testing.T) {
	p, _, reg, _ := newTestPipeline(t)
	reg.RegisterAgent("Alice", map[string]float64{"billing": 0.9}, 2)

	err := p.processTicket(context.Background(), ticket.Message{
		TicketID:    "t1",
		Subject:     "Invoice issue",
		Description: "urgent payment failed",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, p.queue.Size(), "assigned ticket should be removed from the pending queue")
}

func TestProcessTicketQueuesWhenNoAgentAvailable(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)

	err := p.processTicket(context.Background(), ticket.Message{
		TicketID:    "t1",
		Subject:     "Invoice issue",
		Description: "payment failed",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.queue.Size())
}

func TestProcessTicketNotifiesAboveHighUrgencyThreshold(t *testing.T) {
	p, _, reg, n := newTestPipeline(t)
	reg.RegisterAgent("Alice", map[string]float64{"technical": 0.9}, 2)

	err := p.processTicket(context.Background(), ticket.Message{
		TicketID:    "t1",
		Subject:     "Server down",
		Description: "critical outage, api broken immediately",
	})
	require.NoError(t, err)
	require.Len(t, n.alerts, 1)
	assert.Equal(t, "t1", n.alerts[0].TicketID)
}

func TestRunDrainsOnContextCancel(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.NoError(t, err)
}
