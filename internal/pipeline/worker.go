// Package pipeline implements C8: the end-to-end per-ticket worker loop
// wiring every other component together — consume, classify, dedup, route,
// notify, ack/fail — grounded on the teacher's internal/matching/engine.go
// run-loop shape (context-cancelable goroutines over golang.org/x/sync/errgroup)
// and the original system's worker/worker.py process_ticket orchestration.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smart-support/routingcore/internal/broker"
	"github.com/smart-support/routingcore/internal/classifier"
	"github.com/smart-support/routingcore/internal/dedup"
	"github.com/smart-support/routingcore/internal/notifier"
	"github.com/smart-support/routingcore/internal/queue"
	"github.com/smart-support/routingcore/internal/routing"
	"github.com/smart-support/routingcore/internal/ticket"
)

// Config tunes pipeline behavior.
type Config struct {
	WorkerCount          int
	PollTimeout          time.Duration
	HighUrgencyThreshold float64
}

func (c *Config) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.HighUrgencyThreshold <= 0 {
		c.HighUrgencyThreshold = 0.8
	}
}

// Pipeline wires the broker, classifier, dedup, router, and notifier into
// the C8 worker loop.
type Pipeline struct {
	cfg Config

	broker     broker.Broker
	classifier classifier.Classifier
	dedup      *dedup.Deduplicator
	queue      *queue.PriorityQueue
	router     *routing.Coordinator
	notifier   notifier.Notifier
	logger     *zap.Logger
}

// New constructs a Pipeline. logger may be nil, in which case a no-op
// logger is used.
func New(
	b broker.Broker,
	c classifier.Classifier,
	d *dedup.Deduplicator,
	q *queue.PriorityQueue,
	r *routing.Coordinator,
	n notifier.Notifier,
	logger *zap.Logger,
	cfg Config,
) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		broker:     b,
		classifier: c,
		dedup:      d,
		queue:      q,
		router:     r,
		notifier:   n,
		logger:     logger,
	}
}

// Run starts cfg.WorkerCount consumer goroutines and blocks until ctx is
// canceled, then waits for them to drain in-flight work.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := i
		g.Go(func() error {
			return p.runWorker(ctx, workerID)
		})
	}
	return g.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context, workerID int) error {
	log := p.logger.With(zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := p.broker.Consume(ctx, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("consume failed", zap.Error(err))
			continue
		}
		if msg == nil {
			continue
		}

		if err := p.processTicket(ctx, *msg); err != nil {
			log.Error("process ticket failed", zap.String("ticket_id", msg.TicketID), zap.Error(err))
			if failErr := p.broker.Fail(ctx, msg.TicketID, err); failErr != nil {
				log.Error("fail ack failed", zap.String("ticket_id", msg.TicketID), zap.Error(failErr))
			}
			continue
		}

		if err := p.broker.Ack(ctx, msg.TicketID); err != nil {
			log.Error("ack failed", zap.String("ticket_id", msg.TicketID), zap.Error(err))
		}
	}
}

// processTicket runs the classify -> dedup -> route -> notify chain for one
// message. Notifier failures are swallowed; everything else is an error
// that sends the ticket to the dead-letter path.
func (p *Pipeline) processTicket(ctx context.Context, msg ticket.Message) error {
	result, err := p.classifier.Classify(ctx, msg.Subject, msg.Description)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	isDuplicate, masterID := p.dedup.AddTicket(msg.TicketID, msg.Subject, msg.Description)

	t := &ticket.Ticket{
		ID:             msg.TicketID,
		Subject:        msg.Subject,
		Description:    msg.Description,
		Category:       ticket.Category(result.Category),
		Urgency:        result.Urgency,
		SentimentScore: msg.SentimentScore,
		Status:         ticket.StatusQueued,
		MasterIncident: masterID,
		Metadata:       msg.Metadata,
	}
	p.queue.Enqueue(t)

	agentID, preempted := p.router.Route(routing.TicketRequest{
		TicketID:    msg.TicketID,
		Category:    result.Category,
		Urgency:     result.Urgency,
		Description: msg.Description,
	})
	if agentID != "" {
		t.Status = ticket.StatusAssigned
		t.AssignedAgentID = agentID
		if err := p.queue.Remove(t.ID); err != nil {
			p.logger.Warn("queue remove after assignment failed", zap.String("ticket_id", t.ID), zap.Error(err))
		}
	}
	if preempted != "" {
		p.logger.Info("preempted ticket to admit higher-urgency work",
			zap.String("ticket_id", t.ID), zap.String("preempted_ticket_id", preempted), zap.String("agent_id", agentID))
	}
	if isDuplicate {
		p.logger.Info("ticket folded into master incident", zap.String("ticket_id", t.ID), zap.String("master_incident", masterID))
	}

	if result.Urgency > p.cfg.HighUrgencyThreshold && !isDuplicate {
		alert := notifier.Alert{
			TicketID:       msg.TicketID,
			Subject:        msg.Subject,
			Category:       result.Category,
			Urgency:        result.Urgency,
			AssignedAgent:  agentID,
			MasterIncident: masterID,
		}
		if err := p.notifier.Notify(ctx, alert); err != nil {
			p.logger.Warn("notify failed", zap.String("ticket_id", msg.TicketID), zap.Error(err))
		}
	}

	return nil
}
