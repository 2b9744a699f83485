// Command worker runs the C8 pipeline standalone against a shared broker
// backend, with no HTTP surface — the horizontally-scaled deployment shape
// for when dispatcher instances own routing state and workers only drain
// the queue. Grounded on the original system's worker/worker.py main loop
// and the teacher's per-service cmd/* split.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smart-support/routingcore/internal/broker"
	"github.com/smart-support/routingcore/internal/classifier"
	"github.com/smart-support/routingcore/internal/clock"
	"github.com/smart-support/routingcore/internal/config"
	"github.com/smart-support/routingcore/internal/dedup"
	"github.com/smart-support/routingcore/internal/notifier"
	"github.com/smart-support/routingcore/internal/pipeline"
	"github.com/smart-support/routingcore/internal/queue"
	"github.com/smart-support/routingcore/internal/registry"
	"github.com/smart-support/routingcore/internal/routing"
	"github.com/smart-support/routingcore/pkg/circuit"
	"github.com/smart-support/routingcore/pkg/messaging"
)

func buildBroker(cfg *config.Config) broker.Broker {
	switch cfg.BrokerBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return broker.NewRedisBroker(client)
	case "nats":
		client, err := messaging.NewClient(messaging.Config{
			URL:            cfg.NATSUrl,
			Name:           "worker",
			ReconnectWait:  time.Second,
			MaxReconnects:  60,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		b, err := broker.NewNATSBroker(client)
		if err != nil {
			log.Fatalf("failed to build NATS broker: %v", err)
		}
		return b
	default:
		return broker.NewMemoryBroker(1024)
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()
	rt := clock.Real{}

	brk := buildBroker(cfg)
	defer brk.Close()

	q := queue.New()
	reg := registry.New(rt)
	dd := dedup.New(dedup.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		TimeWindow:          time.Duration(cfg.DuplicateTimeWindowMins) * time.Minute,
		CountThreshold:      cfg.DuplicateCountThreshold,
		Clock:               rt,
	})
	coord := routing.New(reg, routing.Config{
		GeneralistThreshold:     cfg.GeneralistThreshold,
		PreemptionUrgencyThresh: cfg.PreemptionUrgencyThreshold,
		ETABaseSeconds:          cfg.ETABaseSeconds,
		Clock:                   rt,
	})
	breaker := circuit.NewBreaker(circuit.Config{Name: "classifier", LatencyThresholdMs: cfg.CircuitBreakerLatencyMs, Clock: rt})
	primaryClassifier := classifier.NewGatedClassifier(classifier.NewKeywordClassifier(), breaker, rt)

	var channels []notifier.Notifier
	if cfg.SlackToken != "" {
		channels = append(channels, notifier.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel))
	}
	if cfg.DiscordWebhook != "" {
		channels = append(channels, notifier.NewDiscordNotifier(cfg.DiscordWebhook))
	}
	n := notifier.NewMultiNotifier(channels...)

	p := pipeline.New(brk, primaryClassifier, dd, q, coord, n, logger, pipeline.Config{
		WorkerCount:          cfg.WorkerCount,
		PollTimeout:          cfg.PollTimeout,
		HighUrgencyThreshold: cfg.HighUrgencyThreshold,
	})

	ctx, cancel := context.WithCancel(context.Background())
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("worker pipeline stopped with error", zap.Error(err))
		}
	}()

	logger.Info("worker started", zap.Int("worker_count", cfg.WorkerCount))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	<-pipelineDone
	logger.Info("worker stopped")
}
