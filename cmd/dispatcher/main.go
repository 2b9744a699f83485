// Command dispatcher runs the HTTP API and an in-process worker pool against
// a shared broker, queue, registry, and coordinator — the single-binary
// deployment shape. Grounded on the teacher's cmd/gateway/main.go: env-var
// config load, component construction, goroutine start, then SIGINT/SIGTERM
// graceful shutdown under a bounded context.
package main

import (
	"context"
	"log"
	"net/http"
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
	"github.com/smart-support/routingcore/internal/httpapi"
	"github.com/smart-support/routingcore/internal/metrics"
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
			Name:           "dispatcher",
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

func buildNotifier(cfg *config.Config) notifier.Notifier {
	var channels []notifier.Notifier
	if cfg.SlackToken != "" {
		channels = append(channels, notifier.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel))
	}
	if cfg.DiscordWebhook != "" {
		channels = append(channels, notifier.NewDiscordNotifier(cfg.DiscordWebhook))
	}
	return notifier.NewMultiNotifier(channels...)
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

	breakers := circuit.NewGroup(circuit.Config{
		LatencyThresholdMs: cfg.CircuitBreakerLatencyMs,
		Clock:              rt,
		OnStateChange: func(name string, from, to circuit.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	primaryClassifier := classifier.NewGatedClassifier(classifier.NewKeywordClassifier(), breakers.Get("classifier"), rt)

	n := buildNotifier(cfg)
	m := metrics.New()

	p := pipeline.New(brk, primaryClassifier, dd, q, coord, n, logger, pipeline.Config{
		WorkerCount:          cfg.WorkerCount,
		PollTimeout:          cfg.PollTimeout,
		HighUrgencyThreshold: cfg.HighUrgencyThreshold,
	})

	srv := httpapi.NewServer(q, reg, dd, coord, breakers, brk, primaryClassifier, m,
		cfg.HighUrgencyThreshold, cfg.GeneralistThreshold,
		[]string{"billing", "technical", "legal"},
		httpapi.Config{ReadTimeout: cfg.ReadTimeout, WriteTimeout: cfg.WriteTimeout})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	pipelineCtx, cancelPipeline := context.WithCancel(context.Background())
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(pipelineCtx); err != nil {
			logger.Error("pipeline stopped with error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("dispatcher starting", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start dispatcher", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down dispatcher")
	cancelPipeline()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("dispatcher shutdown error", zap.Error(err))
	}
	<-pipelineDone

	logger.Info("dispatcher stopped")
}
