package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-client/internal/config"
	"github.com/example/ride-client/internal/ingest"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
	"github.com/example/ride-client/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total transition messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	journal, err := storage.NewPostgresJournal(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := journal.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema failed", "error", err)
		os.Exit(1)
	}

	p := &projector{journal: journal, attempts: cfg.WriteAttempts, backoff: cfg.WriteBackoff, logger: logger}
	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rc.Close()
		p.cache = &redisAdapter{c: rc}
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := journal.Ping(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			if rc != nil {
				if err := rc.Ping(r.Context()).Err(); err != nil {
					http.Error(w, "redis not ready", 503)
					return
				}
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()
		observability.JournalLag.Set(float64(r.Stats().Lag))

		if err := p.handle(ctx, m.Value); err != nil {
			logger.Warn("transition not projected", "offset", m.Offset, "error", err)
		}
	}
}

var errInvalidMessage = errors.New("invalid message")

// StatusCache mirrors the latest status of each ride for dashboards.
type StatusCache interface {
	HSet(ctx context.Context, key string, values map[string]any) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]any) error {
	return r.c.HSet(ctx, key, values).Err()
}

// projector writes consumed transitions to the journal and, when
// configured, the status cache.
type projector struct {
	journal  storage.Journal
	cache    StatusCache
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

func (p *projector) handle(ctx context.Context, value []byte) error {
	t, err := ingest.DecodeTransition(value)
	if err != nil {
		msgsInvalid.Inc()
		return fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	if err := writeWithRetry(ctx, p.journal, t, p.attempts, p.backoff); err != nil {
		observability.JournalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("journal ride=%s to=%s: %w", t.RideID, t.To, err)
	}
	observability.JournalWrites.WithLabelValues("ok").Inc()
	if p.cache != nil {
		key := "ride:status:" + t.RideID
		if err := p.cache.HSet(ctx, key, map[string]any{"status": string(t.To), "at": t.At.Format(time.RFC3339)}); err != nil {
			p.logger.Warn("status cache update failed", "ride_id", t.RideID, "error", err)
		}
	}
	return nil
}

// writeWithRetry records t, retrying with a doubling delay.
func writeWithRetry(ctx context.Context, j storage.Journal, t models.Transition, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = j.Record(ctx, t); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
