package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slacklater/slacklater/internal/scheduler/domain"
)

var (
	messagesProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "messages_processed_total",
			Help:      "Total number of scheduled messages processed by the poller.",
		},
		[]string{"outcome"}, // sent, failed, skipped, error
	)
	deliveryDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of per-message delivery processing.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// PollerConfig holds configuration specific to the Poller.
type PollerConfig struct {
	PollingInterval time.Duration
	BatchSize       int
}

// Deliverer drives one message through the claim/send path.
type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.ScheduledMessage) (DeliveryOutcome, error)
}

// Poller periodically discovers due pending messages and delivers each one.
// A single poller instance is assumed; the per-record claim keeps concurrent
// callers within this process safe, but there is no leader election for
// multiple instances.
type Poller struct {
	repo      domain.ScheduledMessageRepository
	deliverer Deliverer
	logger    *slog.Logger
	config    PollerConfig
}

func NewPoller(
	repo domain.ScheduledMessageRepository,
	deliverer Deliverer,
	logger *slog.Logger,
	cfg PollerConfig,
) *Poller {
	return &Poller{
		repo:      repo,
		deliverer: deliverer,
		logger:    logger,
		config:    cfg,
	}
}

// PollAndDeliver runs one poll cycle: fetch a batch of due messages and
// deliver them sequentially. One message's failure never aborts the rest of
// the batch. Returns the number of messages attempted.
func (p *Poller) PollAndDeliver(ctx context.Context) (int, error) {
	due, err := p.repo.FindDue(ctx, time.Now().UTC(), p.config.BatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueMessages) {
			p.logger.DebugContext(ctx, "No due messages in this poll cycle")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find due messages: %w", err)
	}

	p.logger.InfoContext(ctx, "Found due messages", "count", len(due))

	attempted := 0
	for _, msg := range due {
		attempted++
		timer := prometheus.NewTimer(deliveryDurationHist)
		outcome, err := p.deliverer.Deliver(ctx, msg)
		timer.ObserveDuration()
		if err != nil {
			// Storage error on this record only; the rest of the batch
			// still gets its chance.
			p.logger.ErrorContext(ctx, "Delivery aborted by storage error", "message_id", msg.ID, "error", err)
			messagesProcessedCounter.WithLabelValues("error").Inc()
			continue
		}
		messagesProcessedCounter.WithLabelValues(string(outcome)).Inc()
	}

	return attempted, nil
}

// Run drives poll cycles on a fixed interval until the context is cancelled.
// Cycles serialize: a long cycle delays the next tick rather than
// overlapping with it.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Starting scheduler poller", "polling_interval", p.config.PollingInterval, "batch_size", p.config.BatchSize)
	ticker := time.NewTicker(p.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := p.PollAndDeliver(ctx)
			if err != nil {
				// Poll failures (e.g. a DB hiccup) are logged and retried
				// on the next tick; they never bring the process down.
				p.logger.ErrorContext(ctx, "Poll cycle failed", "error", err)
				continue
			}
			if processed > 0 {
				p.logger.InfoContext(ctx, "Poll cycle finished", "attempted", processed)
			}
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Poller stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}
