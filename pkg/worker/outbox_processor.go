package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries is how many polls may fail before an event is marked failed.
	MaxRetries int
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return errors.New("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return errors.New("PollInterval must be greater than 0")
	case c.RetryAttempts <= 0:
		return errors.New("RetryAttempts must be greater than 0")
	case c.RetryDelay <= 0:
		return errors.New("RetryDelay must be greater than 0")
	case c.MaxRetries <= 0:
		return errors.New("MaxRetries must be greater than 0")
	}
	return nil
}

// Publisher delivers one outbox event.
type Publisher interface {
	PublishEvent(ctx context.Context, event *model.OutboxEvent) error
}

// OutboxProcessor relays pending billing events to the broker. It never
// changes billing state.
type OutboxProcessor struct {
	repo      repository.OutboxRepository
	publisher Publisher
	config    OutboxProcessorConfig
	metrics   *metrics.Metrics
	now       func() time.Time
	sleep     func(time.Duration)
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	publisher Publisher,
	config OutboxProcessorConfig,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		metrics:   metrics,
		now:       time.Now,
		sleep:     time.Sleep,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	log.Info().Dur("poll_interval", p.config.PollInterval).Msg("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process outbox events")
			}
		}
	}
}

// ProcessBatch relays one batch and returns how many events were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
		defer timer.ObserveDuration()
	}

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	if p.metrics != nil {
		p.metrics.OutboxQueueSize.Set(float64(len(events)))
	}

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		if err := p.processEvent(ctx, event); err != nil {
			log.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Int("retry_count", event.RetryCount).
				Msg("failed to publish outbox event")
			continue
		}
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := p.retry(func() error {
		return p.publisher.PublishEvent(ctx, event)
	})

	if err != nil {
		if p.metrics != nil {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		if event.RetryCount+1 >= p.config.MaxRetries {
			if p.metrics != nil {
				p.metrics.OutboxEventsFailed.Inc()
			}
			if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				log.Error().Err(markErr).Str("event_id", event.ID.String()).Msg("failed to mark event failed")
			}
			return err
		}
		retryAt := p.now().Add(p.backoff(event.RetryCount))
		if markErr := p.repo.MarkRetry(ctx, event.ID, err.Error(), retryAt); markErr != nil {
			log.Error().Err(markErr).Str("event_id", event.ID.String()).Msg("failed to schedule event retry")
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.OutboxEventsProcessed.Inc()
	}
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// backoff doubles the poll interval per failed poll, capped at 64x.
func (p *OutboxProcessor) backoff(retryCount int) time.Duration {
	if retryCount > 6 {
		retryCount = 6
	}
	return p.config.PollInterval << uint(retryCount)
}

func (p *OutboxProcessor) retry(fn func() error) error {
	var err error
	for i := 0; i < p.config.RetryAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < p.config.RetryAttempts-1 {
			p.sleep(p.config.RetryDelay)
		}
	}
	return err
}
