package dispatch

import (
	"context"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"
)

// Sender is the broker-facing side of the dispatcher
type Sender interface {
	Send(topic, key, value string) error
}

// OutboxDispatcher polls the notification outbox and publishes pending
// events to the broker. Publishing is fire-and-forget with respect to the
// financial state that produced the event: a send failure only bumps the
// retry counter, it never touches the originating records.
type OutboxDispatcher struct {
	outboxRepo repository.OutboxRepository
	sender     Sender
	interval   time.Duration
	batchSize  int
	maxRetries int
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewOutboxDispatcher creates an outbox dispatcher
func NewOutboxDispatcher(outboxRepo repository.OutboxRepository, sender Sender, cfg *config.KafkaConfig) *OutboxDispatcher {
	return &OutboxDispatcher{
		outboxRepo: outboxRepo,
		sender:     sender,
		interval:   cfg.DispatchInterval,
		batchSize:  cfg.DispatchBatch,
		maxRetries: cfg.MaxRetries,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the dispatch loop until Stop is called or the context ends
func (d *OutboxDispatcher) Start(ctx context.Context) {
	log := logger.WithComponent("outbox_dispatcher")
	log.WithField("interval", d.interval.String()).Info("Outbox dispatcher started")

	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Outbox dispatcher stopped - context cancelled")
			return
		case <-d.stopCh:
			log.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.processPending(ctx)
		}
	}
}

// Stop signals the dispatch loop to exit and waits for it
func (d *OutboxDispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *OutboxDispatcher) processPending(ctx context.Context) {
	log := logger.WithComponent("outbox_dispatcher")

	events, err := d.outboxRepo.GetPending(ctx, d.batchSize)
	if err != nil {
		log.WithError(err).Error("Failed to fetch pending outbox events")
		return
	}

	for _, event := range events {
		d.dispatch(ctx, event)
	}
}

func (d *OutboxDispatcher) dispatch(ctx context.Context, event *models.OutboxEvent) {
	log := logger.WithComponent("outbox_dispatcher").WithField("event_id", event.ID)

	if err := d.sender.Send(event.Topic, event.EventKey, event.Payload); err != nil {
		log.WithError(err).Warn("Failed to publish outbox event")
		metrics.OutboxPublished.WithLabelValues("error").Inc()

		if retryErr := d.outboxRepo.IncrementRetry(ctx, event.ID); retryErr != nil {
			log.WithError(retryErr).Error("Failed to increment outbox retry count")
			return
		}

		if event.RetryCount+1 >= d.maxRetries {
			if failErr := d.outboxRepo.MarkFailed(ctx, event.ID); failErr != nil {
				log.WithError(failErr).Error("Failed to mark outbox event as failed")
			} else {
				log.Warn("Outbox event exceeded max retries, marked failed")
			}
		}
		return
	}

	if err := d.outboxRepo.MarkSent(ctx, event.ID); err != nil {
		log.WithError(err).Error("Failed to mark outbox event as sent")
		return
	}

	metrics.OutboxPublished.WithLabelValues("sent").Inc()
	log.WithField("topic", event.Topic).WithField("key", event.EventKey).Debug("Outbox event published")
}
