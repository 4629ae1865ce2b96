package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/keygen/internal/domain"
	"github.com/shaiso/keygen/internal/mq"
	"github.com/shaiso/keygen/internal/telemetry"
)

const contentTypeUnknown = "application/octet-stream"

// handle обрабатывает одно сообщение из очереди запросов.
func (w *Worker) handle(ctx context.Context, pub Publisher, d *mq.Delivery) error {
	start := time.Now()
	defer func() {
		telemetry.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	// 1. Разбираем запрос
	req, err := domain.DecodeKeyRequest(d.Body())
	if err != nil {
		return w.handleMalformed(ctx, pub, d, err)
	}

	logger := telemetry.WithRequestID(w.logger, req.RequestIDString())
	logger.Info("received key request",
		"delivery_tag", d.Tag(),
		"redelivered", d.Redelivered(),
	)

	// 2. Генерируем ключ
	key := w.generator.Generate()
	telemetry.KeysGenerated.Inc()

	// 3. Собираем и публикуем ответ
	resp := domain.NewGeneratedKey(req, key, w.now())

	if err := pub.PublishJSON(ctx, w.topology.ResponseQueue, key, resp); err != nil {
		telemetry.RequestsTotal.WithLabelValues(telemetry.OutcomeRequeued).Inc()
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	logger.Info("generated key", "key", key, "queue", w.topology.ResponseQueue)

	// 4. Журнал (best effort)
	w.record(ctx, logger, resp)

	telemetry.RequestsTotal.WithLabelValues(telemetry.OutcomePublished).Inc()
	return nil
}

// handleMalformed решает судьбу сообщения, которое не удалось разобрать.
func (w *Worker) handleMalformed(ctx context.Context, pub Publisher, d *mq.Delivery, cause error) error {
	dlq := w.topology.DeadLetterQueue
	if dlq == "" {
		telemetry.RequestsTotal.WithLabelValues(telemetry.OutcomeRequeued).Inc()
		return fmt.Errorf("%w: %w", ErrMalformedRequest, cause)
	}

	contentType := d.Raw.ContentType
	if contentType == "" {
		contentType = contentTypeUnknown
	}

	if err := pub.Publish(ctx, dlq, d.Raw.MessageId, contentType, d.Body()); err != nil {
		telemetry.RequestsTotal.WithLabelValues(telemetry.OutcomeRequeued).Inc()
		return fmt.Errorf("dead-letter malformed request: %w", err)
	}

	w.logger.Warn("malformed request moved to dead-letter queue",
		"queue", dlq,
		"delivery_tag", d.Tag(),
		"error", cause,
	)

	telemetry.RequestsTotal.WithLabelValues(telemetry.OutcomeDeadLettered).Inc()
	return nil
}

// record пишет ключ в журнал. Ответ уже опубликован, поэтому ошибка
// журнала не должна приводить к nack и повторной генерации.
func (w *Worker) record(ctx context.Context, logger *slog.Logger, key *domain.GeneratedKey) {
	if w.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	if err := w.journal.Record(ctx, key); err != nil {
		logger.Warn("failed to record generated key", "key", key.Key, "error", err)
	}
}
