package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ContentTypeJSON — content type публикуемых сообщений.
const ContentTypeJSON = "application/json"

// Publisher публикует сообщения в очереди через default exchange.
type Publisher struct {
	ch     Channel
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher создаёт Publisher поверх канала.
func NewPublisher(ch Channel, logger *slog.Logger) *Publisher {
	return &Publisher{
		ch:     ch,
		logger: logger,
		now:    time.Now,
	}
}

// PublishJSON сериализует v в JSON и публикует в очередь queue.
// Пустой messageID заменяется сгенерированным UUID.
func (p *Publisher) PublishJSON(ctx context.Context, queue, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.Publish(ctx, queue, messageID, ContentTypeJSON, body)
}

// Publish публикует тело как persistent-сообщение.
func (p *Publisher) Publish(ctx context.Context, queue, messageID, contentType string, body []byte) error {
	if messageID == "" {
		messageID = uuid.New().String()
	}

	err := p.ch.PublishWithContext(
		ctx,
		"",    // default exchange
		queue, // routing key = имя очереди
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    messageID,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		return classify(fmt.Errorf("publish to %s: %w", queue, err))
	}

	p.logger.Debug("published message",
		"queue", queue,
		"message_id", messageID,
	)

	return nil
}
