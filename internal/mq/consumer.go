package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение будет nack с requeue).
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// Tag возвращает delivery tag.
func (d *Delivery) Tag() uint64 {
	return d.Raw.DeliveryTag
}

// Redelivered — сообщение доставляется повторно.
func (d *Delivery) Redelivered() bool {
	return d.Raw.Redelivered
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь для повторной доставки.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// DefaultPrefetch — одно неподтверждённое сообщение на consumer.
const DefaultPrefetch = 1

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — максимум неподтверждённых доставок (default: 1).
	Prefetch int

	// Started вызывается после успешной подписки на очередь (опционально).
	Started func()
}

// Consumer потребляет сообщения из очереди RabbitMQ.
//
// Обработка строго последовательная: следующее сообщение берётся
// только после ack/nack текущего.
type Consumer struct {
	ch       Channel
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int
	started  func()
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(ch Channel, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}

	return &Consumer{
		ch:       ch,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		started:  cfg.Started,
	}
}

// Run настраивает prefetch, подписывается на очередь и обрабатывает
// доставки. Блокируется до отмены ctx (возвращает ctx.Err()) или
// до закрытия потока доставок (возвращает ErrConnection).
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return classify(fmt.Errorf("set qos: %w", err))
	}

	deliveries, err := c.ch.Consume(
		c.queue, // queue
		"",      // consumer tag генерирует брокер
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return classify(fmt.Errorf("consume %s: %w", c.queue, err))
	}

	c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)
	if c.started != nil {
		c.started()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return connectionError(fmt.Errorf("%w: %s", ErrDeliveriesClosed, c.queue))
			}

			if err := c.handleDelivery(ctx, raw); err != nil {
				return err
			}
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
// Ошибка возвращается только если не удалось ack/nack.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) error {
	delivery := &Delivery{Raw: raw}

	if err := c.invoke(ctx, delivery); err != nil {
		c.logger.Error("handler failed, requeueing",
			"queue", c.queue,
			"delivery_tag", raw.DeliveryTag,
			"redelivered", raw.Redelivered,
			"error", err,
		)

		if err := delivery.Nack(true); err != nil {
			return classify(fmt.Errorf("nack delivery %d: %w", raw.DeliveryTag, err))
		}
		return nil
	}

	if err := delivery.Ack(); err != nil {
		return classify(fmt.Errorf("ack delivery %d: %w", raw.DeliveryTag, err))
	}

	return nil
}

// invoke вызывает handler, превращая panic в ошибку обработки.
func (c *Consumer) invoke(ctx context.Context, d *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return c.handler(ctx, d)
}
