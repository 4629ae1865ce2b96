// Package mqtest содержит fake-реализации mq.Channel и amqp.Acknowledger
// для тестов без брокера.
package mqtest

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/keygen/internal/mq"
)

var (
	_ mq.Channel        = (*Channel)(nil)
	_ amqp.Acknowledger = (*Acknowledger)(nil)
)

// Recorder — общий журнал вызовов канала и acknowledger'а.
// Позволяет проверять порядок, например publish перед ack.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Record добавляет событие.
func (r *Recorder) Record(format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// Events возвращает копию журнала.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Nack — зафиксированный nack.
type Nack struct {
	Tag     uint64
	Requeue bool
}

// Acknowledger записывает ack/nack вместо отправки брокеру.
type Acknowledger struct {
	Recorder *Recorder

	// AckErr и NackErr возвращаются из соответствующих методов.
	AckErr  error
	NackErr error

	mu    sync.Mutex
	acks  []uint64
	nacks []Nack
}

// Ack implements amqp.Acknowledger.
func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AckErr != nil {
		return a.AckErr
	}
	a.acks = append(a.acks, tag)
	a.Recorder.Record("ack %d", tag)
	return nil
}

// Nack implements amqp.Acknowledger.
func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.NackErr != nil {
		return a.NackErr
	}
	a.nacks = append(a.nacks, Nack{Tag: tag, Requeue: requeue})
	a.Recorder.Record("nack %d requeue=%t", tag, requeue)
	return nil
}

// Reject implements amqp.Acknowledger.
func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Acks возвращает подтверждённые delivery tags.
func (a *Acknowledger) Acks() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acks...)
}

// Nacks возвращает отклонённые доставки.
func (a *Acknowledger) Nacks() []Nack {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Nack(nil), a.nacks...)
}

// NewDelivery создаёт доставку, привязанную к acknowledger'у.
func NewDelivery(ack *Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		ContentType:  mq.ContentTypeJSON,
		Body:         body,
	}
}

// Published — зафиксированная публикация.
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// Channel — fake mq.Channel.
type Channel struct {
	Recorder *Recorder

	// Ошибки, которые вернут соответствующие методы.
	QosErr          error
	QueueDeclareErr error
	ConsumeErr      error
	PublishErr      error
	GetErr          error

	// Pending — сообщения для Get.
	Pending []amqp.Delivery

	mu         sync.Mutex
	deliveries chan amqp.Delivery
	published  []Published
	declared   []string
	prefetch   []int
	consumed   []string
	closed     bool
}

// NewChannel создаёт fake-канал с буфером доставок.
func NewChannel() *Channel {
	return &Channel{deliveries: make(chan amqp.Delivery, 16)}
}

// Deliver кладёт доставку в поток consumer'а.
func (c *Channel) Deliver(d amqp.Delivery) {
	c.deliveries <- d
}

// Qos implements mq.Channel.
func (c *Channel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QosErr != nil {
		return c.QosErr
	}
	c.prefetch = append(c.prefetch, prefetchCount)
	return nil
}

// QueueDeclare implements mq.Channel.
func (c *Channel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QueueDeclareErr != nil {
		return amqp.Queue{}, c.QueueDeclareErr
	}
	if !durable {
		return amqp.Queue{}, fmt.Errorf("queue %s must be durable", name)
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

// Consume implements mq.Channel.
func (c *Channel) Consume(queue, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	if autoAck {
		return nil, fmt.Errorf("auto-ack is not expected")
	}
	c.consumed = append(c.consumed, queue)
	return c.deliveries, nil
}

// PublishWithContext implements mq.Channel.
func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, Published{Exchange: exchange, Key: key, Msg: msg})
	c.Recorder.Record("publish %s", key)
	return nil
}

// Get implements mq.Channel.
func (c *Channel) Get(_ string, _ bool) (amqp.Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return amqp.Delivery{}, false, c.GetErr
	}
	if len(c.Pending) == 0 {
		return amqp.Delivery{}, false, nil
	}
	d := c.Pending[0]
	c.Pending = c.Pending[1:]
	return d, true, nil
}

// Close закрывает поток доставок, как это делает брокер при разрыве.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.deliveries)
	return nil
}

// Published возвращает все публикации.
func (c *Channel) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Declared возвращает объявленные очереди.
func (c *Channel) Declared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.declared...)
}

// Prefetch возвращает значения prefetch из вызовов Qos.
func (c *Channel) Prefetch() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.prefetch...)
}

// Consumed возвращает очереди, на которые подписывались.
func (c *Channel) Consumed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.consumed...)
}

// IsClosed проверяет, закрыт ли канал.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
