package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/keygen/internal/domain"
	"github.com/shaiso/keygen/internal/mq"
)

// Broker — операции CLI над очередями.
type Broker struct {
	ch        mq.Channel
	publisher *mq.Publisher
	topology  mq.Topology
	now       func() time.Time
	newID     func() string
}

// NewBroker создаёт Broker поверх канала и объявляет очереди.
func NewBroker(ch mq.Channel, topology mq.Topology, logger *slog.Logger) (*Broker, error) {
	if err := topology.Declare(ch); err != nil {
		return nil, err
	}

	return &Broker{
		ch:        ch,
		publisher: mq.NewPublisher(ch, logger),
		topology:  topology,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}, nil
}

// RequestKeys публикует count запросов и возвращает их requestId.
func (b *Broker) RequestKeys(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := b.newID()

		req, err := domain.NewKeyRequest(id, b.now())
		if err != nil {
			return ids, err
		}

		if err := b.publisher.PublishJSON(ctx, b.topology.RequestQueue, id, req); err != nil {
			return ids, fmt.Errorf("publish request %s: %w", id, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// DrainResponses забирает до limit ответов из очереди ответов.
//
// Ответ подтверждается только после успешного разбора; то, что
// разобрать не удалось, возвращается в очередь и попадает в skipped.
func (b *Broker) DrainResponses(limit int) (keys []domain.GeneratedKey, skipped int, err error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("limit must be positive, got %d", limit)
	}

	for len(keys) < limit {
		d, ok, err := b.ch.Get(b.topology.ResponseQueue, false)
		if err != nil {
			return keys, skipped, fmt.Errorf("get from %s: %w", b.topology.ResponseQueue, err)
		}
		if !ok {
			break
		}

		key, err := decodeGeneratedKey(d.Body)
		if err != nil {
			skipped++
			if err := d.Nack(false, true); err != nil {
				return keys, skipped, fmt.Errorf("nack response: %w", err)
			}
			// nack с requeue вернёт сообщение в голову очереди,
			// дальше читать бессмысленно
			break
		}

		if err := d.Ack(false); err != nil {
			return keys, skipped, fmt.Errorf("ack response: %w", err)
		}
		keys = append(keys, *key)
	}

	return keys, skipped, nil
}
