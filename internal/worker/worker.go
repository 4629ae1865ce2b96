package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/keygen/internal/domain"
	"github.com/shaiso/keygen/internal/mq"
)

const journalTimeout = 5 * time.Second

// KeyGenerator выдаёт новый ключ. Реализация: keygen.Generator.
type KeyGenerator interface {
	Generate() string
}

// Publisher публикует сообщения. Реализация: mq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, queue, messageID string, v any) error
	Publish(ctx context.Context, queue, messageID, contentType string, body []byte) error
}

// Journal сохраняет выданные ключи. Реализация: repo.KeyRepo.
type Journal interface {
	Record(ctx context.Context, key *domain.GeneratedKey) error
}

// Worker обрабатывает запросы на генерацию ключей.
//
// Worker не хранит состояние между сообщениями и не знает о соединении:
// publisher передаётся в Handler при каждом пересоздании канала.
type Worker struct {
	generator KeyGenerator
	topology  mq.Topology
	journal   Journal
	logger    *slog.Logger
	now       func() time.Time
}

// Config — конфигурация Worker.
type Config struct {
	// Generator — генератор ключей.
	Generator KeyGenerator

	// Topology — очереди ответов и dead-letter.
	Topology mq.Topology

	// Journal — журнал ключей (опционально).
	Journal Journal

	// Logger
	Logger *slog.Logger

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		generator: cfg.Generator,
		topology:  cfg.Topology,
		journal:   cfg.Journal,
		logger:    logger,
		now:       now,
	}
}

// Handler возвращает обработчик сообщений, публикующий ответы через pub.
func (w *Worker) Handler(pub Publisher) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		return w.handle(ctx, pub, d)
	}
}
