package mq

import (
	"fmt"
	"strings"
)

// Имена очередей по умолчанию.
const (
	DefaultRequestQueue  = "key-requests"
	DefaultResponseQueue = "generated-keys"
)

// Topology — набор durable-очередей, с которыми работает worker.
//
// Все очереди используются через default exchange:
// routing key совпадает с именем очереди, bindings не нужны.
type Topology struct {
	// RequestQueue — очередь запросов (потребляем).
	RequestQueue string

	// ResponseQueue — очередь ответов (публикуем).
	ResponseQueue string

	// DeadLetterQueue — очередь для сообщений, которые нельзя разобрать.
	// Пустая строка — dead-letter отключён.
	DeadLetterQueue string
}

// Queues возвращает имена всех объявляемых очередей.
func (t Topology) Queues() []string {
	queues := []string{t.RequestQueue, t.ResponseQueue}
	if t.DeadLetterQueue != "" {
		queues = append(queues, t.DeadLetterQueue)
	}
	return queues
}

// Declare идемпотентно объявляет все очереди топологии.
func (t Topology) Declare(ch Channel) error {
	return DeclareQueues(ch, t.Queues()...)
}

// DeclareQueues объявляет durable-очереди.
// Повторное объявление с теми же свойствами не является ошибкой.
func DeclareQueues(ch Channel, queues ...string) error {
	for _, name := range queues {
		if name == "" {
			continue
		}

		_, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return classify(fmt.Errorf("declare queue %s: %w", name, err))
		}
	}

	return nil
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	var b strings.Builder

	b.WriteString("(default exchange)\n")
	fmt.Fprintf(&b, "├── %s  consumer: keygen-worker\n", t.RequestQueue)
	if t.DeadLetterQueue == "" {
		fmt.Fprintf(&b, "└── %s  producer: keygen-worker\n", t.ResponseQueue)
		return b.String()
	}
	fmt.Fprintf(&b, "├── %s  producer: keygen-worker\n", t.ResponseQueue)
	fmt.Fprintf(&b, "└── %s  dead letters: manual processing\n", t.DeadLetterQueue)

	return b.String()
}
