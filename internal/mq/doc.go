// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — одно AMQP-соединение и один канал (heartbeat, blocked timeout)
//   - topology.go   — объявление durable-очередей
//   - publisher.go  — публикация persistent JSON-сообщений через default exchange
//   - consumer.go   — потребление с prefetch и ручным ack/nack
//   - errors.go     — классификация ошибок (connection-level или нет)
//
// Пакет не переподключается сам: при любой connection-level ошибке
// соединение пересоздаётся целиком уровнем выше (см. internal/supervisor).
//
// Очереди по умолчанию:
//   - key-requests   — запросы на генерацию ключа
//   - generated-keys — сгенерированные ключи
package mq
