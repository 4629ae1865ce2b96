package mq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки пакета.
var (
	// ErrConnection — connection-level ошибка: брокер недоступен,
	// не прошла аутентификация, соединение или канал закрылись.
	// Такие ошибки лечатся пересозданием соединения.
	ErrConnection = errors.New("broker connection error")

	// ErrDeliveriesClosed — брокер закрыл канал доставки.
	ErrDeliveriesClosed = errors.New("deliveries channel closed")
)

// IsConnectionError проверяет, относится ли ошибка к connection-level.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// connectionError помечает err как connection-level.
func connectionError(err error) error {
	if err == nil || errors.Is(err, ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// classify помечает ошибку как connection-level, если канал или соединение
// уже закрыты либо брокер закрыл соединение целиком.
// Channel-level ошибки (например, PRECONDITION_FAILED при объявлении очереди
// с другими свойствами) остаются как есть.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrConnection) {
		return err
	}

	if errors.Is(err, amqp.ErrClosed) {
		return connectionError(err)
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && isConnectionCode(amqpErr.Code) {
		return connectionError(err)
	}

	return err
}

// isConnectionCode — коды AMQP, при которых брокер закрывает соединение.
func isConnectionCode(code int) bool {
	switch code {
	case amqp.ConnectionForced,
		amqp.FrameError,
		amqp.SyntaxError,
		amqp.CommandInvalid,
		amqp.UnexpectedFrame,
		amqp.ResourceError,
		amqp.InternalError:
		return true
	}
	return false
}
