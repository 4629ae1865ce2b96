package worker

import "errors"

// Ошибки обработки сообщения. Любая из них приводит к nack с requeue.
var (
	// ErrMalformedRequest — тело сообщения не удалось разобрать.
	ErrMalformedRequest = errors.New("malformed key request")

	// ErrPublishFailed — не удалось опубликовать ответ.
	ErrPublishFailed = errors.New("publish response failed")
)
