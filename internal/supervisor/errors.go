package supervisor

import "errors"

// Ошибки supervisor'а. Обе означают завершение процесса с ненулевым кодом.
var (
	// ErrRetriesExhausted — исчерпаны попытки подключения.
	ErrRetriesExhausted = errors.New("connection retries exhausted")

	// ErrFatal — ошибка, которая не лечится переподключением.
	ErrFatal = errors.New("fatal supervisor error")
)
