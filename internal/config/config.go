// Package config собирает конфигурацию процесса из переменных окружения.
//
// Конфигурация читается один раз в main и передаётся дальше явно,
// глобального состояния нет. Перед чтением подгружается .env
// (если файл есть).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/shaiso/keygen/internal/keygen"
	"github.com/shaiso/keygen/internal/mq"
)

// Значения по умолчанию.
const (
	DefaultHost        = "rabbitmq.rabbitmq.svc.cluster.local"
	DefaultPort        = 5672
	DefaultUser        = "guest"
	DefaultPassword    = "guest"
	DefaultVHost       = "/"
	DefaultMaxAttempts = 10
	DefaultRetryDelay  = 5 * time.Second
	DefaultWorkerPort  = "8082"
)

// ErrInvalid — некорректное значение переменной окружения.
var ErrInvalid = errors.New("invalid configuration")

// Config — конфигурация worker'а и CLI.
type Config struct {
	// RabbitMQ — параметры подключения.
	RabbitMQ mq.Settings

	// Topology — имена очередей.
	Topology mq.Topology

	// MaxAttempts — максимум подряд неудачных попыток подключения.
	MaxAttempts int

	// RetryDelay — фиксированная пауза между попытками.
	RetryDelay time.Duration

	// KeyDelay — искусственная задержка генерации ключа.
	KeyDelay time.Duration

	// WorkerPort — порт для /healthz и /metrics.
	WorkerPort string

	// JournalDBURL — DSN Postgres для журнала ключей; пустой — журнал выключен.
	JournalDBURL string
}

// Load подгружает .env и читает конфигурацию из окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	return FromEnv(os.LookupEnv)
}

// FromEnv читает конфигурацию через lookup (os.LookupEnv в production).
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(name, def string) string {
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
		return def
	}

	port, err := parseInt(get("RABBITMQ_PORT", ""), DefaultPort, "RABBITMQ_PORT")
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: RABBITMQ_PORT out of range: %d", ErrInvalid, port)
	}

	maxAttempts, err := parseInt(get("CONNECT_MAX_ATTEMPTS", ""), DefaultMaxAttempts, "CONNECT_MAX_ATTEMPTS")
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: CONNECT_MAX_ATTEMPTS must be positive", ErrInvalid)
	}

	retryDelay, err := parseDuration(get("CONNECT_RETRY_DELAY", ""), DefaultRetryDelay, "CONNECT_RETRY_DELAY")
	if err != nil {
		return nil, err
	}

	keyDelay, err := parseDuration(get("KEY_GENERATION_DELAY", ""), keygen.DefaultDelay, "KEY_GENERATION_DELAY")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RabbitMQ: mq.Settings{
			Host:     get("RABBITMQ_HOST", DefaultHost),
			Port:     port,
			Username: get("RABBITMQ_USER", DefaultUser),
			Password: get("RABBITMQ_PASS", DefaultPassword),
			VHost:    get("RABBITMQ_VHOST", DefaultVHost),
		},
		Topology: mq.Topology{
			RequestQueue:    get("REQUEST_QUEUE", mq.DefaultRequestQueue),
			ResponseQueue:   get("RESPONSE_QUEUE", mq.DefaultResponseQueue),
			DeadLetterQueue: get("DEAD_LETTER_QUEUE", ""),
		},
		MaxAttempts:  maxAttempts,
		RetryDelay:   retryDelay,
		KeyDelay:     keyDelay,
		WorkerPort:   get("WORKER_PORT", DefaultWorkerPort),
		JournalDBURL: get("KEY_JOURNAL_DB_URL", ""),
	}

	if cfg.Topology.RequestQueue == cfg.Topology.ResponseQueue {
		return nil, fmt.Errorf("%w: REQUEST_QUEUE and RESPONSE_QUEUE must differ", ErrInvalid)
	}

	return cfg, nil
}

func parseInt(raw string, def int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, name, raw, err)
	}
	return v, nil
}

// parseDuration принимает Go duration ("5s", "250ms") или целое число секунд.
func parseDuration(raw string, def time.Duration, name string) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	var d time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalid, name, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
	}
	return d, nil
}
