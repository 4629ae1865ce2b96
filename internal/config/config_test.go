package config

import (
	"errors"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RabbitMQ.Host != DefaultHost {
		t.Errorf("Host = %q", cfg.RabbitMQ.Host)
	}
	if cfg.RabbitMQ.Port != 5672 {
		t.Errorf("Port = %d", cfg.RabbitMQ.Port)
	}
	if cfg.RabbitMQ.Username != "guest" || cfg.RabbitMQ.Password != "guest" {
		t.Errorf("unexpected credentials: %s/%s", cfg.RabbitMQ.Username, cfg.RabbitMQ.Password)
	}
	if cfg.Topology.RequestQueue != "key-requests" {
		t.Errorf("RequestQueue = %q", cfg.Topology.RequestQueue)
	}
	if cfg.Topology.ResponseQueue != "generated-keys" {
		t.Errorf("ResponseQueue = %q", cfg.Topology.ResponseQueue)
	}
	if cfg.Topology.DeadLetterQueue != "" {
		t.Errorf("dead-letter queue should be disabled by default, got %q", cfg.Topology.DeadLetterQueue)
	}
	if cfg.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.RetryDelay != 5*time.Second {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay)
	}
	if cfg.KeyDelay != time.Second {
		t.Errorf("KeyDelay = %v", cfg.KeyDelay)
	}
	if cfg.WorkerPort != "8082" {
		t.Errorf("WorkerPort = %q", cfg.WorkerPort)
	}
	if cfg.JournalDBURL != "" {
		t.Errorf("journal should be disabled by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"RABBITMQ_HOST":        "localhost",
		"RABBITMQ_PORT":        "5673",
		"RABBITMQ_USER":        "keygen",
		"RABBITMQ_PASS":        "secret",
		"REQUEST_QUEUE":        "in",
		"RESPONSE_QUEUE":       "out",
		"DEAD_LETTER_QUEUE":    "in.dlq",
		"CONNECT_MAX_ATTEMPTS": "3",
		"CONNECT_RETRY_DELAY":  "250ms",
		"KEY_GENERATION_DELAY": "0",
		"KEY_JOURNAL_DB_URL":   "postgres://localhost/keygen",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RabbitMQ.Address() != "localhost:5673" {
		t.Errorf("Address = %q", cfg.RabbitMQ.Address())
	}
	if cfg.Topology.RequestQueue != "in" || cfg.Topology.ResponseQueue != "out" || cfg.Topology.DeadLetterQueue != "in.dlq" {
		t.Errorf("unexpected topology: %+v", cfg.Topology)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v", cfg.RetryDelay)
	}
	if cfg.KeyDelay != 0 {
		t.Errorf("KeyDelay = %v", cfg.KeyDelay)
	}
	if cfg.JournalDBURL == "" {
		t.Error("JournalDBURL should be set")
	}
}

func TestFromEnv_RetryDelaySeconds(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{"CONNECT_RETRY_DELAY": "7"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RetryDelay != 7*time.Second {
		t.Errorf("RetryDelay = %v, want 7s", cfg.RetryDelay)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"RABBITMQ_PORT": "abc"}},
		{"port out of range", map[string]string{"RABBITMQ_PORT": "70000"}},
		{"zero attempts", map[string]string{"CONNECT_MAX_ATTEMPTS": "0"}},
		{"bad delay", map[string]string{"CONNECT_RETRY_DELAY": "soon"}},
		{"negative delay", map[string]string{"KEY_GENERATION_DELAY": "-1s"}},
		{"same queues", map[string]string{"REQUEST_QUEUE": "q", "RESPONSE_QUEUE": "q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(tt.env))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
