package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки запроса.
const (
	OutcomePublished    = "published"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
)

// Результаты попытки подключения.
const (
	ConnectSuccess = "success"
	ConnectFailure = "failure"
)

var (
	// RequestsTotal — обработанные запросы по исходу.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygen_requests_total",
		Help: "Key requests handled by keygen_worker, by outcome",
	}, []string{"outcome"})

	// KeysGenerated — сгенерированные ключи.
	KeysGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keygen_keys_generated_total",
		Help: "Keys generated by keygen_worker",
	})

	// RequestDuration — время обработки одного запроса.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keygen_request_duration_seconds",
		Help:    "Time spent handling a single key request",
		Buckets: prometheus.DefBuckets,
	})

	// ConnectionAttempts — попытки подключения к RabbitMQ.
	ConnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keygen_connection_attempts_total",
		Help: "RabbitMQ connection attempts made by keygen_worker, by result",
	}, []string{"result"})
)

// SupervisorState — текущее состояние supervisor'а (1 — активное).
var SupervisorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "keygen_supervisor_state",
	Help: "Current connection supervisor state of keygen_worker (1 = active)",
}, []string{"state"})
