// Keygen Worker — выдаёт уникальные ключи по запросам из RabbitMQ.
//
// Worker:
//   - Потребляет запросы из очереди key-requests (по одному, prefetch=1)
//   - Генерирует UUID-ключ
//   - Публикует ответ в generated-keys и только потом подтверждает запрос
//   - При ошибке обработки возвращает запрос в очередь (nack + requeue)
//   - Переподключается к RabbitMQ с фиксированной паузой (до 10 попыток подряд)
//
// Коды выхода: 0 — остановка по сигналу, 1 — исчерпаны попытки подключения
// или фатальная ошибка.
//
// Workers масштабируются горизонтально: несколько процессов делят одну очередь.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/keygen/internal/config"
	"github.com/shaiso/keygen/internal/keygen"
	"github.com/shaiso/keygen/internal/mq"
	"github.com/shaiso/keygen/internal/repo"
	"github.com/shaiso/keygen/internal/supervisor"
	"github.com/shaiso/keygen/internal/telemetry"
	"github.com/shaiso/keygen/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting keygen-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	logger.Info("configuration loaded",
		"rabbitmq", cfg.RabbitMQ.Address(),
		"request_queue", cfg.Topology.RequestQueue,
		"response_queue", cfg.Topology.ResponseQueue,
		"dead_letter_queue", cfg.Topology.DeadLetterQueue,
	)
	logger.Debug("topology\n" + cfg.Topology.Info())

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Журнал ключей (опционально)
	var journal worker.Journal
	if cfg.JournalDBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.JournalDBURL)
		if err != nil {
			logger.Warn("key journal not available, running without it", "error", err)
		} else {
			defer pool.Close()

			keyRepo := repo.NewKeyRepo(pool)
			if err := keyRepo.EnsureSchema(ctx); err != nil {
				logger.Warn("failed to prepare key journal, running without it", "error", err)
			} else {
				journal = keyRepo
				logger.Info("key journal enabled")
			}
		}
	}

	w := worker.New(worker.Config{
		Generator: keygen.New(cfg.KeyDelay),
		Topology:  cfg.Topology,
		Journal:   journal,
		Logger:    logger,
	})

	rabbit := cfg.RabbitMQ
	rabbit.ConnectionName = connectionName()

	sup := supervisor.New(supervisor.Config{
		Dial: func(context.Context) (supervisor.Session, error) {
			conn, err := mq.Dial(rabbit, logger)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Topology: cfg.Topology,
		Handler: func(ch mq.Channel) mq.Handler {
			return w.Handler(mq.NewPublisher(ch, logger))
		},
		Prefetch:    mq.DefaultPrefetch,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		Logger:      logger,
	})

	// HTTP mux: /healthz + /readyz + /metrics
	srv := newHTTPServer(":"+cfg.WorkerPort, sup)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		srv.Shutdown(shutdownCtx)
	}()

	err = sup.Run(ctx)
	switch {
	case err == nil:
		logger.Info("keygen-worker stopped")
		return 0
	case errors.Is(err, supervisor.ErrRetriesExhausted):
		logger.Error("giving up on RabbitMQ", "error", err)
		return 1
	default:
		logger.Error("keygen-worker failed", "error", err)
		return 1
	}
}

// newHTTPServer создаёт сервер для health-проверок и метрик.
func newHTTPServer(addr string, sup *supervisor.Supervisor) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		state := sup.State()
		if state != supervisor.StateConsuming {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Write([]byte(state))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// connectionName — имя соединения в RabbitMQ management UI.
func connectionName() string {
	host, err := os.Hostname()
	if err != nil {
		return "keygen-worker"
	}
	return "keygen-worker@" + host
}
