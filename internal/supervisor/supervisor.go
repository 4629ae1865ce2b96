package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/looplab/fsm"

	"github.com/shaiso/keygen/internal/mq"
	"github.com/shaiso/keygen/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultMaxAttempts = 10
	defaultRetryDelay  = 5 * time.Second
)

// Session — открытое соединение с каналом. Реализация: *mq.Connection.
type Session interface {
	Channel() mq.Channel
	Close() error
}

// Dialer открывает новую Session.
type Dialer func(ctx context.Context) (Session, error)

// HandlerFactory создаёт обработчик сообщений для канала сессии.
type HandlerFactory func(ch mq.Channel) mq.Handler

// Config — конфигурация Supervisor.
type Config struct {
	// Dial открывает соединение и канал.
	Dial Dialer

	// Topology — объявляемые очереди; RequestQueue потребляется.
	Topology mq.Topology

	// Handler создаёт обработчик для каждой новой сессии.
	Handler HandlerFactory

	// Prefetch — лимит неподтверждённых доставок (default: 1).
	Prefetch int

	// MaxAttempts — максимум подряд неудачных попыток (default: 10).
	MaxAttempts int

	// RetryDelay — пауза между попытками (default: 5s).
	RetryDelay time.Duration

	// OnTransition вызывается при каждой смене состояния (опционально).
	OnTransition func(from, to string)

	// Logger
	Logger *slog.Logger
}

// Supervisor держит соединение с брокером и гоняет цикл потребления.
type Supervisor struct {
	dial        Dialer
	topology    mq.Topology
	newHandler  HandlerFactory
	prefetch    int
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger

	machine *fsm.FSM
	sleep   func(ctx context.Context, d time.Duration) error
}

// New создаёт новый Supervisor.
func New(cfg Config) *Supervisor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = mq.DefaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		dial:        cfg.Dial,
		topology:    cfg.Topology,
		newHandler:  cfg.Handler,
		prefetch:    prefetch,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
		sleep:       sleepContext,
	}

	s.machine = newMachine(func(from, to string) {
		s.logger.Debug("supervisor state changed", "from", from, "to", to)
		if cfg.OnTransition != nil {
			cfg.OnTransition(from, to)
		}
	})

	return s
}

// State возвращает текущее состояние.
func (s *Supervisor) State() string {
	return s.machine.Current()
}

// Run блокируется, пока не случится одно из:
//   - отмена ctx — соединение закрывается, возвращается nil;
//   - MaxAttempts подряд connection-level ошибок — ErrRetriesExhausted;
//   - любая другая ошибка — ErrFatal.
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0

	for {
		if ctx.Err() != nil {
			return s.shutdown()
		}

		err := s.runSession(ctx, failures+1, func() { failures = 0 })

		if ctx.Err() != nil {
			return s.shutdown()
		}

		if err == nil {
			err = fmt.Errorf("consume loop ended: %w", mq.ErrConnection)
		}

		if !mq.IsConnectionError(err) {
			s.transition(EventFail)
			s.logger.Error("unexpected error, exiting", "error", err)
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}

		failures++
		logger := telemetry.WithAttempt(s.logger, failures, s.maxAttempts)
		logger.Warn("connection attempt failed", "error", err)
		s.transition(EventConnectionLost)

		if failures >= s.maxAttempts {
			logger.Error("max retries reached, exiting")
			s.transition(EventFail)
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, failures, err)
		}

		logger.Info("retrying", "delay", s.retryDelay)
		if err := s.sleep(ctx, s.retryDelay); err != nil {
			return s.shutdown()
		}

		s.transition(EventReconnect)
	}
}

// runSession проходит connecting → declaring → consuming на новой сессии
// и блокируется в цикле потребления. Сессия всегда закрывается на выходе.
func (s *Supervisor) runSession(ctx context.Context, attempt int, onConsuming func()) error {
	s.logger.Info("connecting to RabbitMQ", "attempt", attempt, "max_attempts", s.maxAttempts)

	sess, err := s.dial(ctx)
	if err != nil {
		telemetry.ConnectionAttempts.WithLabelValues(telemetry.ConnectFailure).Inc()
		return err
	}
	telemetry.ConnectionAttempts.WithLabelValues(telemetry.ConnectSuccess).Inc()

	// Shutdown закрывает соединение сразу, не дожидаясь обработчика:
	// in-flight сообщение останется без ack и вернётся в очередь.
	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Debug("failed to close session", "error", err)
		}
	}()

	s.transition(EventDeclare)

	ch := sess.Channel()
	if err := s.topology.Declare(ch); err != nil {
		return err
	}

	consumer := mq.NewConsumer(ch, s.logger, mq.ConsumerConfig{
		Queue:    s.topology.RequestQueue,
		Handler:  s.newHandler(ch),
		Prefetch: s.prefetch,
		Started: func() {
			s.transition(EventConsume)
			onConsuming()
			s.logger.Info("waiting for key generation requests", "queue", s.topology.RequestQueue)
		},
	})

	return consumer.Run(ctx)
}

// shutdown завершает работу по сигналу.
func (s *Supervisor) shutdown() error {
	s.transition(EventInterrupt)
	s.logger.Info("shutting down consumer")
	return nil
}

// transition выполняет событие машины состояний.
// Недопустимый переход — ошибка программиста, её достаточно залогировать.
func (s *Supervisor) transition(event string) {
	if err := s.machine.Event(context.Background(), event); err != nil {
		s.logger.Error("invalid supervisor transition",
			"event", event,
			"state", s.machine.Current(),
			"error", err,
		)
	}
}

// sleepContext ждёт d или отмены ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
