package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Параметры соединения, которые не настраиваются снаружи.
const (
	// DefaultHeartbeat — интервал heartbeat для обнаружения мёртвых соединений.
	DefaultHeartbeat = 600 * time.Second

	// DefaultBlockedTimeout — сколько соединение может оставаться
	// заблокированным брокером (flow control), прежде чем мы его закроем.
	DefaultBlockedTimeout = 300 * time.Second

	dialTimeout = 30 * time.Second
)

// Channel — подмножество методов *amqp.Channel, которые использует пакет.
// Выделено в интерфейс, чтобы тесты не требовали брокера.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Settings — параметры подключения к RabbitMQ.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	VHost    string

	// ConnectionName — имя соединения в management UI.
	ConnectionName string

	// Heartbeat и BlockedTimeout; нулевые значения — значения по умолчанию.
	Heartbeat      time.Duration
	BlockedTimeout time.Duration
}

// URL возвращает AMQP URI.
func (s Settings) URL() string {
	vhost := s.VHost
	if vhost == "" {
		vhost = "/"
	}

	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		Vhost:    vhost,
	}
	return uri.String()
}

// Address возвращает host:port без учётных данных (для логов).
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Connection — одно AMQP-соединение и один канал поверх него.
//
// Живёт ровно одну итерацию цикла supervisor'а: при любой ошибке
// закрывается и создаётся заново, частичного переиспользования нет.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger

	blockedTimeout time.Duration

	// closeConn закрывает соединение с ограничением по времени.
	closeConn func() error

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Dial открывает соединение и канал.
// Любая ошибка возвращается как connection-level (ErrConnection).
func Dial(s Settings, logger *slog.Logger) (*Connection, error) {
	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	blockedTimeout := s.BlockedTimeout
	if blockedTimeout <= 0 {
		blockedTimeout = DefaultBlockedTimeout
	}

	props := amqp.NewConnectionProperties()
	if s.ConnectionName != "" {
		props.SetClientConnectionName(s.ConnectionName)
	}

	conn, err := amqp.DialConfig(s.URL(), amqp.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
		Dial:       amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, connectionError(fmt.Errorf("dial amqp %s: %w", s.Address(), err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, connectionError(fmt.Errorf("open channel: %w", err))
	}

	c := &Connection{
		conn:           conn,
		channel:        ch,
		logger:         logger,
		blockedTimeout: blockedTimeout,
		done:           make(chan struct{}),
	}
	// заблокированный брокер не читает сокет и не ответит close-ok,
	// поэтому обычный Close может висеть бесконечно
	c.closeConn = func() error {
		return conn.CloseDeadline(time.Now().Add(dialTimeout))
	}

	go c.watchBlocked(conn.NotifyBlocked(make(chan amqp.Blocking, 1)))

	c.logger.Info("connected to RabbitMQ", "addr", s.Address(), "heartbeat", heartbeat)

	return c, nil
}

// watchBlocked закрывает соединение, если брокер держит его
// заблокированным дольше blockedTimeout. Закрытие соединения завершает
// поток доставок, и supervisor уходит в retry.
func (c *Connection) watchBlocked(blockings <-chan amqp.Blocking) {
	var timer *time.Timer
	var expired <-chan time.Time

	stop := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			expired = nil
		}
	}
	defer stop()

	for {
		select {
		case <-c.done:
			return

		case b, ok := <-blockings:
			if !ok {
				return
			}

			if b.Active {
				c.logger.Warn("connection blocked by broker", "reason", b.Reason)
				if timer == nil {
					timer = time.NewTimer(c.blockedTimeout)
					expired = timer.C
				}
				continue
			}

			c.logger.Info("connection unblocked")
			stop()

		case <-expired:
			c.logger.Error("connection blocked for too long, closing", "timeout", c.blockedTimeout)
			if err := c.closeConn(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				c.logger.Warn("failed to close blocked connection", "error", err)
			}
			return
		}
	}
}

// Channel возвращает канал соединения.
func (c *Connection) Channel() Channel {
	return c.channel
}

// Close закрывает соединение вместе с его каналом. Повторные вызовы безопасны.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		if err := c.closeConn(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.closeErr = fmt.Errorf("close connection: %w", err)
			return
		}
		c.logger.Info("connection closed")
	})

	return c.closeErr
}
