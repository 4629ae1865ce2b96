package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/keygen/internal/mq"
	"github.com/shaiso/keygen/internal/mq/mqtest"
)

var errUnreachable = errors.New("dial tcp: connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession — Session поверх mqtest.Channel.
type fakeSession struct {
	ch *mqtest.Channel

	mu     sync.Mutex
	closes int
}

func (f *fakeSession) Channel() mq.Channel { return f.ch }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return f.ch.Close()
}

func (f *fakeSession) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes > 0
}

// scriptedDialer возвращает заранее заданные результаты по порядку.
// После окончания сценария каждый вызов — ошибка подключения.
type scriptedDialer struct {
	mu      sync.Mutex
	script  []any // *fakeSession или error
	calls   int
	dialled []*fakeSession
}

func (d *scriptedDialer) Dial(context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if len(d.script) == 0 {
		return nil, connErr(errUnreachable)
	}

	next := d.script[0]
	d.script = d.script[1:]

	switch v := next.(type) {
	case *fakeSession:
		d.dialled = append(d.dialled, v)
		return v, nil
	case error:
		return nil, v
	}
	panic("unexpected script entry")
}

func (d *scriptedDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// connErr оборачивает ошибку так же, как mq.Dial.
func connErr(err error) error {
	return errors.Join(mq.ErrConnection, err)
}

func newSession() *fakeSession {
	return &fakeSession{ch: mqtest.NewChannel()}
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

type transitions struct {
	mu   sync.Mutex
	path []string
}

func (tr *transitions) record(_, to string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.path = append(tr.path, to)
}

func (tr *transitions) Path() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.path...)
}

type harness struct {
	sup    *Supervisor
	dialer *scriptedDialer
	sleeps *sleepRecorder
	states *transitions
}

func newHarness(maxAttempts int, script ...any) *harness {
	h := &harness{
		dialer: &scriptedDialer{script: script},
		sleeps: &sleepRecorder{},
		states: &transitions{},
	}

	h.sup = New(Config{
		Dial:         h.dialer.Dial,
		Topology:     mq.Topology{RequestQueue: "key-requests", ResponseQueue: "generated-keys"},
		Handler:      func(mq.Channel) mq.Handler { return func(context.Context, *mq.Delivery) error { return nil } },
		MaxAttempts:  maxAttempts,
		RetryDelay:   5 * time.Second,
		OnTransition: h.states.record,
		Logger:       discardLogger(),
	})
	h.sup.sleep = h.sleeps.sleep

	return h
}

func (h *harness) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.sup.Run(ctx) }()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitConsuming(t *testing.T, h *harness, sess *fakeSession) {
	t.Helper()
	waitFor(t, "consuming", func() bool {
		return len(sess.ch.Consumed()) == 1 && h.sup.State() == StateConsuming
	})
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// --- Tests ---

func TestSupervisor_ConsumesAndShutsDown(t *testing.T) {
	sess := newSession()
	h := newHarness(10, sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	waitConsuming(t, h, sess)

	if got := sess.ch.Declared(); !reflect.DeepEqual(got, []string{"key-requests", "generated-keys"}) {
		t.Errorf("declared = %v", got)
	}
	if got := sess.ch.Prefetch(); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("prefetch = %v, want [1]", got)
	}
	if got := sess.ch.Consumed(); !reflect.DeepEqual(got, []string{"key-requests"}) {
		t.Errorf("consumed = %v", got)
	}

	cancel()

	if err := waitResult(t, done); err != nil {
		t.Fatalf("graceful shutdown should return nil, got %v", err)
	}
	if !sess.Closed() {
		t.Error("session should be closed on shutdown")
	}
	if h.sup.State() != StateShuttingDown {
		t.Errorf("state = %s, want %s", h.sup.State(), StateShuttingDown)
	}

	want := []string{StateDeclaring, StateConsuming, StateShuttingDown}
	if got := h.states.Path(); !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestSupervisor_RetriesThenSucceeds(t *testing.T) {
	sess := newSession()
	h := newHarness(10,
		connErr(errUnreachable),
		connErr(errUnreachable),
		connErr(amqp.ErrCredentials),
		sess,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)

	waitConsuming(t, h, sess)

	if calls := h.dialer.Calls(); calls != 4 {
		t.Errorf("dial calls = %d, want 4", calls)
	}

	sleeps := h.sleeps.Calls()
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 retry sleeps, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 5*time.Second {
			t.Errorf("retry delay = %v, want 5s", d)
		}
	}

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSupervisor_RetriesExhausted(t *testing.T) {
	h := newHarness(10) // каждый dial — ошибка

	err := waitResult(t, h.start(context.Background()))

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, errUnreachable) {
		t.Errorf("last connection error should be wrapped: %v", err)
	}
	if calls := h.dialer.Calls(); calls != 10 {
		t.Errorf("dial calls = %d, want exactly 10", calls)
	}
	if n := len(h.sleeps.Calls()); n != 9 {
		t.Errorf("sleeps = %d, want 9 (no sleep after the last attempt)", n)
	}
	if h.sup.State() != StateFatal {
		t.Errorf("state = %s, want %s", h.sup.State(), StateFatal)
	}
}

func TestSupervisor_FatalError(t *testing.T) {
	sess := newSession()
	sess.ch.QueueDeclareErr = &amqp.Error{Code: amqp.PreconditionFailed, Reason: "inequivalent arg 'durable'"}
	h := newHarness(10, sess)

	err := waitResult(t, h.start(context.Background()))

	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if !sess.Closed() {
		t.Error("session should be closed on fatal error")
	}
	if calls := h.dialer.Calls(); calls != 1 {
		t.Errorf("fatal errors must not be retried, dial calls = %d", calls)
	}
	if n := len(h.sleeps.Calls()); n != 0 {
		t.Errorf("unexpected retry sleeps: %d", n)
	}
	if h.sup.State() != StateFatal {
		t.Errorf("state = %s, want %s", h.sup.State(), StateFatal)
	}
}

func TestSupervisor_ReconnectsAfterDrop(t *testing.T) {
	first := newSession()
	second := newSession()
	h := newHarness(10, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)

	waitConsuming(t, h, first)

	// брокер рвёт соединение
	first.ch.Close()

	waitConsuming(t, h, second)

	if n := len(h.sleeps.Calls()); n != 1 {
		t.Errorf("sleeps = %d, want 1", n)
	}

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	want := []string{
		StateDeclaring, StateConsuming, StateRetrying,
		StateConnecting, StateDeclaring, StateConsuming,
		StateShuttingDown,
	}
	if got := h.states.Path(); !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestSupervisor_FailureCountResetsAfterConsuming(t *testing.T) {
	first := newSession()
	second := newSession()
	third := newSession()
	// с MaxAttempts=2 два разрыва подряд без сброса счётчика завершили бы процесс
	h := newHarness(2, first, second, third)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)

	waitConsuming(t, h, first)
	first.ch.Close()

	waitConsuming(t, h, second)
	second.ch.Close()

	waitConsuming(t, h, third)

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSupervisor_InterruptDuringRetry(t *testing.T) {
	h := newHarness(10)
	h.sup.sleep = sleepContext
	h.sup.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	waitFor(t, "retrying", func() bool { return h.sup.State() == StateRetrying })
	cancel()

	if err := waitResult(t, done); err != nil {
		t.Errorf("interrupt should return nil, got %v", err)
	}
	if calls := h.dialer.Calls(); calls != 1 {
		t.Errorf("dial calls = %d, want 1", calls)
	}
	if h.sup.State() != StateShuttingDown {
		t.Errorf("state = %s, want %s", h.sup.State(), StateShuttingDown)
	}
}

func TestSupervisor_InFlightMessageAbandoned(t *testing.T) {
	sess := newSession()
	ack := &mqtest.Acknowledger{}

	started := make(chan struct{})
	release := make(chan struct{})

	h := newHarness(10, sess)
	h.sup.newHandler = func(mq.Channel) mq.Handler {
		return func(ctx context.Context, d *mq.Delivery) error {
			close(started)
			<-release
			return errors.New("connection closed while handling")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	waitConsuming(t, h, sess)
	sess.ch.Deliver(mqtest.NewDelivery(ack, 1, []byte(`{"requestId":"r"}`)))
	<-started

	cancel()
	waitFor(t, "session closed", sess.Closed)

	// обработчик отработал уже после закрытия соединения
	ack.NackErr = amqp.ErrClosed
	close(release)

	if err := waitResult(t, done); err != nil {
		t.Errorf("shutdown should return nil, got %v", err)
	}
	if len(ack.Acks()) != 0 {
		t.Error("in-flight message must not be acked")
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
