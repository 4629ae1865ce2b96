package mq

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func newWatchedConnection(timeout time.Duration, closes *atomic.Int32) *Connection {
	return &Connection{
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		blockedTimeout: timeout,
		done:           make(chan struct{}),
		closeConn: func() error {
			closes.Add(1)
			return nil
		},
	}
}

func TestWatchBlocked(t *testing.T) {
	const timeout = 20 * time.Millisecond

	tests := []struct {
		name      string
		events    []amqp.Blocking
		endStream bool
		wantClose bool
	}{
		{
			name:      "blocked too long",
			events:    []amqp.Blocking{{Active: true, Reason: "low on memory"}},
			wantClose: true,
		},
		{
			name:   "unblocked in time",
			events: []amqp.Blocking{{Active: true}, {Active: false}},
		},
		{
			name:      "blocked again after unblock",
			events:    []amqp.Blocking{{Active: true}, {Active: false}, {Active: true}},
			wantClose: true,
		},
		{
			name:      "repeated block keeps first deadline",
			events:    []amqp.Blocking{{Active: true}, {Active: true}},
			wantClose: true,
		},
		{
			name:   "unblock without block",
			events: []amqp.Blocking{{Active: false}},
		},
		{
			name:      "notification stream closed",
			endStream: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var closes atomic.Int32
			c := newWatchedConnection(timeout, &closes)

			blockings := make(chan amqp.Blocking)
			finished := make(chan struct{})
			go func() {
				c.watchBlocked(blockings)
				close(finished)
			}()

			for _, b := range tt.events {
				blockings <- b
			}
			if tt.endStream {
				close(blockings)
			}

			if tt.wantClose {
				select {
				case <-finished:
				case <-time.After(time.Second):
					t.Fatal("watcher did not close the blocked connection")
				}
				if n := closes.Load(); n != 1 {
					t.Errorf("expected 1 close, got %d", n)
				}
				return
			}

			time.Sleep(5 * timeout)
			if n := closes.Load(); n != 0 {
				t.Errorf("connection should stay open, got %d closes", n)
			}

			if !tt.endStream {
				close(c.done)
			}
			select {
			case <-finished:
			case <-time.After(time.Second):
				t.Fatal("watcher did not stop")
			}
		})
	}
}

func TestWatchBlocked_StopsOnClose(t *testing.T) {
	var closes atomic.Int32
	c := newWatchedConnection(time.Hour, &closes)

	blockings := make(chan amqp.Blocking)
	finished := make(chan struct{})
	go func() {
		c.watchBlocked(blockings)
		close(finished)
	}()

	blockings <- amqp.Blocking{Active: true}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after Close")
	}
	if n := closes.Load(); n != 1 {
		t.Errorf("expected exactly 1 close, got %d", n)
	}
}

func TestConnectionClose_IgnoresErrClosed(t *testing.T) {
	c := &Connection{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:      make(chan struct{}),
		closeConn: func() error { return amqp.ErrClosed },
	}

	if err := c.Close(); err != nil {
		t.Errorf("ErrClosed should be ignored, got %v", err)
	}
}
