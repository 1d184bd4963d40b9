package analytics

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

// Sink delivers a single message to the collector.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Dispatcher hands messages to a Sink without blocking the caller. Every
// message is sent from its own goroutine; failures are logged and dropped
// here and nowhere else.
type Dispatcher struct {
	logger  slog.Logger
	sink    Sink
	metrics *Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(logger slog.Logger, sink Sink, metrics *Metrics) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		logger:  logger,
		sink:    sink,
		metrics: metrics,
	}
}

// Dispatch starts sending msg and returns immediately. There is no ordering
// between messages dispatched concurrently.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.Messages.WithLabelValues(string(msg.Type()), resultDropped).Inc()
		d.logger.Debug(context.Background(), "dispatcher closed, dropping message",
			slog.F("type", msg.Type()),
		)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		err := d.send(ctx, msg)
		if err != nil {
			d.metrics.Messages.WithLabelValues(string(msg.Type()), resultFailed).Inc()
			// The collector being unreachable is expected in airgapped
			// deployments.
			d.logger.Info(ctx, "discarded analytics message",
				slog.F("type", msg.Type()),
				slog.Error(err),
			)
			return
		}
		d.metrics.Messages.WithLabelValues(string(msg.Type()), resultSent).Inc()
		d.logger.Debug(ctx, "sent analytics message", slog.F("type", msg.Type()))
	}()
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Errorf("sink panic: %v", r)
		}
	}()
	return d.sink.Send(ctx, msg)
}

// Close stops accepting messages and waits for in-flight sends to finish.
// In-flight sends are not canceled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
