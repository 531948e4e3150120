package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink accepts events for durable storage. A sink may fail
// independently of the request that produced the event.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Emitter hands events to a sink without ever blocking the caller.
// Record enqueues onto a bounded channel drained by one background
// goroutine; when the queue is full or the sink errors, the event is
// dropped, the drop counter is incremented, and the failure is logged.
// A slow or dead sink can therefore never stall an authorization
// decision or change its verdict.
type Emitter struct {
	sink    Sink
	logger  *slog.Logger
	queue   chan Event
	timeout time.Duration
	emitted prometheus.Counter
	dropped prometheus.Counter

	closeOnce sync.Once
	done      chan struct{}
}

// EmitterConfig collects the emitter dependencies.
type EmitterConfig struct {
	Sink      Sink
	Logger    *slog.Logger
	QueueSize int
	// WriteTimeout bounds a single sink write. Zero means 5s.
	WriteTimeout time.Duration
	// Emitted and Dropped are optional counters for sink health.
	Emitted prometheus.Counter
	Dropped prometheus.Counter
}

// NewEmitter starts the drain goroutine and returns the emitter.
func NewEmitter(cfg EmitterConfig) *Emitter {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{
		sink:    cfg.Sink,
		logger:  logger,
		queue:   make(chan Event, size),
		timeout: timeout,
		emitted: cfg.Emitted,
		dropped: cfg.Dropped,
		done:    make(chan struct{}),
	}
	go e.drain()
	return e
}

// Record enqueues the event, assigning id and timestamp when absent.
// It never blocks and never returns an error: observability here is
// best-effort by contract.
func (e *Emitter) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case e.queue <- event:
	default:
		e.drop(event, nil)
	}
}

// Close stops the drain goroutine after flushing queued events.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.queue)
		<-e.done
	})
}

func (e *Emitter) drain() {
	defer close(e.done)
	for event := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.sink.Write(ctx, event)
		cancel()
		if err != nil {
			e.drop(event, err)
			continue
		}
		if e.emitted != nil {
			e.emitted.Inc()
		}
	}
}

func (e *Emitter) drop(event Event, err error) {
	if e.dropped != nil {
		e.dropped.Inc()
	}
	attrs := []any{
		slog.String("event_id", event.ID),
		slog.String("path", event.Path),
		slog.String("reason", event.Reason),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	e.logger.Warn("audit event dropped", attrs...)
}
