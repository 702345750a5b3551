// Package forwarder drives the HEC delivery pipeline: it accumulates
// parsed events into a batch, flushes on size or interval, retries
// failed flushes with exponential backoff, and dead-letters payloads
// whose delivery is exhausted. The underlying hec.Client owns no retry
// logic of its own; redelivery policy lives here.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/scottbrown/hecsink/internal/circuitbreaker"
	"github.com/scottbrown/hecsink/internal/dlq"
	"github.com/scottbrown/hecsink/internal/hec"
	"github.com/scottbrown/hecsink/internal/metrics"
)

// BatchConfig bounds one flush cycle.
type BatchConfig struct {
	MaxEvents     int
	MaxBytes      int
	FlushInterval time.Duration
}

// RetryConfig controls redelivery of a failed flush.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// Config contains forwarder tuning. Zero values get defaults.
type Config struct {
	Batch          BatchConfig
	Retry          RetryConfig
	CircuitBreaker circuitbreaker.Config
}

// DefaultConfig returns the default pipeline tuning.
func DefaultConfig() Config {
	return Config{
		Batch: BatchConfig{
			MaxEvents:     100,
			MaxBytes:      1 << 20,
			FlushInterval: time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 250 * time.Millisecond,
			Multiplier:     2,
			MaxBackoff:     30 * time.Second,
		},
		CircuitBreaker: circuitbreaker.DefaultConfig(),
	}
}

// Forwarder is the pipeline between ingest and the HEC client.
// Enqueue and Flush must be called from one goroutine at a time; the
// client's sequential send mode is honored by awaiting each flush
// before the next batch starts filling.
type Forwarder struct {
	client  *hec.Client
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	queue   *dlq.Writer // optional

	mu    sync.Mutex
	batch *hec.Batch

	wg     sync.WaitGroup
	ticker *time.Ticker
	done   chan struct{}
}

// New creates a forwarder on top of client. queue may be nil, in which
// case exhausted payloads are dropped after logging.
func New(client *hec.Client, cfg Config, queue *dlq.Writer) *Forwarder {
	def := DefaultConfig()
	if cfg.Batch.MaxEvents <= 0 {
		cfg.Batch.MaxEvents = def.Batch.MaxEvents
	}
	if cfg.Batch.MaxBytes <= 0 {
		cfg.Batch.MaxBytes = def.Batch.MaxBytes
	}
	if cfg.Batch.FlushInterval <= 0 {
		cfg.Batch.FlushInterval = def.Batch.FlushInterval
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = def.Retry.InitialBackoff
	}
	if cfg.Retry.Multiplier <= 1 {
		cfg.Retry.Multiplier = def.Retry.Multiplier
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = def.Retry.MaxBackoff
	}

	return &Forwarder{
		client:  client,
		cfg:     cfg,
		breaker: circuitbreaker.New(cfg.CircuitBreaker),
		queue:   queue,
		batch:   client.NewBatch(),
		done:    make(chan struct{}),
	}
}

// Start launches the interval flusher. ctx cancellation stops it; call
// Shutdown for a final drain.
func (f *Forwarder) Start(ctx context.Context) {
	f.ticker = time.NewTicker(f.cfg.Batch.FlushInterval)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-f.ticker.C:
				f.Flush(ctx)
			case <-ctx.Done():
				return
			case <-f.done:
				return
			}
		}
	}()
}

// Enqueue adds one event to the current batch, flushing first if the
// batch is full. Serialization failures are counted, logged and
// returned; the event is dropped and the batch remains usable.
func (f *Forwarder) Enqueue(ctx context.Context, rec *hec.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.batch.Events() >= f.cfg.Batch.MaxEvents || f.batch.Len() >= f.cfg.Batch.MaxBytes {
		f.flushLocked(ctx)
	}

	if err := f.batch.AddEvent(rec); err != nil {
		metrics.EventsDropped.Inc()
		slog.Warn("dropping unserializable event", "error", err)
		return err
	}
	metrics.EventsSerialized.Inc()
	return nil
}

// Flush delivers whatever is buffered right now.
func (f *Forwarder) Flush(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushLocked(ctx)
}

func (f *Forwarder) flushLocked(ctx context.Context) {
	payload := f.batch.Drain()
	if payload == nil {
		return
	}

	if f.client.SendMode() == hec.SendSequential {
		// One in-flight request at a time: the flush completes before
		// the next batch starts filling.
		f.deliver(ctx, payload)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.deliver(ctx, payload)
	}()
}

// deliver posts one payload with retry, backoff and breaker protection.
// Exhausted payloads go to the DLQ.
func (f *Forwarder) deliver(ctx context.Context, payload []byte) {
	start := time.Now()
	defer func() {
		metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}()

	backoff := f.cfg.Retry.InitialBackoff
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= f.cfg.Retry.MaxAttempts; attempt++ {
		err := f.breaker.Call(func() error {
			status, err := f.client.Post(ctx, payload)
			if err != nil {
				return err // cancellation
			}
			lastStatus = status
			metrics.PostsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
			if status != http.StatusOK {
				return fmt.Errorf("hec returned status %d", status)
			}
			return nil
		})

		if err == nil {
			metrics.BytesForwarded.Add(float64(len(payload)))
			slog.Debug("flush delivered", "bytes", len(payload), "attempts", attempt)
			return
		}
		lastErr = err

		if ctx.Err() != nil {
			// Cancellation abandons the batch; no partial writes are
			// retried here.
			slog.Debug("flush abandoned on cancellation")
			return
		}

		if attempt < f.cfg.Retry.MaxAttempts {
			metrics.Retries.Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(float64(backoff) * f.cfg.Retry.Multiplier)
			if backoff > f.cfg.Retry.MaxBackoff {
				backoff = f.cfg.Retry.MaxBackoff
			}
		}
	}

	f.deadLetter(lastStatus, lastErr, payload)
}

func (f *Forwarder) deadLetter(status int, cause error, payload []byte) {
	if errors.Is(cause, circuitbreaker.ErrOpen) {
		status = 0
	}
	if f.queue == nil {
		slog.Error("delivery exhausted, payload dropped",
			"status", status, "error", cause, "bytes", len(payload))
		return
	}
	if err := f.queue.Write(status, cause.Error(), payload); err != nil {
		slog.Error("DLQ write failed", "error", err)
		return
	}
	slog.Warn("delivery exhausted, payload dead-lettered",
		"status", status, "file", f.queue.CurrentFile())
}

// Shutdown flushes the remaining batch and waits for in-flight parallel
// sends, bounded by ctx.
func (f *Forwarder) Shutdown(ctx context.Context) error {
	close(f.done)
	if f.ticker != nil {
		f.ticker.Stop()
	}

	f.Flush(ctx)

	finished := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown incomplete: %w", ctx.Err())
	}
}
