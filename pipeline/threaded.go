package pipeline

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensornode-go/worker"
	"sensornode-go/x/timex"
)

// BatchSize caps how many queued items one wake cycle processes.
const BatchSize = 10

const defaultWakeTimeout = 100 * time.Millisecond

// Handler processes one item on the sink's worker goroutine.
type Handler[T any] interface {
	Process(item T)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(item T)

func (f HandlerFunc[T]) Process(item T) { f(item) }

// Idler is an optional Handler extension called after a cycle that left
// the queue empty, including cycles woken by the timeout.
type Idler interface {
	Idle()
}

type ThreadedOption func(*threadedConfig)

type threadedConfig struct {
	timeout time.Duration
	log     *zap.Logger
	ctx     context.Context
}

// WithWakeTimeout bounds how long a cycle waits for new items.
func WithWakeTimeout(d time.Duration) ThreadedOption {
	return func(c *threadedConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithSinkLogger(l *zap.Logger) ThreadedOption {
	return func(c *threadedConfig) { c.log = l }
}

// WithSinkContext ties the sink's worker to a parent context.
func WithSinkContext(ctx context.Context) ThreadedOption {
	return func(c *threadedConfig) { c.ctx = ctx }
}

// ThreadedSink queues items from any goroutine and hands them to a
// Handler on its own worker goroutine, at most BatchSize per cycle.
type ThreadedSink[T any] struct {
	*worker.Runner

	h       Handler[T]
	timeout time.Duration
	log     *zap.Logger

	mu    sync.Mutex
	queue []T
	wake  chan struct{}
}

func NewThreadedSink[T any](name string, h Handler[T], opts ...ThreadedOption) *ThreadedSink[T] {
	cfg := threadedConfig{timeout: defaultWakeTimeout, log: zap.NewNop(), ctx: context.Background()}
	for _, o := range opts {
		o(&cfg)
	}
	s := &ThreadedSink[T]{
		h:       h,
		timeout: cfg.timeout,
		log:     cfg.log,
		wake:    make(chan struct{}, 1),
	}
	s.Runner = worker.New(name, &sinkTask[T]{s: s, timer: timex.StoppedTimer()},
		worker.WithLogger(cfg.log), worker.WithContext(cfg.ctx))
	return s
}

// Get enqueues item and wakes the worker.
func (s *ThreadedSink[T]) Get(item T) {
	s.mu.Lock()
	s.queue = append(s.queue, item)
	s.mu.Unlock()
	s.signal()
}

// Len is the number of items waiting to be processed.
func (s *ThreadedSink[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *ThreadedSink[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain processes up to BatchSize items and reports how many it handled.
func (s *ThreadedSink[T]) drain(limit int) int {
	s.mu.Lock()
	n := min(len(s.queue), limit)
	batch := make([]T, n)
	copy(batch, s.queue[:n])
	rest := copy(s.queue, s.queue[n:])
	clear(s.queue[rest:])
	s.queue = s.queue[:rest]
	s.mu.Unlock()

	for _, it := range batch {
		s.h.Process(it)
	}

	if rest > 0 {
		s.signal()
	} else if idler, ok := s.h.(Idler); ok {
		idler.Idle()
	}
	return n
}

// sinkTask keeps the worker hooks off the public surface of ThreadedSink.
type sinkTask[T any] struct {
	s     *ThreadedSink[T]
	timer *time.Timer
}

func (t *sinkTask[T]) Setup(context.Context) error { return nil }

// Teardown flushes whatever is still queued.
func (t *sinkTask[T]) Teardown() {
	t.timer.Stop()
	if n := t.s.drain(math.MaxInt); n > 0 {
		t.s.log.Debug("flushed queued items on stop", zap.Int("items", n))
	}
}

func (t *sinkTask[T]) Step(ctx context.Context) int {
	timex.ResetTimer(t.timer, t.s.timeout)
	select {
	case <-ctx.Done():
		return 0
	case <-t.s.wake:
	case <-t.timer.C:
	}
	t.s.drain(BatchSize)
	return 0
}
