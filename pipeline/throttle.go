package pipeline

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ThrottledSink forwards at most perSecond items (with burst) to next and
// drops the rest. Drops are counted, never queued.
type ThrottledSink[T any] struct {
	next    Sink[T]
	lim     *rate.Limiter
	dropped atomic.Uint64
}

func NewThrottledSink[T any](next Sink[T], perSecond float64, burst int) *ThrottledSink[T] {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledSink[T]{next: next, lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *ThrottledSink[T]) Get(item T) {
	if !t.lim.Allow() {
		t.dropped.Add(1)
		return
	}
	t.next.Get(item)
}

// Dropped returns the number of items discarded so far.
func (t *ThrottledSink[T]) Dropped() uint64 { return t.dropped.Load() }
