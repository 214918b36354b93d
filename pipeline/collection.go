package pipeline

import (
	"slices"
	"sync"
)

// CollectionSink fans each item out to its children, in registration
// order, on the caller's goroutine. A slow child stalls the fan-out and a
// panicking child aborts delivery to the children after it.
type CollectionSink[T any] struct {
	mu    sync.RWMutex
	sinks []Sink[T]
}

func NewCollectionSink[T any](sinks ...Sink[T]) *CollectionSink[T] {
	c := &CollectionSink[T]{}
	c.Add(sinks...)
	return c
}

// Add registers children after the existing ones.
func (c *CollectionSink[T]) Add(sinks ...Sink[T]) {
	c.mu.Lock()
	// Clip so a concurrent Get keeps iterating its own snapshot.
	c.sinks = append(slices.Clip(c.sinks), sinks...)
	c.mu.Unlock()
}

func (c *CollectionSink[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sinks)
}

func (c *CollectionSink[T]) Get(item T) {
	c.mu.RLock()
	sinks := c.sinks
	c.mu.RUnlock()
	for _, s := range sinks {
		s.Get(item)
	}
}
