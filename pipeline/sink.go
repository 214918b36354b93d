// Package pipeline moves discrete items from producers to consumers.
//
// A Sink receives items; a Source pushes them into one attached Sink.
// ThreadedSink decouples the producer from a consumer goroutine and
// CollectionSink multicasts to several sinks.
package pipeline

import "sync"

// Sink receives items pushed by a producer. Get gives no back-pressure
// signal and callers must not assume bounded latency.
type Sink[T any] interface {
	Get(item T)
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(item T)

func (f SinkFunc[T]) Get(item T) { f(item) }

// Source is the producer half. Embed it to gain Put/SetSink.
type Source[T any] struct {
	mu   sync.RWMutex
	sink Sink[T]
}

// SetSink attaches sink, replacing any previous one. nil detaches.
func (s *Source[T]) SetSink(sink Sink[T]) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Connected reports whether a sink is attached.
func (s *Source[T]) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sink != nil
}

// Put pushes item into the attached sink on the calling goroutine.
// Items put while no sink is attached are dropped.
func (s *Source[T]) Put(item T) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink != nil {
		sink.Get(item)
	}
}
