package chip

import (
	"context"
	"sync"
	"time"

	"sensornode-go/types"
	"sensornode-go/x/timex"
)

// eventQueue buffers edge events between the kernel (or simulator)
// delivery goroutine and WaitEdgeEvents.
type eventQueue struct {
	mu     sync.Mutex
	events []types.Event
	seq    uint32
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

// push appends ev, stamping the chip-wide sequence number.
func (q *eventQueue) push(ev types.Event) {
	q.mu.Lock()
	q.seq++
	ev.Seqno = q.seq
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// take removes and returns events for offsets in set, preserving order.
func (q *eventQueue) take(set map[int]struct{}) []types.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []types.Event
	keep := q.events[:0]
	for _, ev := range q.events {
		if _, ok := set[ev.Pin]; ok {
			out = append(out, ev)
		} else {
			keep = append(keep, ev)
		}
	}
	clear(q.events[len(keep):])
	q.events = keep
	return out
}

// drop forgets queued events for offset, used when its line is closed.
func (q *eventQueue) drop(offset int) {
	q.mu.Lock()
	keep := q.events[:0]
	for _, ev := range q.events {
		if ev.Pin != offset {
			keep = append(keep, ev)
		}
	}
	clear(q.events[len(keep):])
	q.events = keep
	q.mu.Unlock()
}

func (q *eventQueue) wait(ctx context.Context, lines []Line, timeout time.Duration) ([]types.Event, error) {
	set := make(map[int]struct{}, len(lines))
	for _, l := range lines {
		set[l.Offset()] = struct{}{}
	}
	timer := timex.StoppedTimer()
	defer timer.Stop()
	timex.ResetTimer(timer, timeout)
	for {
		if evs := q.take(set); len(evs) > 0 {
			return evs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}
