package gpio

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sensornode-go/errcode"
	"sensornode-go/services/gpio/chip"
	"sensornode-go/types"
	"sensornode-go/x/timex"
)

// capture is the Looper body: bulk-wait on every interrupt line, one wait
// slice at a time, and queue what comes back.
func (p *Pipeline) capture(ctx context.Context) int {
	backoff := timex.StoppedTimer()
	defer backoff.Stop()

	for ctx.Err() == nil {
		lines := p.bulkLines()
		evs, err := p.chip.WaitEdgeEvents(ctx, lines, p.slice)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errcode.Of(err) == errcode.Closed {
				p.log.Error("chip closed under the pipeline", zap.Error(err))
				return -1
			}
			p.metrics.WaitErrors.Inc()
			p.log.Warn("edge wait failed", zap.Error(err))
			timex.ResetTimer(backoff, p.slice)
			select {
			case <-ctx.Done():
			case <-backoff.C:
			}
			continue
		}
		if len(evs) > 0 {
			p.enqueue(evs)
		}
	}
	return 0
}

// bulkLines returns the interrupt lines to wait on, rebuilding the set
// when a registration has marked it dirty.
func (p *Pipeline) bulkLines() []chip.Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return p.bulk
	}
	bulk := make([]chip.Line, 0, len(p.order))
	for _, pin := range p.order {
		if ent := p.lines[pin]; ent.use == useInterrupt {
			bulk = append(bulk, ent.line)
		}
	}
	p.bulk = bulk
	p.dirty = false
	p.metrics.Lines.Set(float64(len(bulk)))
	p.log.Debug("bulk line set rebuilt", zap.Int("lines", len(bulk)))
	return bulk
}

// enqueue appends evs to the FIFO in capture order and wakes dispatch.
func (p *Pipeline) enqueue(evs []types.Event) {
	inhibited := p.inhibit.Load()
	p.qmu.Lock()
	for _, ev := range evs {
		p.queue = append(p.queue, queued{ev: ev, inhibited: inhibited})
	}
	depth := len(p.queue)
	p.qmu.Unlock()
	p.qcond.Signal()

	p.metrics.Captured.Add(float64(len(evs)))
	p.metrics.QueueDepth.Set(float64(depth))
}

// releaseLines closes every line, newest first, and refuses later
// registrations.
func (p *Pipeline) releaseLines() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var err error
	for i := len(p.order) - 1; i >= 0; i-- {
		pin := p.order[i]
		err = multierr.Append(err, p.lines[pin].line.Close())
		delete(p.lines, pin)
	}
	p.order = nil
	p.bulk = nil
	p.dirty = false
	p.metrics.Lines.Set(0)
	return err
}
