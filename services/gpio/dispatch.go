package gpio

import (
	"math"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"sensornode-go/types"
)

// runDispatch drives dispatchLoop until quit. A panicking handler ends
// dispatch and stops the pipeline with exit code -1.
func (p *Pipeline) runDispatch() {
	var pc panics.Catcher
	pc.Try(p.dispatchLoop)
	if r := pc.Recovered(); r != nil {
		p.metrics.HandlerPanics.Inc()
		p.log.Error("event handler panicked",
			zap.Any("panic", r.Value),
			zap.ByteString("stack", r.Stack))
		p.Stop(-1)
	}
}

func (p *Pipeline) dispatchLoop() {
	for {
		batch, ok := p.next()
		if !ok {
			return
		}
		gated := p.inhibit.Load()
		var discarded int
		for _, q := range batch {
			if gated || q.inhibited {
				discarded++
				continue
			}
			p.deliver(q.ev)
		}
		p.metrics.Dispatched.Add(float64(len(batch) - discarded))
		p.metrics.Discarded.Add(float64(discarded))
		p.observe(len(batch), time.Now())
	}
}

// next blocks until events are queued and takes all of them, or reports
// false once quit is set.
func (p *Pipeline) next() ([]queued, bool) {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	for len(p.queue) == 0 && !p.quit {
		p.qcond.Wait()
	}
	if p.quit {
		return nil, false
	}
	batch := p.queue
	p.queue = nil
	p.metrics.QueueDepth.Set(0)
	return batch, true
}

// deliver calls every handler for (pin, edge) in registration order, then
// forwards ev to the event sink.
func (p *Pipeline) deliver(ev types.Event) {
	p.mu.Lock()
	hs := p.handlers[handlerKey{pin: ev.Pin, edge: ev.Edge}]
	p.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
	p.metrics.HandlerCalls.Add(float64(len(hs)))
	p.events.Put(ev)
}

// observe feeds one dispatch cycle to the rate meter and republishes the
// pacing timeout when a window completes.
func (p *Pipeline) observe(n int, at time.Time) {
	if !p.meter.Record(n, at) {
		return
	}
	rate := p.meter.Rate()
	timeout := p.pacing.Timeout(rate)
	p.rate.Store(math.Float64bits(rate))
	p.timeout.Store(int64(timeout))

	p.metrics.Rate.Set(rate)
	p.metrics.PacingTimeout.Set(timeout.Seconds())
	p.log.Debug("pacing updated", zap.Float64("rate_hz", rate), zap.Duration("timeout", timeout))
}
