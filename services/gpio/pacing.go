package gpio

import (
	"math"
	"time"

	"sensornode-go/x/mathx"
)

// Pacing maps the dispatch rate to a pacing interval along a clamped line:
// MaxTimeout at LowRate and below, zero at HighRate and above.
type Pacing struct {
	MaxTimeout time.Duration
	LowRate    float64 // events/s
	HighRate   float64 // events/s
}

func DefaultPacing() Pacing {
	return Pacing{MaxTimeout: 100 * time.Millisecond, LowRate: 10, HighRate: 100}
}

func (pc Pacing) Timeout(rate float64) time.Duration {
	switch {
	case rate <= pc.LowRate:
		return pc.MaxTimeout
	case rate >= pc.HighRate:
		return 0
	}
	hi := float64(pc.MaxTimeout)
	l := mathx.Through(pc.LowRate, hi, pc.HighRate, 0)
	return time.Duration(math.Round(l.ClampedAt(rate, 0, hi)))
}
