package types

import (
	"fmt"
	"strings"
	"time"
)

// ------------------------
// Edges
// ------------------------

// Edge selects signal transitions. EdgeBoth is the mask of rising and falling.
type Edge uint8

const (
	EdgeNone    Edge = 0
	EdgeRising  Edge = 1 << 0
	EdgeFalling Edge = 1 << 1
	EdgeBoth         = EdgeRising | EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// Has reports whether every edge in o is part of e.
func (e Edge) Has(o Edge) bool { return o != EdgeNone && e&o == o }

// Split returns the single edges contained in e, rising first.
func (e Edge) Split() []Edge {
	var out []Edge
	if e.Has(EdgeRising) {
		out = append(out, EdgeRising)
	}
	if e.Has(EdgeFalling) {
		out = append(out, EdgeFalling)
	}
	return out
}

func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising", "rise", "up":
		return EdgeRising, nil
	case "falling", "fall", "down":
		return EdgeFalling, nil
	case "both":
		return EdgeBoth, nil
	case "", "none":
		return EdgeNone, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge %q", s)
}

// ------------------------
// Bias
// ------------------------

// Bias is the electrical configuration of a line, as a set of flags.
type Bias uint8

const (
	BiasNone       Bias = 0
	BiasPullUp     Bias = 1 << 0
	BiasPullDown   Bias = 1 << 1
	BiasOpenDrain  Bias = 1 << 2
	BiasOpenSource Bias = 1 << 3
	BiasActiveLow  Bias = 1 << 4
)

var biasNames = []struct {
	b    Bias
	name string
}{
	{BiasPullUp, "pull-up"},
	{BiasPullDown, "pull-down"},
	{BiasOpenDrain, "open-drain"},
	{BiasOpenSource, "open-source"},
	{BiasActiveLow, "active-low"},
}

func (b Bias) String() string {
	if b == BiasNone {
		return "none"
	}
	var parts []string
	for _, n := range biasNames {
		if b&n.b != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Validate rejects flag combinations the kernel refuses.
func (b Bias) Validate() error {
	if b&BiasPullUp != 0 && b&BiasPullDown != 0 {
		return fmt.Errorf("bias %s: pull-up and pull-down are exclusive", b)
	}
	if b&BiasOpenDrain != 0 && b&BiasOpenSource != 0 {
		return fmt.Errorf("bias %s: open-drain and open-source are exclusive", b)
	}
	return nil
}

// ParseBias accepts a list of flag names, e.g. ["pull-up", "active-low"].
func ParseBias(names []string) (Bias, error) {
	var b Bias
	for _, raw := range names {
		s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
		if s == "" || s == "none" {
			continue
		}
		found := false
		for _, n := range biasNames {
			if s == n.name {
				b |= n.b
				found = true
				break
			}
		}
		if !found {
			return BiasNone, fmt.Errorf("unknown bias %q", raw)
		}
	}
	return b, b.Validate()
}

// ------------------------
// Capture events
// ------------------------

// Event is one observed edge transition on a pin.
type Event struct {
	Pin       int
	Edge      Edge          // EdgeRising or EdgeFalling
	Timestamp time.Duration // kernel monotonic timestamp
	Seqno     uint32        // chip-wide capture sequence
}

func (ev Event) String() string {
	return fmt.Sprintf("pin %d %s @%s #%d", ev.Pin, ev.Edge, ev.Timestamp, ev.Seqno)
}
