package worker

// State is the lifecycle phase of a Runner.
//
// Transitions only move forward:
//
//	Initial → Initialising → Running → Finalising → Stopped | Error
//
// Initialising may also go straight to Error when Setup fails.
type State int32

const (
	Initial State = iota
	Initialising
	Running
	Finalising
	Stopped
	Error
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Initialising:
		return "initialising"
	case Running:
		return "running"
	case Finalising:
		return "finalising"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == Stopped || s == Error }
