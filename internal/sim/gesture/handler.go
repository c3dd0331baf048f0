package gesture

import (
	"stagecraft.ai/internal/sim/pose"
	"stagecraft.ai/internal/sim/props"
)

// Handler is the polymorphic-object form of a gesture: the same capability
// set as Config, expressed as an interface for implementations that carry
// their own state.
type Handler interface {
	RequiredPose() (pose.Pose, bool)
	RequiredProps() (props.Count, bool)
	Start(a Actor) bool
	Tick(a Actor)
	CanComplete(a Actor, elapsed float64) bool
	Complete(a Actor)
	Failed(a Actor)
}

// HandlerOptions carries the timing knobs that live outside the Handler
// interface proper.
type HandlerOptions struct {
	Comparer  *pose.Comparer
	TickEvery float64
	Timeout   float64
}

// FromHandler adapts a Handler into a Gesture. Both flavors share one state
// machine; only the callback plumbing differs.
func FromHandler(h Handler, opts HandlerOptions) Gesture {
	return New(Config{
		PoseFn:      h.RequiredPose,
		PropsFn:     h.RequiredProps,
		Comparer:    opts.Comparer,
		OnStart:     h.Start,
		OnTick:      h.Tick,
		TickEvery:   opts.TickEvery,
		CanComplete: h.CanComplete,
		OnComplete:  h.Complete,
		OnFailed:    h.Failed,
		Timeout:     opts.Timeout,
	})
}
