// Package gesture models one atomic action an actor performs: an optional
// required stance, an optional required prop count, and start/tick/complete
// transitions driven exclusively by the owning performance.
package gesture

import (
	"stagecraft.ai/internal/sim/inventory"
	"stagecraft.ai/internal/sim/pose"
	"stagecraft.ai/internal/sim/props"
)

// Phase is the gesture lifecycle state. There is no transition out of
// COMPLETE or FAILED except an explicit Reset.
type Phase string

const (
	Waiting  Phase = "WAITING"
	Running  Phase = "RUNNING"
	Failed   Phase = "FAILED"
	Complete Phase = "COMPLETE"
)

// Actor is the capability set a gesture needs from the agent executing it.
type Actor interface {
	ID() string
	CurrentPose() pose.Pose
	Inventory() *inventory.Inventory
}

// Gesture is one step of a performance. Delegate-driven and handler-object
// implementations both satisfy it; see New and FromHandler.
type Gesture interface {
	Phase() Phase
	// RequiredPose reports the stance the actor must hold, if any. Exposed so
	// movement systems can react to an upcoming gesture before it starts.
	RequiredPose() (pose.Pose, bool)
	// RequiredProps reports the prop count consumed at start, if any.
	RequiredProps() (props.Count, bool)
	// Timeout is the failure deadline in seconds since start; 0 means none.
	Timeout() float64

	// TryStart gates on pose and prop availability, consumes the required
	// props, and runs the start callback. A false return means the gesture is
	// now FAILED (unless it was already terminal).
	TryStart(a Actor) bool
	// Tick accumulates dt and runs the tick callback when its gate passes.
	// Returns whether the callback actually ran.
	Tick(a Actor, dt float64) bool
	// TryComplete re-checks the pose and the completion condition; on success
	// the gesture transitions to COMPLETE.
	TryComplete(a Actor) bool
	// Abort forces FAILED from any non-terminal phase.
	Abort(a Actor)
	Reset()
}
