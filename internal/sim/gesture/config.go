package gesture

import (
	"stagecraft.ai/internal/sim/pose"
	"stagecraft.ai/internal/sim/props"
)

// Config is the delegate-bag form of a gesture. Every field is optional; an
// unset field is ignored:
//
//   - Pose/PoseFn: no required stance (PoseFn wins when both are set, and may
//     itself report "none" per call for dynamically-computed stances).
//   - Props/PropsFn: no prop requirement; same dynamic override rule.
//   - Comparer: pose.DefaultComparer().
//   - OnStart: gesture starts unconditionally once its gates pass.
//   - OnTick/TickEvery: no tick work / tick callback runs every tick.
//   - CanComplete/Duration: completes on the first attempt.
//   - OnComplete/OnFailed: no lifecycle side effects.
//   - Timeout: never times out.
type Config struct {
	Pose   *pose.Pose
	PoseFn func() (pose.Pose, bool)

	Props   *props.Count
	PropsFn func() (props.Count, bool)

	Comparer *pose.Comparer

	// OnStart may veto the start; returning false fails the gesture. Props
	// have already been consumed at that point.
	OnStart func(a Actor) bool
	OnTick  func(a Actor)
	// TickEvery throttles OnTick to at most once per interval (seconds).
	TickEvery float64

	// CanComplete is the completion predicate, given seconds since start.
	// When unset, Duration > 0 means "complete after Duration seconds" and
	// Duration == 0 means "complete immediately".
	CanComplete func(a Actor, elapsed float64) bool
	Duration    float64

	OnComplete func(a Actor)
	OnFailed   func(a Actor)

	// Timeout in seconds since start; exceeded timeouts fail the whole
	// performance, not just the gesture.
	Timeout float64
}

type funcGesture struct {
	cfg      Config
	comparer pose.Comparer

	phase             Phase
	timeSinceStart    float64
	timeSinceLastTick float64
}

// New builds a gesture from a delegate-bag config.
func New(cfg Config) Gesture {
	cmp := pose.DefaultComparer()
	if cfg.Comparer != nil {
		cmp = *cfg.Comparer
	}
	return &funcGesture{cfg: cfg, comparer: cmp, phase: Waiting}
}

func (g *funcGesture) Phase() Phase     { return g.phase }
func (g *funcGesture) Timeout() float64 { return g.cfg.Timeout }

func (g *funcGesture) RequiredPose() (pose.Pose, bool) {
	if g.cfg.PoseFn != nil {
		return g.cfg.PoseFn()
	}
	if g.cfg.Pose != nil {
		return *g.cfg.Pose, true
	}
	return pose.Pose{}, false
}

func (g *funcGesture) RequiredProps() (props.Count, bool) {
	if g.cfg.PropsFn != nil {
		return g.cfg.PropsFn()
	}
	if g.cfg.Props != nil {
		return *g.cfg.Props, true
	}
	return props.Count{}, false
}

func (g *funcGesture) poseOK(a Actor) bool {
	req, ok := g.RequiredPose()
	if !ok {
		return true
	}
	return g.comparer.Equal(a.CurrentPose(), req)
}

func (g *funcGesture) fail(a Actor) {
	g.phase = Failed
	if g.cfg.OnFailed != nil {
		g.cfg.OnFailed(a)
	}
}

func (g *funcGesture) TryStart(a Actor) bool {
	if g.phase != Waiting {
		return false
	}
	if !g.poseOK(a) {
		g.fail(a)
		return false
	}
	if req, ok := g.RequiredProps(); ok && req.N > 0 {
		inv := a.Inventory()
		if inv == nil || inv.GetAvailableCount(req.Kind) < req.N {
			g.fail(a)
			return false
		}
		// Props are consumed at start, not completion, so travel time never
		// leaves other actors reading stale stock levels.
		if !inv.TryTakeImmediately(req.Kind, req.N) {
			g.fail(a)
			return false
		}
	}
	if g.cfg.OnStart != nil && !g.cfg.OnStart(a) {
		g.fail(a)
		return false
	}
	g.phase = Running
	g.timeSinceStart = 0
	g.timeSinceLastTick = 0
	return true
}

func (g *funcGesture) Tick(a Actor, dt float64) bool {
	if g.phase != Running {
		return false
	}
	g.timeSinceStart += dt
	g.timeSinceLastTick += dt
	if g.cfg.OnTick == nil {
		return false
	}
	if g.cfg.TickEvery > 0 && g.timeSinceLastTick < g.cfg.TickEvery {
		return false
	}
	g.timeSinceLastTick = 0
	g.cfg.OnTick(a)
	return true
}

func (g *funcGesture) TryComplete(a Actor) bool {
	if g.phase != Running {
		return false
	}
	if !g.poseOK(a) {
		return false
	}
	if g.cfg.CanComplete != nil {
		if !g.cfg.CanComplete(a, g.timeSinceStart) {
			return false
		}
	} else if g.cfg.Duration > 0 && g.timeSinceStart < g.cfg.Duration {
		return false
	}
	g.phase = Complete
	if g.cfg.OnComplete != nil {
		g.cfg.OnComplete(a)
	}
	return true
}

func (g *funcGesture) Abort(a Actor) {
	if g.phase == Complete || g.phase == Failed {
		return
	}
	g.fail(a)
}

func (g *funcGesture) Reset() {
	g.phase = Waiting
	g.timeSinceStart = 0
	g.timeSinceLastTick = 0
}
