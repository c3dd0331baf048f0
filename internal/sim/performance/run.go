package performance

import (
	"sort"

	"stagecraft.ai/internal/sim/gesture"
)

// StepResult is the outcome of one cooperative step.
type StepResult string

const (
	StepSuspended StepResult = "SUSPENDED"
	StepFailed    StepResult = "FAILED"
	StepCompleted StepResult = "COMPLETED"
)

type subPhase int

const (
	subSelect subPhase = iota
	subStart
	subTick
	subComplete
)

// Run is the resumable execution state of one performance run: the saved
// continuation is the current gesture index plus a sub-phase. The driver
// calls Step once per tick; every discrete action (selection, start, each
// tick, each completion check) is its own suspension point.
type Run struct {
	p     *Performance
	actor gesture.Actor

	idx            int
	sub            subPhase
	gestureElapsed float64
}

// Actor is the claiming actor driving this run.
func (r *Run) Actor() gesture.Actor { return r.actor }

// Current returns the gesture being executed and its index. ok is false
// before the first selection and after the sequence is exhausted.
func (r *Run) Current() (g gesture.Gesture, idx int, ok bool) {
	if r.idx < 0 || r.idx >= len(r.p.gestures) {
		return nil, r.idx, false
	}
	return r.p.gestures[r.idx], r.idx, true
}

// Step advances the run by one suspension point. dt is the seconds elapsed
// since the previous step. Cancellation and the current gesture's timeout are
// re-checked on every call; either fails the whole performance.
func (r *Run) Step(dt float64) StepResult {
	switch r.p.phase {
	case Failed:
		return StepFailed
	case Complete:
		return StepCompleted
	case Waiting:
		// Reset while suspended; treat as failed run.
		return StepFailed
	}
	if r.p.current != r {
		// A newer run superseded this one.
		return StepFailed
	}

	switch r.sub {
	case subSelect:
		if r.idx >= len(r.p.gestures) {
			r.p.complete()
			return StepCompleted
		}
		g := r.p.gestures[r.idx]
		r.gestureElapsed = 0
		r.notifyNext(g)
		r.sub = subStart
		return StepSuspended

	case subStart:
		g := r.p.gestures[r.idx]
		if !g.TryStart(r.actor) {
			r.p.fail()
			return StepFailed
		}
		r.sub = subTick
		return StepSuspended

	case subTick:
		g := r.p.gestures[r.idx]
		r.gestureElapsed += dt
		if r.timedOut(g) {
			r.p.fail()
			return StepFailed
		}
		g.Tick(r.actor, dt)
		r.sub = subComplete
		return StepSuspended

	default: // subComplete
		g := r.p.gestures[r.idx]
		r.gestureElapsed += dt
		if r.timedOut(g) {
			r.p.fail()
			return StepFailed
		}
		// The gesture's elapsed clock must advance in lockstep with
		// gestureElapsed: this sub-step consumed dt too, and Duration and
		// CanComplete read seconds since start, not tick counts.
		g.Tick(r.actor, dt)
		if g.TryComplete(r.actor) {
			r.idx++
			r.sub = subSelect
		} else if g.Phase() == gesture.Failed {
			r.p.fail()
			return StepFailed
		} else {
			r.sub = subTick
		}
		return StepSuspended
	}
}

// timedOut is the safety valve against deadlocked agents: the deadline is per
// gesture, measured from its start, and exceeding it fails the performance.
func (r *Run) timedOut(g gesture.Gesture) bool {
	t := g.Timeout()
	return t > 0 && r.gestureElapsed > t
}

func (r *Run) notifyNext(g gesture.Gesture) {
	p := r.p
	keys := make([]string, 0, len(p.onNextGesture))
	for k := range p.onNextGesture {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.onNextGesture[k](p, g)
	}
}
