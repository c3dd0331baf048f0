// Package performance sequences gestures into one claimable unit of work.
//
// A performance is driven cooperatively: Run yields a resumable state machine
// whose Step the claiming actor's driver invokes once per tick until it
// reports completion or failure. There is no goroutine and no locking; the
// suspension points exist so the driver can interleave movement and other
// systems between each discrete effect.
package performance

import (
	"fmt"
	"sort"

	"stagecraft.ai/internal/sim/gesture"
)

type Phase string

const (
	Waiting  Phase = "WAITING"
	Running  Phase = "RUNNING"
	Failed   Phase = "FAILED"
	Complete Phase = "COMPLETE"
)

// Performance owns an ordered gesture sequence exclusively. It is claimed by
// at most one actor at a time and must be Reset between runs.
type Performance struct {
	gestures []gesture.Gesture

	phase     Phase
	current   *Run
	runCount  int
	lastActor gesture.Actor

	cancelling bool

	onStarted     map[string]func(*Performance)
	onCompleted   map[string]func(*Performance)
	onFailed      map[string]func(*Performance)
	onNextGesture map[string]func(*Performance, gesture.Gesture)
}

func New() *Performance {
	return &Performance{
		phase:         Waiting,
		onStarted:     map[string]func(*Performance){},
		onCompleted:   map[string]func(*Performance){},
		onFailed:      map[string]func(*Performance){},
		onNextGesture: map[string]func(*Performance, gesture.Gesture){},
	}
}

func (p *Performance) Phase() Phase  { return p.phase }
func (p *Performance) RunCount() int { return p.runCount }

// RunActor is the actor of the current or most recent run, if any.
func (p *Performance) RunActor() (gesture.Actor, bool) {
	return p.lastActor, p.lastActor != nil
}

func (p *Performance) GestureCount() int { return len(p.gestures) }

// CurrentRun exposes the live run for observation; nil when not running.
func (p *Performance) CurrentRun() *Run { return p.current }

// Append adds a gesture to the sequence. The sequence is frozen while the
// performance runs; appending then is a calling-convention violation.
func (p *Performance) Append(g gesture.Gesture) *Performance {
	if p.phase == Running {
		panic("performance: append while running")
	}
	p.gestures = append(p.gestures, g)
	return p
}

// AppendHandler is Append for the handler-object gesture flavor.
func (p *Performance) AppendHandler(h gesture.Handler, opts gesture.HandlerOptions) *Performance {
	return p.Append(gesture.FromHandler(h, opts))
}

// OnStarted registers a lifecycle observer under a caller-chosen slot key.
// Re-registering the same key overwrites; a nil fn clears the slot. The keyed
// slots make repeated wiring idempotent instead of accumulating.
func (p *Performance) OnStarted(key string, fn func(*Performance)) { setSlot(p.onStarted, key, fn) }

// OnCompleted registers a completion observer; slot semantics as OnStarted.
func (p *Performance) OnCompleted(key string, fn func(*Performance)) { setSlot(p.onCompleted, key, fn) }

// OnFailed registers a failure observer; slot semantics as OnStarted.
func (p *Performance) OnFailed(key string, fn func(*Performance)) { setSlot(p.onFailed, key, fn) }

// OnNextGesture observers fire when a gesture is selected, before its start
// is attempted, so movement systems can begin travelling toward the required
// pose before execution blocks on it.
func (p *Performance) OnNextGesture(key string, fn func(*Performance, gesture.Gesture)) {
	if fn == nil {
		delete(p.onNextGesture, key)
		return
	}
	p.onNextGesture[key] = fn
}

func setSlot(m map[string]func(*Performance), key string, fn func(*Performance)) {
	if fn == nil {
		delete(m, key)
		return
	}
	m[key] = fn
}

func fireSlots(m map[string]func(*Performance), p *Performance) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		// An earlier callback may have unregistered a later slot.
		if fn := m[k]; fn != nil {
			fn(p)
		}
	}
}

// Run begins a new run for the claiming actor. The performance must be
// WAITING; the Director resets it on (re)schedule for exactly this reason.
func (p *Performance) Run(a gesture.Actor) (*Run, error) {
	if a == nil {
		return nil, fmt.Errorf("performance: run with nil actor")
	}
	if p.phase != Waiting {
		return nil, fmt.Errorf("performance: run from phase %s", p.phase)
	}
	p.phase = Running
	p.runCount++
	p.lastActor = a
	r := &Run{p: p, actor: a}
	p.current = r
	fireSlots(p.onStarted, p)
	return r, nil
}

// Cancel fails the performance immediately and synchronously: the current
// gesture is aborted and failure observers run inline on the caller's stack.
// Idempotent; a reentrant Cancel from inside a failure observer is a no-op.
func (p *Performance) Cancel() {
	if p.phase != Running || p.cancelling {
		return
	}
	p.cancelling = true
	defer func() { p.cancelling = false }()
	p.fail()
}

// Reset returns the performance to WAITING, cancelling first if it is
// running. Gestures are rewound so the sequence can run again from the top.
func (p *Performance) Reset() {
	if p.phase == Running {
		p.Cancel()
	}
	for _, g := range p.gestures {
		g.Reset()
	}
	p.phase = Waiting
	p.current = nil
}

// fail is the single failure path: abort the in-flight gesture, flip the
// phase, notify. All-or-nothing; no gesture after the failing one ever runs.
func (p *Performance) fail() {
	if p.phase != Running {
		return
	}
	if r := p.current; r != nil {
		if g, _, ok := r.Current(); ok && g.Phase() == gesture.Running {
			g.Abort(r.actor)
		}
		p.current = nil
	}
	p.phase = Failed
	fireSlots(p.onFailed, p)
}

func (p *Performance) complete() {
	if p.phase != Running {
		return
	}
	p.current = nil
	p.phase = Complete
	fireSlots(p.onCompleted, p)
}
