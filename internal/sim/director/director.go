// Package director is the priority scheduler matching performances to actors.
//
// Issuers schedule performances under caller-chosen keys; actors poll
// TryClaim and the director hands out the highest-priority performance
// visible to the actor's role set, or its private queue. Completion and
// failure route back through the performance's lifecycle slots so the
// director can delete or silently requeue.
//
// Like the rest of the core, a Director is single-threaded: the stage loop
// owns it.
package director

import (
	"fmt"

	"stagecraft.ai/internal/sim/gesture"
	"stagecraft.ai/internal/sim/performance"
)

// NumRoles is the width of the role bitset.
const NumRoles = 32

// RoleMask selects which role queues an actor may claim from. The zero mask
// is a wildcard: eligible for every role.
type RoleMask uint32

func (m RoleMask) Has(role int) bool {
	if role < 0 || role >= NumRoles {
		return false
	}
	if m == 0 {
		return true
	}
	return m&(1<<uint(role)) != 0
}

// Actor is what the director needs from a claiming agent.
type Actor interface {
	gesture.Actor
	Roles() RoleMask
}

// PriorityFunc maps a role bit to that role's priority for a performance.
// Higher wins; a negative value excludes the performance from that role at
// claim time (it is still enqueued, the claim step filters it).
type PriorityFunc func(role int) int

// callbackSlot is the slot key the director uses on every performance it
// manages; re-scheduling overwrites rather than accumulates.
const callbackSlot = "director"

type schedState struct {
	key              string
	priorityFn       PriorityFunc // role scheduling
	actorID          string       // ScheduleFor target, "" when role-scheduled
	actorPriority    func() int
	deleteWhenFailed bool
}

type Director struct {
	keyToPerf map[string]*performance.Performance
	perfToKey map[*performance.Performance]string

	actorToPerf map[string]*performance.Performance
	perfToActor map[*performance.Performance]string

	roleQueues  [NumRoles]*pqueue
	actorQueues map[string]*pqueue

	sched map[*performance.Performance]*schedState

	seq uint64
}

func New() *Director {
	return &Director{
		keyToPerf:   map[string]*performance.Performance{},
		perfToKey:   map[*performance.Performance]string{},
		actorToPerf: map[string]*performance.Performance{},
		perfToActor: map[*performance.Performance]string{},
		actorQueues: map[string]*pqueue{},
		sched:       map[*performance.Performance]*schedState{},
	}
}

func (d *Director) validateSchedule(key string, p *performance.Performance) error {
	if key == "" {
		return fmt.Errorf("director: empty key")
	}
	if p == nil {
		return fmt.Errorf("director: nil performance")
	}
	if prev, ok := d.keyToPerf[key]; ok {
		if prev == p {
			return fmt.Errorf("director: key %q already scheduled", key)
		}
		return fmt.Errorf("director: key %q already maps to another performance", key)
	}
	if prevKey, ok := d.perfToKey[p]; ok {
		return fmt.Errorf("director: performance already scheduled under key %q", prevKey)
	}
	if _, claimed := d.perfToActor[p]; claimed {
		return fmt.Errorf("director: performance is claimed")
	}
	if p.Phase() == performance.Running {
		return fmt.Errorf("director: performance is running")
	}
	return nil
}

// Schedule enqueues a performance into every role queue at the priorities
// getPriority reports. A nil getPriority means priority 0 for all roles.
// deleteWhenFailed selects the failure policy: drop all state, or requeue
// with the same priority function.
func (d *Director) Schedule(key string, p *performance.Performance, getPriority PriorityFunc, deleteWhenFailed bool) error {
	if err := d.validateSchedule(key, p); err != nil {
		return err
	}
	if getPriority == nil {
		getPriority = func(int) int { return 0 }
	}
	p.Reset()

	d.keyToPerf[key] = p
	d.perfToKey[p] = key
	d.sched[p] = &schedState{key: key, priorityFn: getPriority, deleteWhenFailed: deleteWhenFailed}

	d.seq++
	seq := d.seq
	for role := 0; role < NumRoles; role++ {
		if d.roleQueues[role] == nil {
			d.roleQueues[role] = newPQueue()
		}
		d.roleQueues[role].push(p, getPriority(role), seq)
	}

	d.wire(p)
	return nil
}

// ScheduleFor reserves a performance for a single named actor: it is enqueued
// only into that actor's private queue and no role resolution applies.
func (d *Director) ScheduleFor(key string, p *performance.Performance, actorID string, getPriority func() int) error {
	if actorID == "" {
		return fmt.Errorf("director: empty actor id")
	}
	if err := d.validateSchedule(key, p); err != nil {
		return err
	}
	if getPriority == nil {
		getPriority = func() int { return 0 }
	}
	p.Reset()

	d.keyToPerf[key] = p
	d.perfToKey[p] = key
	d.sched[p] = &schedState{key: key, actorID: actorID, actorPriority: getPriority, deleteWhenFailed: true}

	q := d.actorQueues[actorID]
	if q == nil {
		q = newPQueue()
		d.actorQueues[actorID] = q
	}
	d.seq++
	q.push(p, getPriority(), d.seq)

	d.wire(p)
	return nil
}

// ScheduleForWithRetry is ScheduleFor with the requeue-on-failure policy.
func (d *Director) ScheduleForWithRetry(key string, p *performance.Performance, actorID string, getPriority func() int) error {
	if err := d.ScheduleFor(key, p, actorID, getPriority); err != nil {
		return err
	}
	d.sched[p].deleteWhenFailed = false
	return nil
}

func (d *Director) wire(p *performance.Performance) {
	p.OnCompleted(callbackSlot, func(perf *performance.Performance) {
		d.remove(perf)
	})
	p.OnFailed(callbackSlot, func(perf *performance.Performance) {
		st := d.sched[perf]
		if st == nil {
			return
		}
		if st.deleteWhenFailed {
			d.remove(perf)
			return
		}
		d.reschedule(perf, *st)
	})
}

// reschedule gives a failed performance a clean re-entry: all associations
// (including any claim) are dropped and Schedule runs again with the cached
// priority function. The performance takes a fresh queue position; repeated
// failures do not retain seniority.
func (d *Director) reschedule(p *performance.Performance, st schedState) {
	d.remove(p)
	if st.actorID != "" {
		_ = d.ScheduleForWithRetry(st.key, p, st.actorID, st.actorPriority)
		return
	}
	_ = d.Schedule(st.key, p, st.priorityFn, false)
}

// remove drops every association for a performance: key bijection, claim,
// queue residency, cached scheduling state, and the director's callback
// slots. It never fires observers.
func (d *Director) remove(p *performance.Performance) {
	key, ok := d.perfToKey[p]
	if !ok {
		return
	}
	p.OnCompleted(callbackSlot, nil)
	p.OnFailed(callbackSlot, nil)

	delete(d.keyToPerf, key)
	delete(d.perfToKey, p)
	if actorID, claimed := d.perfToActor[p]; claimed {
		delete(d.perfToActor, p)
		delete(d.actorToPerf, actorID)
	}
	d.dequeueAll(p)
	delete(d.sched, p)
}

func (d *Director) dequeueAll(p *performance.Performance) {
	for role := 0; role < NumRoles; role++ {
		if q := d.roleQueues[role]; q != nil {
			q.remove(p)
		}
	}
	st := d.sched[p]
	if st != nil && st.actorID != "" {
		if q := d.actorQueues[st.actorID]; q != nil {
			q.remove(p)
			if q.Len() == 0 {
				delete(d.actorQueues, st.actorID)
			}
		}
	}
}

// bestFor gathers the claim candidates for an actor: the head of every
// eligible role queue (negative priorities filtered) plus the head of the
// actor's private queue, and picks the globally best by (priority, seq).
func (d *Director) bestFor(a Actor) (*entry, bool) {
	var best *entry
	consider := func(e *entry) {
		if best == nil ||
			e.priority > best.priority ||
			(e.priority == best.priority && e.seq < best.seq) {
			best = e
		}
	}
	mask := a.Roles()
	for role := 0; role < NumRoles; role++ {
		if !mask.Has(role) {
			continue
		}
		q := d.roleQueues[role]
		if q == nil {
			continue
		}
		if e, ok := q.peek(); ok && e.priority >= 0 {
			consider(e)
		}
	}
	if q := d.actorQueues[a.ID()]; q != nil {
		if e, ok := q.peek(); ok {
			consider(e)
		}
	}
	return best, best != nil
}

// TryClaim hands the actor the best performance visible to it and records the
// claim. An actor holds at most one claim at a time; claiming while one is
// outstanding is a calling-convention violation.
func (d *Director) TryClaim(a Actor) (*performance.Performance, bool, error) {
	if held, ok := d.actorToPerf[a.ID()]; ok {
		return nil, false, fmt.Errorf("director: actor %s already holds a claim (key %q)", a.ID(), d.perfToKey[held])
	}
	e, ok := d.bestFor(a)
	if !ok {
		return nil, false, nil
	}
	p := e.perf
	d.dequeueAll(p)
	d.actorToPerf[a.ID()] = p
	d.perfToActor[p] = a.ID()
	return p, true, nil
}

// AnyFor mirrors TryClaim's candidate gathering without mutating state, so
// pollers can skip a tick when nothing is visible. An actor with an
// outstanding claim sees nothing.
func (d *Director) AnyFor(a Actor) bool {
	if _, held := d.actorToPerf[a.ID()]; held {
		return false
	}
	_, ok := d.bestFor(a)
	return ok
}

// ReleaseClaim drops an actor's claim without touching the performance.
// Intended for drivers that claimed but never ran (e.g. the actor left);
// a running performance must be cancelled through the performance itself.
func (d *Director) ReleaseClaim(actorID string) error {
	p, ok := d.actorToPerf[actorID]
	if !ok {
		return fmt.Errorf("director: actor %s holds no claim", actorID)
	}
	if p.Phase() == performance.Running {
		return fmt.Errorf("director: claim on key %q is running, cancel the performance instead", d.perfToKey[p])
	}
	st := d.sched[p]
	d.remove(p)
	if st != nil {
		// Unclaimed-but-unfinished work goes back into the queues.
		if st.actorID != "" {
			_ = d.ScheduleFor(st.key, p, st.actorID, st.actorPriority)
		} else {
			_ = d.Schedule(st.key, p, st.priorityFn, st.deleteWhenFailed)
		}
	}
	return nil
}

// CancelKeyWithoutNotify removes an unclaimed performance from all scheduling
// state without firing any observer. Claimed performances must be cancelled
// by the claiming actor through Performance.Cancel, which does notify.
func (d *Director) CancelKeyWithoutNotify(key string) error {
	p, ok := d.keyToPerf[key]
	if !ok {
		return fmt.Errorf("director: key %q is not scheduled", key)
	}
	return d.CancelWithoutNotify(p)
}

// CancelWithoutNotify is CancelKeyWithoutNotify addressed by performance.
func (d *Director) CancelWithoutNotify(p *performance.Performance) error {
	if _, ok := d.perfToKey[p]; !ok {
		return fmt.Errorf("director: performance is not scheduled")
	}
	if actorID, claimed := d.perfToActor[p]; claimed {
		return fmt.Errorf("director: performance is claimed by %s", actorID)
	}
	d.remove(p)
	return nil
}

// GetPerformance resolves a key. Querying a dead association fails fast.
func (d *Director) GetPerformance(key string) (*performance.Performance, error) {
	p, ok := d.keyToPerf[key]
	if !ok {
		return nil, fmt.Errorf("director: key %q is not scheduled", key)
	}
	return p, nil
}

func (d *Director) GetKey(p *performance.Performance) (string, error) {
	key, ok := d.perfToKey[p]
	if !ok {
		return "", fmt.Errorf("director: performance is not scheduled")
	}
	return key, nil
}

// GetActor returns the claiming actor's ID.
func (d *Director) GetActor(p *performance.Performance) (string, error) {
	actorID, ok := d.perfToActor[p]
	if !ok {
		return "", fmt.Errorf("director: performance is not claimed")
	}
	return actorID, nil
}

func (d *Director) IsScheduled(p *performance.Performance) bool {
	_, ok := d.perfToKey[p]
	return ok
}

func (d *Director) IsClaimed(p *performance.Performance) bool {
	_, ok := d.perfToActor[p]
	return ok
}

// ClaimedBy returns the performance an actor currently holds, if any.
func (d *Director) ClaimedBy(actorID string) (*performance.Performance, bool) {
	p, ok := d.actorToPerf[actorID]
	return p, ok
}
