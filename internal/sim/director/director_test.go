package director

import (
	"testing"

	"stagecraft.ai/internal/sim/gesture"
	"stagecraft.ai/internal/sim/inventory"
	"stagecraft.ai/internal/sim/performance"
	"stagecraft.ai/internal/sim/pose"
)

type fakeActor struct {
	id    string
	roles RoleMask
	inv   *inventory.Inventory
}

func (a *fakeActor) ID() string                      { return a.id }
func (a *fakeActor) CurrentPose() pose.Pose          { return pose.Pose{} }
func (a *fakeActor) Inventory() *inventory.Inventory { return a.inv }
func (a *fakeActor) Roles() RoleMask                 { return a.roles }

func actorWithRoles(id string, roles RoleMask) *fakeActor {
	return &fakeActor{id: id, roles: roles, inv: inventory.New(100, nil)}
}

func noopPerf() *performance.Performance {
	return performance.New().Append(gesture.New(gesture.Config{}))
}

// runToEnd drives a claimed performance to a terminal phase.
func runToEnd(t *testing.T, p *performance.Performance, a gesture.Actor) {
	t.Helper()
	r, err := p.Run(a)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 100; i++ {
		if res := r.Step(0.1); res != performance.StepSuspended {
			return
		}
	}
	t.Fatalf("performance did not settle")
}

func TestSchedule_KeyBijection(t *testing.T) {
	d := New()
	p := noopPerf()
	if err := d.Schedule("K1", p, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	got, err := d.GetPerformance("K1")
	if err != nil || got != p {
		t.Fatalf("GetPerformance(K1)=%v,%v want p,nil", got, err)
	}
	key, err := d.GetKey(p)
	if err != nil || key != "K1" {
		t.Fatalf("GetKey(p)=%q,%v want K1,nil", key, err)
	}
	if !d.IsScheduled(p) || d.IsClaimed(p) {
		t.Fatalf("IsScheduled=%v IsClaimed=%v want true,false", d.IsScheduled(p), d.IsClaimed(p))
	}
}

func TestSchedule_InvariantViolations(t *testing.T) {
	d := New()
	p := noopPerf()
	if err := d.Schedule("K1", p, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.Schedule("K1", noopPerf(), nil, true); err == nil {
		t.Fatalf("expected error: key reuse")
	}
	if err := d.Schedule("K2", p, nil, true); err == nil {
		t.Fatalf("expected error: performance under second key")
	}

	running := noopPerf()
	a := actorWithRoles("A", 0)
	if _, err := running.Run(a); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := d.Schedule("K3", running, nil, true); err == nil {
		t.Fatalf("expected error: scheduling a running performance")
	}
}

func TestTryClaim_PriorityAndExclusion(t *testing.T) {
	d := New()
	p5 := noopPerf()
	p3 := noopPerf()
	pNeg := noopPerf()
	flat := func(n int) PriorityFunc { return func(int) int { return n } }
	if err := d.Schedule("k5", p5, flat(5), true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.Schedule("k3", p3, flat(3), true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.Schedule("kneg", pNeg, flat(-1), true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	a := actorWithRoles("A", 1<<0|1<<1|1<<2)
	got, ok, err := d.TryClaim(a)
	if err != nil || !ok || got != p5 {
		t.Fatalf("TryClaim=%v,%v,%v want p5", got, ok, err)
	}

	b := actorWithRoles("B", 1<<0)
	got, ok, err = d.TryClaim(b)
	if err != nil || !ok || got != p3 {
		t.Fatalf("second TryClaim=%v,%v,%v want p3", got, ok, err)
	}

	// The negative-priority performance is enqueued but never claimable.
	c := actorWithRoles("C", 1<<0)
	if _, ok, _ := d.TryClaim(c); ok {
		t.Fatalf("negative priority performance was claimed")
	}
	if !d.IsScheduled(pNeg) {
		t.Fatalf("excluded performance must stay scheduled")
	}
}

func TestTryClaim_SingleClaimPerActorAndPerPerformance(t *testing.T) {
	d := New()
	p := noopPerf()
	if err := d.Schedule("K", p, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a := actorWithRoles("A", 0)
	if _, ok, err := d.TryClaim(a); !ok || err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	// Claimed performance is invisible to everyone else.
	b := actorWithRoles("B", 0)
	if _, ok, _ := d.TryClaim(b); ok {
		t.Fatalf("second actor claimed an already-claimed performance")
	}
	// Claiming again while holding is a contract violation.
	if _, _, err := d.TryClaim(a); err == nil {
		t.Fatalf("expected error claiming while already holding")
	}
	actorID, err := d.GetActor(p)
	if err != nil || actorID != "A" {
		t.Fatalf("GetActor=%q,%v want A", actorID, err)
	}
}

func TestTryClaim_TieBreakIsInsertionOrder(t *testing.T) {
	d := New()
	first := noopPerf()
	second := noopPerf()
	flat := func(int) int { return 7 }
	if err := d.Schedule("first", first, flat, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.Schedule("second", second, flat, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a := actorWithRoles("A", 0)
	got, _, _ := d.TryClaim(a)
	if got != first {
		t.Fatalf("tie must go to the earlier Schedule call")
	}
}

func TestAnyFor(t *testing.T) {
	d := New()
	a := actorWithRoles("A", 1<<4)
	if d.AnyFor(a) {
		t.Fatalf("AnyFor on empty director")
	}
	p := noopPerf()
	if err := d.Schedule("K", p, func(role int) int {
		if role == 4 {
			return 1
		}
		return -1
	}, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !d.AnyFor(a) {
		t.Fatalf("AnyFor=false for eligible role")
	}
	other := actorWithRoles("O", 1<<9)
	if d.AnyFor(other) {
		t.Fatalf("AnyFor=true for excluded role")
	}
	// Gathering must not mutate.
	if got, ok, _ := d.TryClaim(a); !ok || got != p {
		t.Fatalf("claim after AnyFor failed")
	}
	if d.AnyFor(a) {
		t.Fatalf("AnyFor=true while actor holds a claim")
	}
}

func TestScheduleFor_PrivateQueue(t *testing.T) {
	d := New()
	p := noopPerf()
	if err := d.ScheduleFor("K", p, "A", func() int { return 1 }); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	// Role-eligible stranger can not see it.
	b := actorWithRoles("B", 0)
	if _, ok, _ := d.TryClaim(b); ok {
		t.Fatalf("private performance claimed by another actor")
	}
	a := actorWithRoles("A", 0)
	got, ok, err := d.TryClaim(a)
	if err != nil || !ok || got != p {
		t.Fatalf("named actor claim=%v,%v,%v", got, ok, err)
	}
}

func TestPrivateQueueBeatsRoleQueueOnPriority(t *testing.T) {
	d := New()
	rolePerf := noopPerf()
	privPerf := noopPerf()
	if err := d.Schedule("role", rolePerf, func(int) int { return 3 }, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.ScheduleFor("priv", privPerf, "A", func() int { return 9 }); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	a := actorWithRoles("A", 0)
	got, _, _ := d.TryClaim(a)
	if got != privPerf {
		t.Fatalf("expected private queue to win at higher priority")
	}
}

func TestCompletion_DeletesAllState(t *testing.T) {
	d := New()
	p := noopPerf()
	if err := d.Schedule("K", p, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a := actorWithRoles("A", 0)
	claimed, ok, _ := d.TryClaim(a)
	if !ok {
		t.Fatalf("claim failed")
	}
	runToEnd(t, claimed, a)

	if d.IsScheduled(p) || d.IsClaimed(p) {
		t.Fatalf("completed performance still tracked")
	}
	if _, err := d.GetPerformance("K"); err == nil {
		t.Fatalf("key survived completion")
	}
	// Actor is free to claim again.
	if _, _, err := d.TryClaim(a); err != nil {
		t.Fatalf("actor still considered claimed: %v", err)
	}
}

func TestFailure_DeleteWhenFailed(t *testing.T) {
	d := New()
	p := performance.New().Append(gesture.New(gesture.Config{
		OnStart: func(gesture.Actor) bool { return false },
	}))
	if err := d.Schedule("K", p, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a := actorWithRoles("A", 0)
	claimed, _, _ := d.TryClaim(a)
	runToEnd(t, claimed, a)

	if d.IsScheduled(p) {
		t.Fatalf("failed performance not deleted with deleteWhenFailed=true")
	}
}

func TestFailure_RescheduleKeepsPriorityFunction(t *testing.T) {
	d := New()
	attempts := 0
	p := performance.New().Append(gesture.New(gesture.Config{
		OnStart: func(gesture.Actor) bool { attempts++; return attempts > 1 },
	}))
	if err := d.Schedule("K", p, func(int) int { return 5 }, false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a := actorWithRoles("A", 0)
	claimed, _, _ := d.TryClaim(a)
	runToEnd(t, claimed, a) // fails, director requeues silently

	if !d.IsScheduled(p) {
		t.Fatalf("failed performance was deleted despite deleteWhenFailed=false")
	}
	if d.IsClaimed(p) {
		t.Fatalf("requeued performance still claimed")
	}
	if p.Phase() != performance.Waiting {
		t.Fatalf("requeued performance phase=%s want WAITING", p.Phase())
	}

	// Second claim must see it at the original priority and succeed this time.
	claimed, ok, err := d.TryClaim(a)
	if err != nil || !ok || claimed != p {
		t.Fatalf("reclaim=%v,%v,%v", claimed, ok, err)
	}
	runToEnd(t, claimed, a)
	if p.Phase() != performance.Complete {
		t.Fatalf("phase=%s want COMPLETE on retry", p.Phase())
	}
	if d.IsScheduled(p) {
		t.Fatalf("completed performance still scheduled")
	}
}

func TestCancelWithoutNotify(t *testing.T) {
	d := New()
	p := noopPerf()
	var observed int
	p.OnFailed("issuer", func(*performance.Performance) { observed++ })

	if err := d.Schedule("K", p, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.CancelKeyWithoutNotify("K"); err != nil {
		t.Fatalf("CancelKeyWithoutNotify: %v", err)
	}
	if observed != 0 {
		t.Fatalf("cancel without notify fired observers")
	}
	if d.IsScheduled(p) {
		t.Fatalf("cancelled performance still scheduled")
	}

	// Claimed performances must be refused.
	p2 := noopPerf()
	if err := d.Schedule("K2", p2, nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	a := actorWithRoles("A", 0)
	if _, ok, _ := d.TryClaim(a); !ok {
		t.Fatalf("claim failed")
	}
	if err := d.CancelWithoutNotify(p2); err == nil {
		t.Fatalf("expected error cancelling a claimed performance")
	}
}

func TestRoleMask(t *testing.T) {
	if !RoleMask(0).Has(7) {
		t.Fatalf("zero mask must be a wildcard")
	}
	m := RoleMask(1<<3 | 1<<30)
	if !m.Has(3) || !m.Has(30) || m.Has(4) {
		t.Fatalf("mask bits wrong: %b", m)
	}
	if m.Has(32) || m.Has(-1) {
		t.Fatalf("out-of-range roles must be false")
	}
}

func TestStatsSnapshot(t *testing.T) {
	d := New()
	if err := d.Schedule("K", noopPerf(), nil, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := d.ScheduleFor("P", noopPerf(), "A", nil); err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	s := d.StatsSnapshot()
	if s.Scheduled != 2 || s.Claimed != 0 {
		t.Fatalf("stats=%+v want scheduled=2 claimed=0", s)
	}
	if s.RoleQueue[0] != 1 {
		t.Fatalf("role queue 0 len=%d want 1", s.RoleQueue[0])
	}
	if s.ActorQueue["A"] != 1 {
		t.Fatalf("actor queue len=%d want 1", s.ActorQueue["A"])
	}
	keys := d.ScheduledKeys()
	if len(keys) != 2 || keys[0] != "K" || keys[1] != "P" {
		t.Fatalf("keys=%v", keys)
	}
}
