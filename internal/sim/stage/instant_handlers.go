package stage

import (
	"fmt"
	"sort"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/broker"
	"stagecraft.ai/internal/sim/director"
	"stagecraft.ai/internal/sim/gesture"
	"stagecraft.ai/internal/sim/performance"
	"stagecraft.ai/internal/sim/pose"
	"stagecraft.ai/internal/sim/props"
)

type instantHandler func(*Stage, *Actor, protocol.InstantReq, uint64)

var instantDispatch = map[string]instantHandler{
	protocol.InstantSchedule: handleInstantSchedule,
	protocol.InstantCancel:   handleInstantCancel,
	protocol.InstantClaim:    handleInstantClaim,
	protocol.InstantMove:     handleInstantMove,
	protocol.InstantPut:      handleInstantPut,
	protocol.InstantTake:     handleInstantTake,
	protocol.InstantFind:     handleInstantFind,
}

func handleInstantSchedule(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if !a.allowRate("SCHEDULE", nowTick, uint64(s.cfg.RateLimits.ScheduleWindowTicks), s.cfg.RateLimits.ScheduleMax) {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrRateLimit, "too many SCHEDULE"))
		return
	}
	if inst.Key == "" {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing key"))
		return
	}
	if len(inst.Steps) == 0 || len(inst.Steps) > s.cfg.MaxStepsPerSched {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "bad step count"))
		return
	}
	if _, exists := s.schedules[inst.Key]; exists {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrKeyConflict, "key already scheduled"))
		return
	}
	if inst.ForActor != "" && s.actors[inst.ForActor] == nil {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown actor"))
		return
	}

	p, err := s.compilePerformance(inst.Steps)
	if err != nil {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, err.Error()))
		return
	}

	key := inst.Key
	retry := inst.Retry
	s.wireStageObservers(p, key, retry)

	if inst.ForActor != "" {
		prio := inst.Priority
		fn := func() int { return prio }
		if retry {
			err = s.dir.ScheduleForWithRetry(key, p, inst.ForActor, fn)
		} else {
			err = s.dir.ScheduleFor(key, p, inst.ForActor, fn)
		}
	} else {
		mask := director.RoleMask(inst.Roles)
		prio := inst.Priority
		err = s.dir.Schedule(key, p, func(role int) int {
			if mask.Has(role) {
				return prio
			}
			return -1
		}, !retry)
	}
	if err != nil {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, err.Error()))
		return
	}

	s.schedules[key] = &scheduleRecord{
		Key:      key,
		Priority: inst.Priority,
		Roles:    inst.Roles,
		ForActor: inst.ForActor,
		Retry:    retry,
		Owner:    a.ID(),
		Steps:    inst.Steps,
	}
	s.audit(AuditEntry{Tick: nowTick, Actor: a.ID(), Action: "SCHEDULE", Key: key, Details: map[string]any{"steps": len(inst.Steps), "priority": inst.Priority}})
	a.AddEvent(actionResult(nowTick, inst.ID, true, "", "scheduled"))
}

// wireStageObservers attaches the stage's lifecycle slots. They ride the same
// keyed-slot mechanism the director uses, under a distinct key, so a
// reschedule never detaches them.
func (s *Stage) wireStageObservers(p *performance.Performance, key string, retry bool) {
	p.OnStarted("stage", func(perf *performance.Performance) {
		if act := s.runActor(perf); act != nil {
			act.AddEvent(protocol.Event{"t": s.tick.Load(), "type": "PERF_STARTED", "key": key})
		}
	})
	p.OnCompleted("stage", func(perf *performance.Performance) {
		tick := s.tick.Load()
		if act := s.runActor(perf); act != nil {
			act.AddEvent(protocol.Event{"t": tick, "type": "PERF_COMPLETED", "key": key})
		}
		s.audit(AuditEntry{Tick: tick, Actor: s.runActorID(perf), Action: "PERF_COMPLETE", Key: key})
		delete(s.schedules, key)
	})
	p.OnFailed("stage", func(perf *performance.Performance) {
		tick := s.tick.Load()
		if act := s.runActor(perf); act != nil {
			act.AddEvent(protocol.Event{"t": tick, "type": "PERF_FAILED", "key": key, "retry": retry})
		}
		s.audit(AuditEntry{Tick: tick, Actor: s.runActorID(perf), Action: "PERF_FAIL", Key: key, Reason: "gesture failed"})
		if !retry {
			delete(s.schedules, key)
		}
	})
}

func (s *Stage) runActor(p *performance.Performance) *Actor {
	ga, ok := p.RunActor()
	if !ok {
		return nil
	}
	return s.actors[ga.ID()]
}

func (s *Stage) runActorID(p *performance.Performance) string {
	ga, ok := p.RunActor()
	if !ok {
		return ""
	}
	return ga.ID()
}

// compilePerformance turns wire-form steps into a gesture sequence.
func (s *Stage) compilePerformance(steps []protocol.StepSpec) (*performance.Performance, error) {
	p := performance.New()
	for i, st := range steps {
		cfg := gesture.Config{Comparer: &s.comparer}
		if st.Pose != nil {
			ps := pose.At(pose.Vec3{X: st.Pose.Pos[0], Y: st.Pose.Pos[1], Z: st.Pose.Pos[2]})
			if st.Pose.Yaw != nil {
				ps = pose.Facing(ps.Pos, *st.Pose.Yaw)
			}
			cfg.Pose = &ps
		}
		if st.Item != "" {
			kind := props.Kind(st.Item)
			if s.catalog != nil {
				if _, ok := s.catalog.Defs[kind]; !ok {
					return nil, fmt.Errorf("step %d: unknown prop kind %q", i, st.Item)
				}
			}
			n := st.Count
			if n <= 0 {
				n = 1
			}
			c := props.Of(kind, n)
			cfg.Props = &c
		}
		if st.DurationS < 0 || st.TimeoutS < 0 || st.TickEveryS < 0 {
			return nil, fmt.Errorf("step %d: negative duration", i)
		}
		cfg.Duration = st.DurationS
		cfg.TickEvery = st.TickEveryS
		cfg.Timeout = st.TimeoutS
		if cfg.Timeout == 0 {
			cfg.Timeout = s.cfg.DefaultTimeoutS
		}
		p.Append(gesture.New(cfg))
	}
	return p, nil
}

func handleInstantCancel(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if inst.Key == "" {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing key"))
		return
	}
	if _, exists := s.schedules[inst.Key]; !exists {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNotScheduled, "no such key"))
		return
	}
	if err := s.dir.CancelKeyWithoutNotify(inst.Key); err != nil {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, err.Error()))
		return
	}
	delete(s.schedules, inst.Key)
	s.audit(AuditEntry{Tick: nowTick, Actor: a.ID(), Action: "CANCEL", Key: inst.Key})
	a.AddEvent(actionResult(nowTick, inst.ID, true, "", "cancelled"))
}

func handleInstantClaim(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if a.run != nil {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrAlreadyClaims, "already performing"))
		return
	}
	p, ok, err := s.dir.TryClaim(a)
	if err != nil {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrAlreadyClaims, err.Error()))
		return
	}
	if !ok {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNothingToDo, "no eligible work"))
		return
	}
	run, err := p.Run(a)
	if err != nil {
		// Claim resolution handed out a non-restartable performance; put the
		// schedule back rather than wedging the actor.
		_ = s.dir.ReleaseClaim(a.ID())
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInternal, err.Error()))
		return
	}
	a.run = run
	key, _ := s.dir.GetKey(p)
	s.audit(AuditEntry{Tick: nowTick, Actor: a.ID(), Action: "CLAIM", Key: key})
	ev := actionResult(nowTick, inst.ID, true, "", "claimed")
	ev["key"] = key
	a.AddEvent(ev)
}

func handleInstantMove(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	a.Pose = pose.Facing(pose.Vec3{X: inst.Pos[0], Y: inst.Pos[1], Z: inst.Pos[2]}, inst.Yaw)
	a.AddEvent(actionResult(nowTick, inst.ID, true, "", "moved"))
}

func handleInstantPut(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if inst.Item == "" || inst.Count <= 0 {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing item or count"))
		return
	}
	kind := props.Kind(inst.Item)
	if s.catalog != nil {
		if _, ok := s.catalog.Defs[kind]; !ok {
			a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown prop kind"))
			return
		}
	}
	if !a.inv.TryPut(kind, inst.Count) {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "over capacity"))
		return
	}
	s.audit(AuditEntry{Tick: nowTick, Actor: a.ID(), Action: "PUT", Item: inst.Item, Count: inst.Count})
	a.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}

func handleInstantTake(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if inst.Item == "" || inst.Count <= 0 {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing item or count"))
		return
	}
	if !a.inv.TryTakeImmediately(props.Kind(inst.Item), inst.Count) {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "insufficient stock"))
		return
	}
	s.audit(AuditEntry{Tick: nowTick, Actor: a.ID(), Action: "TAKE", Item: inst.Item, Count: inst.Count})
	a.AddEvent(actionResult(nowTick, inst.ID, true, "", "ok"))
}

// FIND answers "who on the stage can supply this?" without moving anything.
// Providers are consulted in actor-id order so the answer is deterministic.
func handleInstantFind(s *Stage, a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if inst.Item == "" {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing item"))
		return
	}
	kind := props.Kind(inst.Item)
	want := inst.Count
	if want <= 0 {
		want = 1
	}

	b := broker.NewBroker()
	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	bestID, bestN := "", 0
	for _, id := range ids {
		p := broker.InventoryProvider{Inv: s.actors[id].inv}
		b.Add(p)
		if n := p.Available(kind); n > bestN {
			bestID, bestN = id, n
		}
	}

	total := b.Available(kind)
	if total < want {
		a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "insufficient stock on stage"))
		return
	}
	ev := actionResult(nowTick, inst.ID, true, "", "found")
	ev["item"] = inst.Item
	ev["total"] = total
	ev["best_actor"] = bestID
	ev["best_count"] = bestN
	a.AddEvent(ev)
}
