package stage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/performance"
)

func (s *Stage) stepInternal(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	stepStart := time.Now()
	nowTick := s.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := s.actors[id]; ok {
			s.removeActor(id, nowTick)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := s.joinActor(req.Name, req.Roles, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{ActorID: resp.Welcome.ActorID, Name: req.Name})
	}

	// Apply actions in server_receive_order (the inbox order).
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		a := s.actors[env.ActorID]
		if a == nil {
			continue
		}
		env.Act.ActorID = env.ActorID // trust session identity
		recorded = append(recorded, RecordedAction{ActorID: env.ActorID, Act: env.Act})
		s.applyAct(a, env.Act, nowTick)
	}

	// Advance claimed performances, one step per tick, in actor-id order.
	s.systemPerformances(nowTick)

	// Build + send OBS for each connected actor, then drain its event queue.
	for id, a := range s.actors {
		cl := s.clients[id]
		if cl == nil {
			continue
		}
		obs := s.buildObs(a, nowTick)
		b, err := json.Marshal(obs)
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
		a.Events = a.Events[:0]
	}

	digest := s.stateDigest(nowTick)
	if s.tickLogger != nil {
		_ = s.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Actions: recorded, Digest: digest})
	}

	if s.snapshotSink != nil && nowTick != 0 && s.cfg.SnapshotEveryTicks > 0 {
		every := uint64(s.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := s.ExportSnapshot(nowTick)
			select {
			case s.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	s.lastStepMS = float64(time.Since(stepStart).Microseconds()) / 1000.0
	s.tick.Add(1)
}

func (s *Stage) systemPerformances(nowTick uint64) {
	dt := 1.0 / float64(s.cfg.TickRateHz)

	ids := make([]string, 0, len(s.actors))
	for id, a := range s.actors {
		if a.run != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := s.actors[id]
		if a.run == nil {
			continue
		}
		// Terminal observers fire inside Step via the scheduling wiring.
		if res := a.run.Step(dt); res != performance.StepSuspended {
			a.run = nil
		}
	}
}

func (s *Stage) joinActor(name string, roles uint32, out chan []byte) JoinResponse {
	n := s.nextActorNum.Add(1)
	id := fmt.Sprintf("A%06d", n)
	a := s.newActor(id, name, roles)
	a.SessionID = uuid.NewString()
	s.actors[id] = a
	if out != nil {
		s.clients[id] = &clientState{Out: out}
	}

	s.audit(AuditEntry{Tick: s.tick.Load(), Actor: id, Action: "JOIN", Details: map[string]any{"name": name, "roles": roles}})

	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         id,
		SessionID:       a.SessionID,
		StageParams: protocol.StageParams{
			TickRateHz:    s.cfg.TickRateHz,
			Seed:          s.cfg.Seed,
			ActorCapacity: s.cfg.ActorCapacity,
			DistanceTol:   s.comparer.DistanceTol,
			VerticalTol:   s.comparer.VerticalTol,
			AngleTolDeg:   s.comparer.AngleTolDeg,
		},
		PropsDigest: s.PropsDigest(),
	}}
}

// removeActor tears an actor down without leaking scheduler or ledger state:
// its claimed performance is cancelled (which requeues or deletes it per the
// schedule's failure policy), its private schedules are dropped, and every
// outstanding inventory claim is released back to stock.
func (s *Stage) removeActor(id string, nowTick uint64) {
	a := s.actors[id]
	if a == nil {
		return
	}
	if p, ok := s.dir.ClaimedBy(id); ok {
		p.Cancel()
	}
	a.run = nil
	for key, rec := range s.schedules {
		if rec.ForActor == id {
			_ = s.dir.CancelKeyWithoutNotify(key)
			delete(s.schedules, key)
		}
	}
	a.inv.ReleaseAll()
	delete(s.actors, id)
	delete(s.clients, id)
	s.audit(AuditEntry{Tick: nowTick, Actor: id, Action: "LEAVE"})
}

func (s *Stage) applyAct(a *Actor, act protocol.ActMsg, nowTick uint64) {
	// Staleness check: accept only [now-2, now].
	if act.Tick+2 < nowTick || act.Tick > nowTick {
		a.AddEvent(actionResult(nowTick, "ACT", false, protocol.ErrStale, "act tick out of range"))
		return
	}
	if !a.allowRate("INSTANT", nowTick, uint64(s.cfg.RateLimits.InstantWindowTicks), s.cfg.RateLimits.InstantMax) {
		a.AddEvent(actionResult(nowTick, "ACT", false, protocol.ErrRateLimit, "too many acts"))
		return
	}
	for _, inst := range act.Instants {
		s.applyInstant(a, inst, nowTick)
	}
}

func (s *Stage) applyInstant(a *Actor, inst protocol.InstantReq, nowTick uint64) {
	if h := instantDispatch[inst.Type]; h != nil {
		h(s, a, inst, nowTick)
		return
	}
	a.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown instant type"))
}

func actionResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	e := protocol.Event{
		"t":    tick,
		"type": "ACTION_RESULT",
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}
