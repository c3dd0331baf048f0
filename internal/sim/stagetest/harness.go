package stagetest

import (
	"encoding/json"
	"testing"

	"stagecraft.ai/internal/persistence/snapshot"
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/props"
	"stagecraft.ai/internal/sim/stage"
)

// Harness is a small black-box test helper for driving a stage via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step()/StepFor() issues ACT via StepOnce()
// - Per-actor Out channels carry OBS JSON
//
// It intentionally avoids touching stage internals so tests can live outside
// the stage package.
type Harness struct {
	T       *testing.T
	Catalog *props.Catalog
	S       *stage.Stage

	DefaultActorID string

	sessions map[string]*session
}

func NewHarness(t *testing.T, cfg stage.Config, catalog *props.Catalog, actorName string) *Harness {
	t.Helper()

	s, err := stage.New(cfg, catalog)
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	return NewHarnessWithStage(t, s, catalog, actorName)
}

// NewHarnessWithStage is like NewHarness, but uses an already-constructed
// stage instance. This is useful for snapshot round-trip tests where the
// snapshot is imported before join.
func NewHarnessWithStage(t *testing.T, s *stage.Stage, catalog *props.Catalog, actorName string) *Harness {
	t.Helper()
	if s == nil {
		t.Fatalf("NewHarnessWithStage: nil stage")
	}

	h := &Harness{
		T:        t,
		Catalog:  catalog,
		S:        s,
		sessions: map[string]*session{},
	}
	h.DefaultActorID = h.Join(actorName, 0)
	return h
}

type session struct {
	ActorID string
	Out     chan []byte
	lastObs protocol.ObsMsg
}

func (h *Harness) Join(actorName string, roles uint32) string {
	h.T.Helper()

	out := make(chan []byte, 16)
	resp := make(chan stage.JoinResponse, 1)
	_, _ = h.S.StepOnce([]stage.JoinRequest{{
		Name:  actorName,
		Roles: roles,
		Out:   out,
		Resp:  resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.ActorID == "" {
		h.T.Fatalf("join returned empty actor id")
	}
	s := &session{ActorID: jr.Welcome.ActorID, Out: out}
	h.sessions[s.ActorID] = s
	h.drainAllObs()
	return s.ActorID
}

func (h *Harness) LastObs() protocol.ObsMsg {
	return h.LastObsFor(h.DefaultActorID)
}

func (h *Harness) LastObsFor(actorID string) protocol.ObsMsg {
	h.T.Helper()
	s := h.sessions[actorID]
	if s == nil {
		h.T.Fatalf("unknown actor id: %q", actorID)
	}
	return s.lastObs
}

func (h *Harness) Step(instants ...protocol.InstantReq) protocol.ObsMsg {
	return h.StepFor(h.DefaultActorID, instants...)
}

func (h *Harness) StepFor(actorID string, instants ...protocol.InstantReq) protocol.ObsMsg {
	h.T.Helper()
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            h.S.CurrentTick(),
		ActorID:         actorID,
		Instants:        instants,
	}
	_, _ = h.S.StepOnce(nil, nil, []stage.ActionEnvelope{{
		ActorID: actorID,
		Act:     act,
	}})
	h.drainAllObs()
	return h.LastObsFor(actorID)
}

func (h *Harness) StepMulti(actions []stage.ActionEnvelope) {
	h.T.Helper()
	_, _ = h.S.StepOnce(nil, nil, actions)
	h.drainAllObs()
}

func (h *Harness) StepNoop() protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.S.StepOnce(nil, nil, nil)
	h.drainAllObs()
	return h.LastObs()
}

// StepN runs n empty ticks and returns the final OBS for the default actor.
func (h *Harness) StepN(n int) protocol.ObsMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		_, _ = h.S.StepOnce(nil, nil, nil)
	}
	h.drainAllObs()
	return h.LastObs()
}

func (h *Harness) Snapshot() snapshot.StageV1 {
	h.T.Helper()
	return h.S.ExportSnapshot(h.S.CurrentTick())
}

// Result returns the ACTION_RESULT event for ref in obs, or nil if absent.
func (h *Harness) Result(obs protocol.ObsMsg, ref string) protocol.Event {
	for _, ev := range obs.Events {
		if t, _ := ev["type"].(string); t != "ACTION_RESULT" {
			continue
		}
		if r, _ := ev["ref"].(string); r == ref {
			return ev
		}
	}
	return nil
}

func (h *Harness) drainAllObs() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOneObs(s)
	}
}

func (h *Harness) drainOneObs(s *session) {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-s.Out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var obs protocol.ObsMsg
	if err := json.Unmarshal(last, &obs); err != nil {
		h.T.Fatalf("unmarshal OBS: %v", err)
	}
	s.lastObs = obs
}
