package stagetest

import (
	"encoding/json"
	"testing"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/stage"
)

func TestSnapshot_RoundtripPreservesState(t *testing.T) {
	h := NewHarness(t, testConfig(), nil, "alice")
	h.Step(protocol.InstantReq{ID: "I1", Type: protocol.InstantPut, Item: "plank", Count: 6})
	h.Step(protocol.InstantReq{ID: "I2", Type: protocol.InstantMove, Pos: [3]float64{4, 1, -3}, Yaw: 180})
	h.Step(protocol.InstantReq{
		ID: "I3", Type: protocol.InstantSchedule, Key: "haul", Priority: 7, Retry: true,
		Steps: []protocol.StepSpec{{Item: "plank", Count: 2}, {DurationS: 1}},
	})

	snap := h.Snapshot()

	s2, err := stage.New(testConfig(), nil)
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	if err := s2.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if s2.CurrentTick() != snap.Header.Tick {
		t.Fatalf("tick=%d, want %d", s2.CurrentTick(), snap.Header.Tick)
	}

	// A second export must be byte-identical: actors, schedules and counters
	// all survive the cycle.
	snap2 := s2.ExportSnapshot(snap.Header.Tick)
	b1, _ := json.Marshal(snap)
	b2, _ := json.Marshal(snap2)
	if string(b1) != string(b2) {
		t.Fatalf("snapshot changed across roundtrip:\n%s\nvs\n%s", b1, b2)
	}

	// Actor counter is restored: a fresh join must not reuse an id.
	h2 := NewHarnessWithStage(t, s2, nil, "bob")
	if h2.DefaultActorID == "A000001" {
		t.Fatalf("restored stage reused actor id %s", h2.DefaultActorID)
	}

	// The restored schedule is claimable and runs to completion.
	obs := h2.StepFor(h2.DefaultActorID,
		protocol.InstantReq{ID: "I4", Type: protocol.InstantPut, Item: "plank", Count: 2})
	if ev := h2.Result(obs, "I4"); ev == nil || ev["ok"] != true {
		t.Fatalf("PUT on restored stage: %v", ev)
	}
	obs = h2.StepFor(h2.DefaultActorID, protocol.InstantReq{ID: "I5", Type: protocol.InstantClaim})
	if ev := h2.Result(obs, "I5"); ev == nil || ev["ok"] != true {
		t.Fatalf("CLAIM on restored stage: %v", ev)
	}
	if obs.Performance == nil || obs.Performance.Key != "haul" {
		t.Fatalf("performance after claim: %+v", obs.Performance)
	}
}
