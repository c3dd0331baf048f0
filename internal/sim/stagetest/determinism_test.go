package stagetest

import (
	"testing"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/stage"
)

func testConfig() stage.Config {
	return stage.Config{
		ID:               "stage_1",
		TickRateHz:       10,
		Seed:             42,
		ActorCapacity:    100,
		MaxStepsPerSched: 8,
	}
}

// Two stages driven by the same inputs must report identical digests on
// every tick.
func TestDeterminism_SameInputsSameDigests(t *testing.T) {
	h1 := NewHarness(t, testConfig(), nil, "alice")
	h2 := NewHarness(t, testConfig(), nil, "alice")

	drive := func(h *Harness) {
		h.Step(protocol.InstantReq{ID: "I1", Type: protocol.InstantPut, Item: "plank", Count: 5})
		h.Step(protocol.InstantReq{ID: "I2", Type: protocol.InstantMove, Pos: [3]float64{3, 0, -2}, Yaw: 90})
		h.Step(protocol.InstantReq{
			ID: "I3", Type: protocol.InstantSchedule, Key: "haul", Priority: 5,
			Steps: []protocol.StepSpec{{Item: "plank", Count: 2}},
		})
		h.Step(protocol.InstantReq{ID: "I4", Type: protocol.InstantClaim})
	}
	drive(h1)
	drive(h2)

	for i := 0; i < 10; i++ {
		_, d1 := h1.S.StepOnce(nil, nil, nil)
		_, d2 := h2.S.StepOnce(nil, nil, nil)
		if d1 != d2 {
			t.Fatalf("digest diverged at idle tick %d: %s vs %s", i, d1, d2)
		}
	}
}

func TestDeterminism_InputOrderMatters(t *testing.T) {
	h := NewHarness(t, testConfig(), nil, "alice")
	bob := h.Join("bob", 0)

	h.StepMulti([]stage.ActionEnvelope{
		{ActorID: h.DefaultActorID, Act: protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Tick: h.S.CurrentTick(),
			Instants: []protocol.InstantReq{{ID: "Ia", Type: protocol.InstantPut, Item: "plank", Count: 1}},
		}},
		{ActorID: bob, Act: protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Tick: h.S.CurrentTick(),
			Instants: []protocol.InstantReq{{ID: "Ib", Type: protocol.InstantPut, Item: "plank", Count: 2}},
		}},
	})

	if got := stackCount(h.LastObsFor(h.DefaultActorID), "plank"); got != 1 {
		t.Fatalf("alice plank=%d, want 1", got)
	}
	if got := stackCount(h.LastObsFor(bob), "plank"); got != 2 {
		t.Fatalf("bob plank=%d, want 2", got)
	}
}

func stackCount(obs protocol.ObsMsg, item string) int {
	for _, st := range obs.Inventory {
		if st.Item == item {
			return st.Count
		}
	}
	return 0
}
