package stagetest

import (
	"testing"

	"stagecraft.ai/internal/protocol"
)

func hasEventType(obs protocol.ObsMsg, typ string) bool {
	for _, ev := range obs.Events {
		if ev["type"] == typ {
			return true
		}
	}
	return false
}

// Full client loop over OBS: stock props, publish a retryable schedule, claim
// it away from the pose gate, watch the attempt fail, walk to the gate and
// run it to completion.
func TestClaimFlow_PoseGateOverObs(t *testing.T) {
	h := NewHarness(t, testConfig(), nil, "alice")

	h.Step(protocol.InstantReq{ID: "I1", Type: protocol.InstantPut, Item: "plank", Count: 4})
	obs := h.Step(protocol.InstantReq{
		ID: "I2", Type: protocol.InstantSchedule, Key: "rig-stand", Priority: 5, Retry: true,
		Steps: []protocol.StepSpec{
			{Item: "plank", Count: 2},
			{Pose: &protocol.PoseSpec{Pos: [3]float64{10, 0, 10}}, DurationS: 0.3},
		},
	})
	if ev := h.Result(obs, "I2"); ev == nil || ev["ok"] != true {
		t.Fatalf("SCHEDULE: %v", ev)
	}

	// Claim far from the gate: the claim lands, the run fails at the pose
	// step, and the retry flag puts the schedule back in the queue.
	obs = h.Step(protocol.InstantReq{ID: "I3", Type: protocol.InstantClaim})
	if ev := h.Result(obs, "I3"); ev == nil || ev["ok"] != true {
		t.Fatalf("CLAIM: %v", ev)
	}
	failed := false
	for i := 0; i < 10 && !failed; i++ {
		obs = h.StepNoop()
		failed = hasEventType(obs, "PERF_FAILED")
	}
	if !failed {
		t.Fatalf("expected the first attempt to fail away from the gate")
	}

	h.Step(protocol.InstantReq{ID: "I4", Type: protocol.InstantMove, Pos: [3]float64{10, 0, 10}})
	obs = h.Step(protocol.InstantReq{ID: "I5", Type: protocol.InstantClaim})
	if ev := h.Result(obs, "I5"); ev == nil || ev["ok"] != true {
		t.Fatalf("CLAIM at gate: %v", ev)
	}
	if obs.Performance == nil || obs.Performance.Key != "rig-stand" {
		t.Fatalf("performance after claim: %+v", obs.Performance)
	}

	completed := false
	for i := 0; i < 20 && !completed; i++ {
		obs = h.StepNoop()
		completed = hasEventType(obs, "PERF_COMPLETED")
	}
	if !completed {
		t.Fatalf("performance never completed; last obs performance=%+v events=%v", obs.Performance, obs.Events)
	}
	if obs.Performance != nil {
		t.Fatalf("performance still claimed after completion: %+v", obs.Performance)
	}
	if got := stackCount(obs, "plank"); got != 0 {
		t.Fatalf("plank=%d, want 0 after both attempts consumed stock", got)
	}
}
