package stagetest

import (
	"fmt"
	"testing"

	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/stage"
)

func TestRateLimits_ActsPerWindow(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits = stage.RateLimitConfig{InstantWindowTicks: 100, InstantMax: 2}
	h := NewHarness(t, cfg, nil, "alice")

	for i := 0; i < 2; i++ {
		ref := fmt.Sprintf("I%d", i)
		obs := h.Step(protocol.InstantReq{ID: ref, Type: protocol.InstantPut, Item: "plank", Count: 1})
		if ev := h.Result(obs, ref); ev == nil || ev["ok"] != true {
			t.Fatalf("act %d rejected: %v", i, ev)
		}
	}

	obs := h.Step(protocol.InstantReq{ID: "I2", Type: protocol.InstantPut, Item: "plank", Count: 1})
	ev := h.Result(obs, "ACT")
	if ev == nil || ev["ok"] != false || ev["code"] != "E_RATE_LIMIT" {
		t.Fatalf("third act in window: %v", ev)
	}
	if got := stackCount(obs, "plank"); got != 2 {
		t.Fatalf("plank=%d, want 2 (limited act must not apply)", got)
	}
}

func TestRateLimits_WindowExpires(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits = stage.RateLimitConfig{InstantWindowTicks: 3, InstantMax: 1}
	h := NewHarness(t, cfg, nil, "alice")

	obs := h.Step(protocol.InstantReq{ID: "I0", Type: protocol.InstantPut, Item: "plank", Count: 1})
	if ev := h.Result(obs, "I0"); ev == nil || ev["ok"] != true {
		t.Fatalf("first act: %v", ev)
	}
	obs = h.Step(protocol.InstantReq{ID: "I1", Type: protocol.InstantPut, Item: "plank", Count: 1})
	if ev := h.Result(obs, "ACT"); ev == nil || ev["code"] != "E_RATE_LIMIT" {
		t.Fatalf("second act inside window: %v", ev)
	}

	h.StepN(3)
	obs = h.Step(protocol.InstantReq{ID: "I2", Type: protocol.InstantPut, Item: "plank", Count: 1})
	if ev := h.Result(obs, "I2"); ev == nil || ev["ok"] != true {
		t.Fatalf("act after window expiry: %v", ev)
	}
}
