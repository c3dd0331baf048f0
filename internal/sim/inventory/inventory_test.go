package inventory

import (
	"testing"

	"stagecraft.ai/internal/sim/props"
)

const itemX = props.Kind("X")

func TestTryPut_CapacityGate(t *testing.T) {
	inv := New(100, nil)
	if !inv.TryPut(itemX, 50) {
		t.Fatalf("expected TryPut(50) to succeed with capacity 100")
	}
	if inv.AvailableCapacity() != 50 {
		t.Fatalf("availableCapacity=%d want 50", inv.AvailableCapacity())
	}
	if inv.TryPut(itemX, 51) {
		t.Fatalf("expected TryPut(51) to fail with 50 capacity left")
	}
	if f := inv.FlowFor(itemX); f.Pressure != 51 || f.FlowIn != 50 {
		t.Fatalf("flow=%+v want pressure=51 flowIn=50", f)
	}
}

func TestTakeCommit_EndToEnd(t *testing.T) {
	// Spec'd scenario: capacity 100, bulk 1, put 50, take 20, commit.
	inv := New(100, nil)
	if !inv.TryPut(itemX, 50) {
		t.Fatalf("TryPut failed")
	}
	h, ok := inv.TryTake(itemX, 20)
	if !ok {
		t.Fatalf("TryTake failed")
	}
	if h < 1 {
		t.Fatalf("handle=%d want >= 1", h)
	}
	if inv.GetAvailableCount(itemX) != 30 || inv.ClaimedCount(itemX) != 20 {
		t.Fatalf("after take: unclaimed=%d claimed=%d want 30/20",
			inv.GetAvailableCount(itemX), inv.ClaimedCount(itemX))
	}
	inv.Commit(h)
	if inv.GetAvailableCount(itemX) != 30 || inv.ClaimedCount(itemX) != 0 {
		t.Fatalf("after commit: unclaimed=%d claimed=%d want 30/0",
			inv.GetAvailableCount(itemX), inv.ClaimedCount(itemX))
	}
	if inv.AvailableCapacity() != 70 {
		t.Fatalf("availableCapacity=%d want 70", inv.AvailableCapacity())
	}
}

func TestConservation_AcrossTakeCommitRelease(t *testing.T) {
	inv := New(1000, nil)
	inv.ForcePut(itemX, 40)

	sum := func() int { return inv.GetAvailableCount(itemX) + inv.ClaimedCount(itemX) }

	h1, _ := inv.TryTake(itemX, 10)
	if sum() != 40 {
		t.Fatalf("unclaimed+claimed=%d want 40 after take", sum())
	}
	h2, _ := inv.TryTake(itemX, 5)
	inv.Release(h1)
	if sum() != 40 {
		t.Fatalf("unclaimed+claimed=%d want 40 after release", sum())
	}
	if inv.GetAvailableCount(itemX) != 35 {
		t.Fatalf("unclaimed=%d want 35 with one 5-unit claim outstanding", inv.GetAvailableCount(itemX))
	}
	inv.Commit(h2)
	if inv.GetAvailableCount(itemX) != 35 || inv.ClaimedCount(itemX) != 0 {
		t.Fatalf("after commit: unclaimed=%d claimed=%d want 35/0",
			inv.GetAvailableCount(itemX), inv.ClaimedCount(itemX))
	}
}

func TestRelease_RestoresPreTakeStock(t *testing.T) {
	inv := New(100, nil)
	inv.ForcePut(itemX, 10)
	h, ok := inv.TryTake(itemX, 7)
	if !ok {
		t.Fatalf("TryTake failed")
	}
	inv.Release(h)
	if inv.GetAvailableCount(itemX) != 10 {
		t.Fatalf("unclaimed=%d want 10 after release", inv.GetAvailableCount(itemX))
	}
	// Released handle is dead; a second release is a warned no-op.
	inv.Release(h)
	if inv.GetAvailableCount(itemX) != 10 {
		t.Fatalf("double release changed stock: %d", inv.GetAvailableCount(itemX))
	}
}

func TestTakeShortfall_IsNotAnError(t *testing.T) {
	inv := New(100, nil)
	inv.ForcePut(itemX, 3)
	h, ok := inv.TryTake(itemX, 5)
	if ok || h != InvalidHandle {
		t.Fatalf("TryTake(5 of 3) = (%d,%v) want (InvalidHandle,false)", h, ok)
	}
	if f := inv.FlowFor(itemX); f.Pressure != 5 {
		t.Fatalf("pressure=%d want 5", f.Pressure)
	}
	if inv.GetAvailableCount(itemX) != 3 {
		t.Fatalf("failed take mutated stock: %d", inv.GetAvailableCount(itemX))
	}
}

func TestCapacityBound_HoldsAfterForcedOverflow(t *testing.T) {
	inv := New(10, nil)
	inv.ForcePut(itemX, 25) // overflow by design
	if inv.AvailableCapacity() != 0 {
		t.Fatalf("availableCapacity=%d want clamped to 0", inv.AvailableCapacity())
	}
	if inv.StoredBulk() != 25 {
		t.Fatalf("storedBulk=%d want 25", inv.StoredBulk())
	}
	// Draining the overflow must clamp available back into [0,total].
	if ok := inv.TryTakeImmediately(itemX, 25); !ok {
		t.Fatalf("TryTakeImmediately failed")
	}
	if got := inv.AvailableCapacity(); got < 0 || got > inv.TotalCapacity() {
		t.Fatalf("availableCapacity=%d outside [0,%d]", got, inv.TotalCapacity())
	}
}

func TestBulkAccounting(t *testing.T) {
	bulk := func(k props.Kind) int64 {
		if k == "CRATE" {
			return 10
		}
		return 1
	}
	inv := New(25, bulk)
	if !inv.TryPut("CRATE", 2) {
		t.Fatalf("expected 2 crates (bulk 20) to fit in 25")
	}
	if inv.TryPut("CRATE", 1) {
		t.Fatalf("expected third crate to be refused (needs 10, has 5)")
	}
	if inv.AvailableCapacity() != 5 {
		t.Fatalf("availableCapacity=%d want 5", inv.AvailableCapacity())
	}
}

func TestTryPartialCommit(t *testing.T) {
	inv := New(100, nil)
	inv.ForcePut(itemX, 20)
	h, _ := inv.TryTake(itemX, 12)

	rem, ok := inv.TryPartialCommit(h, 5)
	if !ok || rem != 7 {
		t.Fatalf("TryPartialCommit(5)=(%d,%v) want (7,true)", rem, ok)
	}
	if inv.ClaimedCount(itemX) != 7 {
		t.Fatalf("claimed=%d want 7", inv.ClaimedCount(itemX))
	}
	// Release returns only what is still held.
	inv.Release(h)
	if inv.GetAvailableCount(itemX) != 15 {
		t.Fatalf("unclaimed=%d want 15 (20 - 5 committed)", inv.GetAvailableCount(itemX))
	}

	// Committing >= the claim consumes it entirely.
	h2, _ := inv.TryTake(itemX, 3)
	rem, ok = inv.TryPartialCommit(h2, 3)
	if !ok || rem != 0 {
		t.Fatalf("TryPartialCommit(full)=(%d,%v) want (0,true)", rem, ok)
	}
	if inv.OutstandingClaims() != 0 {
		t.Fatalf("expected no outstanding claims, got %d", inv.OutstandingClaims())
	}
}

func TestForceSet(t *testing.T) {
	inv := New(50, nil)
	inv.ForceSet(itemX, 30)
	if inv.GetAvailableCount(itemX) != 30 || inv.AvailableCapacity() != 20 {
		t.Fatalf("after ForceSet(30): unclaimed=%d avail=%d", inv.GetAvailableCount(itemX), inv.AvailableCapacity())
	}
	inv.ForceSet(itemX, 10)
	if inv.GetAvailableCount(itemX) != 10 || inv.AvailableCapacity() != 40 {
		t.Fatalf("after ForceSet(10): unclaimed=%d avail=%d", inv.GetAvailableCount(itemX), inv.AvailableCapacity())
	}
	inv.ForceSet(itemX, 0)
	if inv.GetAvailableCount(itemX) != 0 || inv.AvailableCapacity() != 50 {
		t.Fatalf("after ForceSet(0): unclaimed=%d avail=%d", inv.GetAvailableCount(itemX), inv.AvailableCapacity())
	}
}

func TestNotifications(t *testing.T) {
	inv := New(100, nil)
	var global []ChangeKind
	inv.OnModified(func(c Change) { global = append(global, c.Kind) })

	var xOnly int
	sub := inv.Subscribe(itemX, func(Change) { xOnly++ })

	inv.TryPut(itemX, 5)
	inv.TryPut("Y", 5)
	h, _ := inv.TryTake(itemX, 2)
	inv.Commit(h)
	inv.ForceSetWithoutNotify(itemX, 9)

	want := []ChangeKind{ChangePut, ChangePut, ChangeClaimed, ChangeCommitted}
	if len(global) != len(want) {
		t.Fatalf("global notifications=%v want %v", global, want)
	}
	for i := range want {
		if global[i] != want[i] {
			t.Fatalf("global[%d]=%s want %s", i, global[i], want[i])
		}
	}
	if xOnly != 3 {
		t.Fatalf("per-item notifications=%d want 3 (Y put excluded)", xOnly)
	}

	inv.Unsubscribe(sub)
	inv.TryPut(itemX, 1)
	if xOnly != 3 {
		t.Fatalf("unsubscribed observer still fired")
	}
}

func TestHandlesAreMonotonicAndUnique(t *testing.T) {
	inv := New(100, nil)
	inv.ForcePut(itemX, 50)
	var last int64
	for i := 0; i < 10; i++ {
		h, ok := inv.TryTake(itemX, 1)
		if !ok {
			t.Fatalf("take %d failed", i)
		}
		if h <= last {
			t.Fatalf("handle %d not monotonically increasing after %d", h, last)
		}
		last = h
		inv.Release(h)
	}
}

func TestReleaseAll(t *testing.T) {
	inv := New(100, nil)
	inv.ForcePut(itemX, 10)
	inv.ForcePut("Y", 4)
	if _, ok := inv.TryTake(itemX, 6); !ok {
		t.Fatalf("take failed")
	}
	if _, ok := inv.TryTake("Y", 4); !ok {
		t.Fatalf("take failed")
	}
	inv.ReleaseAll()
	if inv.OutstandingClaims() != 0 {
		t.Fatalf("outstanding claims=%d want 0", inv.OutstandingClaims())
	}
	if inv.GetAvailableCount(itemX) != 10 || inv.GetAvailableCount("Y") != 4 {
		t.Fatalf("stock not restored: X=%d Y=%d", inv.GetAvailableCount(itemX), inv.GetAvailableCount("Y"))
	}
}

func TestBadCountPanics(t *testing.T) {
	inv := New(10, nil)
	for name, fn := range map[string]func(){
		"TryPut":   func() { inv.TryPut(itemX, 0) },
		"TryTake":  func() { inv.TryTake(itemX, -1) },
		"ForcePut": func() { inv.ForcePut(itemX, 0) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s with count < 1 did not panic", name)
				}
			}()
			fn()
		}()
	}
}

func TestMementoRoundTrip(t *testing.T) {
	inv := New(80, nil)
	inv.ForcePut(itemX, 12)
	inv.ForcePut("Y", 3)
	h, _ := inv.TryTake(itemX, 5)

	m := inv.Memento()

	restored := New(0, nil)
	restored.Restore(m)
	if restored.GetAvailableCount(itemX) != 7 || restored.ClaimedCount(itemX) != 5 {
		t.Fatalf("restored X: unclaimed=%d claimed=%d want 7/5",
			restored.GetAvailableCount(itemX), restored.ClaimedCount(itemX))
	}
	if restored.GetAvailableCount("Y") != 3 {
		t.Fatalf("restored Y=%d want 3", restored.GetAvailableCount("Y"))
	}
	if restored.TotalCapacity() != 80 || restored.AvailableCapacity() != 65 {
		t.Fatalf("restored capacity total=%d avail=%d want 80/65",
			restored.TotalCapacity(), restored.AvailableCapacity())
	}

	// Restored claims remain releasable, and new handles never collide.
	restored.Release(h)
	if restored.GetAvailableCount(itemX) != 12 {
		t.Fatalf("release of restored claim: unclaimed=%d want 12", restored.GetAvailableCount(itemX))
	}
	h2, ok := restored.TryTake(itemX, 1)
	if !ok || h2 <= h {
		t.Fatalf("post-restore handle %d should exceed restored max %d", h2, h)
	}
}
