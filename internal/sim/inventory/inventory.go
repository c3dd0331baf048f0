// Package inventory is a two-phase-commit quantity ledger for prop kinds.
//
// Takes reserve stock under an opaque claim handle; a later Commit consumes
// the reservation and a Release cancels it. The split exists so an actor can
// reserve a prop before committing to travel toward it without other actors
// double-claiming the same units, while still allowing rollback when the
// larger task fails. Puts are single-phase.
//
// An Inventory is not safe for concurrent use; the stage loop owns all
// mutation (see internal/sim/stage).
package inventory

import (
	"fmt"
	"sort"

	"stagecraft.ai/internal/sim/props"
)

// ChangeKind classifies a Modified notification.
type ChangeKind string

const (
	ChangePut       ChangeKind = "PUT"
	ChangeClaimed   ChangeKind = "CLAIMED"
	ChangeCommitted ChangeKind = "COMMITTED"
	ChangeReleased  ChangeKind = "RELEASED"
	ChangeForced    ChangeKind = "FORCED"
)

// Change describes one mutation for observers.
type Change struct {
	Kind   ChangeKind
	Item   props.Kind
	Count  int
	Handle int64 // claim handle for CLAIMED/COMMITTED/RELEASED, else 0
}

// Flow is the diagnostic accumulator for one kind. Pressure counts units of
// attempted-but-refused puts/takes; FlowIn/FlowOut count realized stock
// movement. Purely observational, never authoritative.
type Flow struct {
	Pressure int64
	FlowIn   int64
	FlowOut  int64
}

// BulkFunc reports the per-unit capacity cost of a kind.
type BulkFunc func(props.Kind) int64

// InvalidHandle is the sentinel returned by a failed TryTake.
const InvalidHandle int64 = -1

type Inventory struct {
	bulk BulkFunc

	unclaimed map[props.Kind]int
	claimed   map[props.Kind]int
	claims    map[int64]props.Count

	nextHandle int64

	totalCapacity     int64
	availableCapacity int64
	storedBulk        int64

	flows map[props.Kind]*Flow

	modified func(Change)
	subs     map[int64]subscription
	nextSub  int64

	warnf func(format string, args ...any)
}

type subscription struct {
	item props.Kind
	fn   func(Change)
}

// New creates an empty inventory with the given capacity. A nil bulk function
// costs every kind one capacity unit.
func New(totalCapacity int64, bulk BulkFunc) *Inventory {
	if totalCapacity < 0 {
		totalCapacity = 0
	}
	if bulk == nil {
		bulk = func(props.Kind) int64 { return 1 }
	}
	return &Inventory{
		bulk:              bulk,
		unclaimed:         map[props.Kind]int{},
		claimed:           map[props.Kind]int{},
		claims:            map[int64]props.Count{},
		totalCapacity:     totalCapacity,
		availableCapacity: totalCapacity,
		flows:             map[props.Kind]*Flow{},
		subs:              map[int64]subscription{},
	}
}

// SetWarnFunc installs a sink for non-fatal bookkeeping warnings (unknown
// handles, clamped capacity). Nil discards them.
func (inv *Inventory) SetWarnFunc(f func(format string, args ...any)) {
	inv.warnf = f
}

// OnModified installs the single global change observer, replacing any
// previous one. Nil clears it.
func (inv *Inventory) OnModified(fn func(Change)) {
	inv.modified = fn
}

// Subscribe registers a per-kind change observer and returns its handle.
func (inv *Inventory) Subscribe(item props.Kind, fn func(Change)) int64 {
	inv.nextSub++
	inv.subs[inv.nextSub] = subscription{item: item, fn: fn}
	return inv.nextSub
}

// Unsubscribe removes a per-kind observer. Unknown handles warn and no-op.
func (inv *Inventory) Unsubscribe(handle int64) {
	if _, ok := inv.subs[handle]; !ok {
		inv.warn("inventory: unsubscribe unknown handle %d", handle)
		return
	}
	delete(inv.subs, handle)
}

func (inv *Inventory) warn(format string, args ...any) {
	if inv.warnf != nil {
		inv.warnf(format, args...)
	}
}

func (inv *Inventory) notify(ch Change) {
	if inv.modified != nil {
		inv.modified(ch)
	}
	for _, s := range inv.subs {
		if s.item == ch.Item {
			s.fn(ch)
		}
	}
}

// clamp soft-heals the capacity bookkeeping after every mutation. Forced
// operations may legitimately overshoot; the ledger absorbs that instead of
// failing the simulation.
func (inv *Inventory) clamp() {
	if inv.storedBulk < 0 {
		inv.warn("inventory: storedBulk clamped from %d", inv.storedBulk)
		inv.storedBulk = 0
	}
	if inv.availableCapacity < 0 {
		inv.availableCapacity = 0
	}
	if inv.availableCapacity > inv.totalCapacity {
		inv.availableCapacity = inv.totalCapacity
	}
}

func (inv *Inventory) flow(item props.Kind) *Flow {
	f := inv.flows[item]
	if f == nil {
		f = &Flow{}
		inv.flows[item] = f
	}
	return f
}

// GetAvailableCount returns the unclaimed stock of a kind.
func (inv *Inventory) GetAvailableCount(item props.Kind) int {
	return inv.unclaimed[item]
}

// ClaimedCount returns the aggregate outstanding reservations for a kind.
func (inv *Inventory) ClaimedCount(item props.Kind) int {
	return inv.claimed[item]
}

func (inv *Inventory) TotalCapacity() int64     { return inv.totalCapacity }
func (inv *Inventory) AvailableCapacity() int64 { return inv.availableCapacity }
func (inv *Inventory) StoredBulk() int64        { return inv.storedBulk }

// FlowFor returns a copy of the diagnostic flow record for a kind.
func (inv *Inventory) FlowFor(item props.Kind) Flow {
	if f := inv.flows[item]; f != nil {
		return *f
	}
	return Flow{}
}

// OutstandingClaims returns the number of live claim handles.
func (inv *Inventory) OutstandingClaims() int { return len(inv.claims) }

// Kinds lists every kind with unclaimed stock or outstanding reservations,
// sorted for deterministic iteration.
func (inv *Inventory) Kinds() []props.Kind {
	seen := map[props.Kind]struct{}{}
	for k, n := range inv.unclaimed {
		if n > 0 {
			seen[k] = struct{}{}
		}
	}
	for k, n := range inv.claimed {
		if n > 0 {
			seen[k] = struct{}{}
		}
	}
	kinds := make([]props.Kind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func mustPositive(op string, count int) {
	if count < 1 {
		panic(fmt.Sprintf("inventory: %s: count must be >= 1, got %d", op, count))
	}
}

// TryPut adds stock if the capacity fits. Shortfall is not an error: it
// returns false and accumulates put pressure for the presentation layer.
func (inv *Inventory) TryPut(item props.Kind, count int) bool {
	mustPositive("TryPut", count)
	need := inv.bulk(item) * int64(count)
	if inv.availableCapacity < need {
		inv.flow(item).Pressure += int64(count)
		return false
	}
	inv.unclaimed[item] += count
	inv.storedBulk += need
	inv.availableCapacity -= need
	inv.clamp()
	inv.flow(item).FlowIn += int64(count)
	inv.notify(Change{Kind: ChangePut, Item: item, Count: count})
	return true
}

// ForcePut adds stock bypassing the capacity check entirely. Capacity fields
// are clamped afterwards rather than validated.
func (inv *Inventory) ForcePut(item props.Kind, count int) {
	mustPositive("ForcePut", count)
	need := inv.bulk(item) * int64(count)
	inv.unclaimed[item] += count
	inv.storedBulk += need
	inv.availableCapacity -= need
	inv.clamp()
	inv.flow(item).FlowIn += int64(count)
	inv.notify(Change{Kind: ChangePut, Item: item, Count: count})
}

// ForceSet pins the unclaimed stock of a kind to an exact quantity, adjusting
// the capacity bookkeeping by the delta.
func (inv *Inventory) ForceSet(item props.Kind, count int) {
	inv.forceSet(item, count, true)
}

// ForceSetWithoutNotify is ForceSet minus the Modified notification. Used by
// snapshot restore, where observers must not see phantom changes.
func (inv *Inventory) ForceSetWithoutNotify(item props.Kind, count int) {
	inv.forceSet(item, count, false)
}

func (inv *Inventory) forceSet(item props.Kind, count int, notify bool) {
	if count < 0 {
		panic(fmt.Sprintf("inventory: ForceSet: count must be >= 0, got %d", count))
	}
	prev := inv.unclaimed[item]
	if count == 0 {
		delete(inv.unclaimed, item)
	} else {
		inv.unclaimed[item] = count
	}
	delta := inv.bulk(item) * int64(count-prev)
	inv.storedBulk += delta
	inv.availableCapacity -= delta
	inv.clamp()
	if notify {
		inv.notify(Change{Kind: ChangeForced, Item: item, Count: count})
	}
}

// TryTake reserves stock under a new claim handle. The units move from
// unclaimed to claimed and stay there until Commit or Release. Shortfall
// returns (InvalidHandle, false) and accumulates take pressure.
func (inv *Inventory) TryTake(item props.Kind, count int) (handle int64, ok bool) {
	mustPositive("TryTake", count)
	if inv.unclaimed[item] < count {
		inv.flow(item).Pressure += int64(count)
		return InvalidHandle, false
	}
	inv.unclaimed[item] -= count
	if inv.unclaimed[item] == 0 {
		delete(inv.unclaimed, item)
	}
	inv.claimed[item] += count
	inv.nextHandle++
	handle = inv.nextHandle
	inv.claims[handle] = props.Count{Kind: item, N: count}
	inv.notify(Change{Kind: ChangeClaimed, Item: item, Count: count, Handle: handle})
	return handle, true
}

// TryTakeImmediately is a take with no reservation window: reserve then
// commit in one call.
func (inv *Inventory) TryTakeImmediately(item props.Kind, count int) bool {
	h, ok := inv.TryTake(item, count)
	if !ok {
		return false
	}
	inv.Commit(h)
	return true
}

// Commit consumes a reservation: the claimed units leave the inventory and
// their capacity is returned. A claimed count going negative means the ledger
// itself is corrupt, which is a fatal logic error rather than a recoverable
// condition.
func (inv *Inventory) Commit(handle int64) {
	c, ok := inv.claims[handle]
	if !ok {
		inv.warn("inventory: commit unknown handle %d", handle)
		return
	}
	delete(inv.claims, handle)
	inv.claimed[c.Kind] -= c.N
	if inv.claimed[c.Kind] < 0 {
		panic(fmt.Sprintf("inventory: claimed[%s] went negative on commit of handle %d", c.Kind, handle))
	}
	if inv.claimed[c.Kind] == 0 {
		delete(inv.claimed, c.Kind)
	}
	freed := inv.bulk(c.Kind) * int64(c.N)
	inv.storedBulk -= freed
	inv.availableCapacity += freed
	inv.clamp()
	inv.flow(c.Kind).FlowOut += int64(c.N)
	inv.notify(Change{Kind: ChangeCommitted, Item: c.Kind, Count: c.N, Handle: handle})
}

// Release cancels a reservation, returning the units to unclaimed stock.
// Unknown handles warn and no-op.
func (inv *Inventory) Release(handle int64) {
	c, ok := inv.claims[handle]
	if !ok {
		inv.warn("inventory: release unknown handle %d", handle)
		return
	}
	delete(inv.claims, handle)
	inv.claimed[c.Kind] -= c.N
	if inv.claimed[c.Kind] < 0 {
		panic(fmt.Sprintf("inventory: claimed[%s] went negative on release of handle %d", c.Kind, handle))
	}
	if inv.claimed[c.Kind] == 0 {
		delete(inv.claimed, c.Kind)
	}
	inv.unclaimed[c.Kind] += c.N
	inv.notify(Change{Kind: ChangeReleased, Item: c.Kind, Count: c.N, Handle: handle})
}

// ReleaseAll cancels every outstanding reservation. Called when the owning
// actor is removed so reservations cannot leak past their owner.
func (inv *Inventory) ReleaseAll() {
	for h := range inv.claims {
		inv.Release(h)
	}
}

// TryPartialCommit consumes count units of a larger reservation, shrinking the
// claim and reporting the remainder still held. Committing the full amount (or
// more) behaves exactly like Commit.
func (inv *Inventory) TryPartialCommit(handle int64, count int) (remaining int, ok bool) {
	mustPositive("TryPartialCommit", count)
	c, found := inv.claims[handle]
	if !found {
		inv.warn("inventory: partial commit unknown handle %d", handle)
		return 0, false
	}
	if count >= c.N {
		inv.Commit(handle)
		return 0, true
	}
	inv.claims[handle] = props.Count{Kind: c.Kind, N: c.N - count}
	inv.claimed[c.Kind] -= count
	freed := inv.bulk(c.Kind) * int64(count)
	inv.storedBulk -= freed
	inv.availableCapacity += freed
	inv.clamp()
	inv.flow(c.Kind).FlowOut += int64(count)
	inv.notify(Change{Kind: ChangeCommitted, Item: c.Kind, Count: count, Handle: handle})
	return c.N - count, true
}
