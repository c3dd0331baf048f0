package inventory

import (
	"sort"

	"stagecraft.ai/internal/sim/props"
)

// Memento is the snapshot shape of an inventory: stock pairs plus outstanding
// claim records and the capacity fields. Serialization framing is the
// caller's concern (see internal/persistence/snapshot).
type Memento struct {
	TotalCapacity int64         `json:"total_capacity"`
	Unclaimed     []props.Count `json:"unclaimed,omitempty"`
	Claims        []ClaimRecord `json:"claims,omitempty"`
	NextHandle    int64         `json:"next_handle,omitempty"`
}

type ClaimRecord struct {
	Handle int64       `json:"handle"`
	Count  props.Count `json:"count"`
}

// Memento captures the authoritative state. Flows are diagnostic and are not
// persisted.
func (inv *Inventory) Memento() Memento {
	m := Memento{TotalCapacity: inv.totalCapacity, NextHandle: inv.nextHandle}
	for kind, n := range inv.unclaimed {
		m.Unclaimed = append(m.Unclaimed, props.Count{Kind: kind, N: n})
	}
	sort.Slice(m.Unclaimed, func(i, j int) bool { return m.Unclaimed[i].Kind < m.Unclaimed[j].Kind })
	for h, c := range inv.claims {
		m.Claims = append(m.Claims, ClaimRecord{Handle: h, Count: c})
	}
	sort.Slice(m.Claims, func(i, j int) bool { return m.Claims[i].Handle < m.Claims[j].Handle })
	return m
}

// Restore rebuilds state from a memento without notifying observers.
func (inv *Inventory) Restore(m Memento) {
	inv.unclaimed = map[props.Kind]int{}
	inv.claimed = map[props.Kind]int{}
	inv.claims = map[int64]props.Count{}
	inv.totalCapacity = m.TotalCapacity
	inv.storedBulk = 0
	inv.nextHandle = m.NextHandle

	for _, c := range m.Unclaimed {
		if c.N <= 0 {
			continue
		}
		inv.unclaimed[c.Kind] = c.N
		inv.storedBulk += inv.bulk(c.Kind) * int64(c.N)
	}
	for _, cr := range m.Claims {
		if cr.Count.N <= 0 || cr.Handle <= 0 {
			continue
		}
		inv.claims[cr.Handle] = cr.Count
		inv.claimed[cr.Count.Kind] += cr.Count.N
		inv.storedBulk += inv.bulk(cr.Count.Kind) * int64(cr.Count.N)
		if cr.Handle > inv.nextHandle {
			inv.nextHandle = cr.Handle
		}
	}
	inv.availableCapacity = inv.totalCapacity - inv.storedBulk
	inv.clamp()
}
