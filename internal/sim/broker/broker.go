// Package broker answers "who can supply prop X" queries and turns discovery
// into inventory reservations. Brokers compose: a broker is itself a
// provider, so discovery can recurse through nested supply pools.
package broker

import (
	"stagecraft.ai/internal/sim/inventory"
	"stagecraft.ai/internal/sim/props"
)

// Provider is anything that can report and reserve stock of a kind.
type Provider interface {
	Available(kind props.Kind) int
	// Reserve opens a two-phase-commit claim for n units. A false return
	// means the provider cannot supply that many right now.
	Reserve(kind props.Kind, n int) (*Claim, bool)
}

// Claim is a reference-type handle over one inventory reservation. It owns
// its completion callbacks; copies share the same underlying reservation
// state, so observer wiring cannot diverge.
type Claim struct {
	inv    *inventory.Inventory
	handle int64
	count  props.Count
	done   bool

	onCommitted func(props.Count)
	onReleased  func(props.Count)
}

func (c *Claim) Count() props.Count { return c.count }

// Settled reports whether the claim has been committed or released.
func (c *Claim) Settled() bool { return c.done }

// OnCommitted installs the commit observer, replacing any previous one.
func (c *Claim) OnCommitted(fn func(props.Count)) { c.onCommitted = fn }

// OnReleased installs the release observer, replacing any previous one.
func (c *Claim) OnReleased(fn func(props.Count)) { c.onReleased = fn }

// Commit consumes the reservation. Idempotent once settled.
func (c *Claim) Commit() {
	if c.done {
		return
	}
	c.done = true
	c.inv.Commit(c.handle)
	if c.onCommitted != nil {
		c.onCommitted(c.count)
	}
}

// Release cancels the reservation, returning stock. Idempotent once settled.
func (c *Claim) Release() {
	if c.done {
		return
	}
	c.done = true
	c.inv.Release(c.handle)
	if c.onReleased != nil {
		c.onReleased(c.count)
	}
}

// InventoryProvider adapts one inventory into a Provider.
type InventoryProvider struct {
	Inv *inventory.Inventory
}

func (p InventoryProvider) Available(kind props.Kind) int {
	return p.Inv.GetAvailableCount(kind)
}

func (p InventoryProvider) Reserve(kind props.Kind, n int) (*Claim, bool) {
	h, ok := p.Inv.TryTake(kind, n)
	if !ok {
		return nil, false
	}
	return &Claim{inv: p.Inv, handle: h, count: props.Of(kind, n)}, true
}

// Broker fans a query out over its providers in registration order.
type Broker struct {
	providers []Provider
}

func NewBroker(providers ...Provider) *Broker {
	return &Broker{providers: providers}
}

func (b *Broker) Add(p Provider) { b.providers = append(b.providers, p) }

// Available sums stock across all providers.
func (b *Broker) Available(kind props.Kind) int {
	total := 0
	for _, p := range b.providers {
		total += p.Available(kind)
	}
	return total
}

// Reserve takes the whole quantity from the first provider that can supply
// it. Reservations are never split across providers; a partial pool is as
// good as an empty one for a single gesture's requirement.
func (b *Broker) Reserve(kind props.Kind, n int) (*Claim, bool) {
	for _, p := range b.providers {
		if p.Available(kind) < n {
			continue
		}
		if c, ok := p.Reserve(kind, n); ok {
			return c, true
		}
	}
	return nil, false
}

// FindBest returns the provider with the deepest stock of a kind, for
// callers that want to route puts or pick a travel target.
func (b *Broker) FindBest(kind props.Kind) (Provider, bool) {
	var best Provider
	bestN := 0
	for _, p := range b.providers {
		if n := p.Available(kind); n > bestN {
			best, bestN = p, n
		}
	}
	return best, best != nil
}
