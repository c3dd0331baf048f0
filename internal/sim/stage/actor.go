package stage

import (
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/director"
	"stagecraft.ai/internal/sim/inventory"
	"stagecraft.ai/internal/sim/performance"
	"stagecraft.ai/internal/sim/pose"
)

// Actor is one performer on the stage. It satisfies both the gesture actor
// and the director actor contracts.
type Actor struct {
	id        string
	Name      string
	SessionID string
	roles     director.RoleMask

	Pose pose.Pose
	inv  *inventory.Inventory

	// run is the in-flight execution of the claimed performance, nil when
	// the actor holds no claim.
	run *performance.Run

	Events []protocol.Event

	rl map[string]*rateWindow
}

type rateWindow struct {
	StartTick uint64
	Count     int
	Window    uint64
	Max       int
}

func (s *Stage) newActor(id, name string, roles uint32) *Actor {
	return &Actor{
		id:    id,
		Name:  name,
		roles: director.RoleMask(roles),
		inv:   inventory.New(s.cfg.ActorCapacity, s.catalog.Bulk),
	}
}

func (a *Actor) ID() string                      { return a.id }
func (a *Actor) CurrentPose() pose.Pose          { return a.Pose }
func (a *Actor) Inventory() *inventory.Inventory { return a.inv }
func (a *Actor) Roles() director.RoleMask        { return a.roles }

func (a *Actor) AddEvent(ev protocol.Event) {
	a.Events = append(a.Events, ev)
	if len(a.Events) > 64 {
		a.Events = a.Events[len(a.Events)-64:]
	}
}

// allowRate checks and advances a per-actor sliding window. Window/max <= 0
// means unlimited.
func (a *Actor) allowRate(kind string, nowTick uint64, window uint64, max int) bool {
	if window == 0 || max <= 0 {
		return true
	}
	if a.rl == nil {
		a.rl = map[string]*rateWindow{}
	}
	w := a.rl[kind]
	if w == nil || nowTick-w.StartTick >= w.Window {
		a.rl[kind] = &rateWindow{StartTick: nowTick, Window: window, Max: max, Count: 1}
		return true
	}
	if w.Count >= w.Max {
		return false
	}
	w.Count++
	return true
}
