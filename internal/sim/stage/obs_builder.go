package stage

import (
	"sort"

	"stagecraft.ai/internal/protocol"
)

func (s *Stage) buildObs(a *Actor, nowTick uint64) protocol.ObsMsg {
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		ActorID:         a.ID(),
		Self: protocol.SelfObs{
			Pos:   [3]float64{a.Pose.Pos.X, a.Pose.Pos.Y, a.Pose.Pos.Z},
			Yaw:   a.Pose.Yaw,
			Roles: uint32(a.roles),
		},
		Inventory: buildInventoryObs(a),
		Events:    append([]protocol.Event(nil), a.Events...),
	}
	if obs.Events == nil {
		obs.Events = []protocol.Event{}
	}
	if a.run != nil {
		obs.Performance = s.buildPerformanceObs(a)
	}
	return obs
}

func buildInventoryObs(a *Actor) []protocol.ItemStack {
	inv := a.Inventory()
	kinds := inv.Kinds()
	stacks := make([]protocol.ItemStack, 0, len(kinds))
	for _, k := range kinds {
		stacks = append(stacks, protocol.ItemStack{
			Item:    string(k),
			Count:   inv.GetAvailableCount(k),
			Claimed: inv.ClaimedCount(k),
		})
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].Item < stacks[j].Item })
	return stacks
}

func (s *Stage) buildPerformanceObs(a *Actor) *protocol.PerformanceObs {
	p, ok := s.dir.ClaimedBy(a.ID())
	if !ok {
		return nil
	}
	key, _ := s.dir.GetKey(p)
	po := &protocol.PerformanceObs{
		Key:          key,
		Phase:        string(p.Phase()),
		GestureIndex: -1,
		GestureCount: p.GestureCount(),
	}
	if g, idx, ok := a.run.Current(); ok {
		po.GestureIndex = idx
		if rp, has := g.RequiredPose(); has {
			spec := &protocol.PoseSpec{Pos: [3]float64{rp.Pos.X, rp.Pos.Y, rp.Pos.Z}}
			if rp.HasYaw {
				yaw := rp.Yaw
				spec.Yaw = &yaw
			}
			po.NextPose = spec
		}
	}
	return po
}
