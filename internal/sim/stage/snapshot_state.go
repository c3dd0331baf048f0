package stage

import (
	"fmt"
	"sort"

	"stagecraft.ai/internal/persistence/snapshot"
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/director"
	"stagecraft.ai/internal/sim/pose"
)

const snapshotVersion = 1

func (s *Stage) ExportSnapshot(nowTick uint64) snapshot.StageV1 {
	snap := snapshot.StageV1{
		Header: snapshot.Header{
			Version: snapshotVersion,
			StageID: s.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               s.cfg.Seed,
		TickRate:           s.cfg.TickRateHz,
		ActorCapacity:      s.cfg.ActorCapacity,
		SnapshotEveryTicks: s.cfg.SnapshotEveryTicks,
		PropsDigest:        s.PropsDigest(),
		DistanceTol:        s.comparer.DistanceTol,
		VerticalTol:        s.comparer.VerticalTol,
		AngleTolDeg:        s.comparer.AngleTolDeg,
		Counters:           snapshot.CountersV1{NextActor: s.nextActorNum.Load()},
	}

	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := s.actors[id]
		snap.Actors = append(snap.Actors, snapshot.ActorV1{
			ID:        id,
			Name:      a.Name,
			Roles:     uint32(a.roles),
			Pos:       [3]float64{a.Pose.Pos.X, a.Pose.Pos.Y, a.Pose.Pos.Z},
			Yaw:       a.Pose.Yaw,
			Inventory: a.inv.Memento(),
		})
	}

	keys := make([]string, 0, len(s.schedules))
	for k := range s.schedules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec := s.schedules[k]
		sv := snapshot.ScheduleV1{
			Key:      rec.Key,
			Priority: rec.Priority,
			Roles:    rec.Roles,
			ForActor: rec.ForActor,
			Retry:    rec.Retry,
			Owner:    rec.Owner,
		}
		for _, st := range rec.Steps {
			step := snapshot.StepV1{
				Item:       st.Item,
				Count:      st.Count,
				DurationS:  st.DurationS,
				TimeoutS:   st.TimeoutS,
				TickEveryS: st.TickEveryS,
			}
			if st.Pose != nil {
				p := st.Pose.Pos
				step.Pos = &p
				step.Yaw = st.Pose.Yaw
			}
			sv.Steps = append(sv.Steps, step)
		}
		snap.Schedules = append(snap.Schedules, sv)
	}

	return snap
}

// ImportSnapshot rebuilds actors and schedules from a snapshot. Schedules
// re-enter the queues unclaimed: a half-run gesture cannot be resumed, so a
// resume treats every schedule as freshly enqueued.
func (s *Stage) ImportSnapshot(snap snapshot.StageV1) error {
	if snap.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	s.tick.Store(snap.Header.Tick)
	s.nextActorNum.Store(snap.Counters.NextActor)

	for _, av := range snap.Actors {
		a := s.newActor(av.ID, av.Name, av.Roles)
		a.Pose = pose.Facing(pose.Vec3{X: av.Pos[0], Y: av.Pos[1], Z: av.Pos[2]}, av.Yaw)
		a.inv.Restore(av.Inventory)
		s.actors[av.ID] = a
	}

	for _, sv := range snap.Schedules {
		steps := make([]protocol.StepSpec, 0, len(sv.Steps))
		for _, st := range sv.Steps {
			spec := protocol.StepSpec{
				Item:       st.Item,
				Count:      st.Count,
				DurationS:  st.DurationS,
				TimeoutS:   st.TimeoutS,
				TickEveryS: st.TickEveryS,
			}
			if st.Pos != nil {
				spec.Pose = &protocol.PoseSpec{Pos: *st.Pos, Yaw: st.Yaw}
			}
			steps = append(steps, spec)
		}
		if sv.ForActor != "" && s.actors[sv.ForActor] == nil {
			// Pinned actor is gone; the schedule died with it.
			continue
		}
		p, err := s.compilePerformance(steps)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sv.Key, err)
		}
		s.wireStageObservers(p, sv.Key, sv.Retry)
		if sv.ForActor != "" {
			prio := sv.Priority
			fn := func() int { return prio }
			if sv.Retry {
				err = s.dir.ScheduleForWithRetry(sv.Key, p, sv.ForActor, fn)
			} else {
				err = s.dir.ScheduleFor(sv.Key, p, sv.ForActor, fn)
			}
		} else {
			mask := director.RoleMask(sv.Roles)
			prio := sv.Priority
			err = s.dir.Schedule(sv.Key, p, func(role int) int {
				if mask.Has(role) {
					return prio
				}
				return -1
			}, !sv.Retry)
		}
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sv.Key, err)
		}
		s.schedules[sv.Key] = &scheduleRecord{
			Key:      sv.Key,
			Priority: sv.Priority,
			Roles:    sv.Roles,
			ForActor: sv.ForActor,
			Retry:    sv.Retry,
			Owner:    sv.Owner,
			Steps:    steps,
		}
	}
	return nil
}
