package director

import "sort"

// Stats is the read-only diagnostic view of the scheduler, intended for
// inspectors and the read-model index. It is not part of the functional
// contract.
type Stats struct {
	Scheduled  int            `json:"scheduled"`
	Claimed    int            `json:"claimed"`
	RoleQueue  [NumRoles]int  `json:"role_queue"`
	ActorQueue map[string]int `json:"actor_queue,omitempty"`
}

func (d *Director) StatsSnapshot() Stats {
	s := Stats{
		Scheduled: len(d.keyToPerf),
		Claimed:   len(d.perfToActor),
	}
	for role := 0; role < NumRoles; role++ {
		if q := d.roleQueues[role]; q != nil {
			s.RoleQueue[role] = q.Len()
		}
	}
	if len(d.actorQueues) > 0 {
		s.ActorQueue = map[string]int{}
		for id, q := range d.actorQueues {
			s.ActorQueue[id] = q.Len()
		}
	}
	return s
}

// ScheduledKeys lists all live keys in sorted order.
func (d *Director) ScheduledKeys() []string {
	keys := make([]string, 0, len(d.keyToPerf))
	for k := range d.keyToPerf {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
