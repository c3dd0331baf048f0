package stage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// stateDigest hashes the authoritative stage state: actors with their poses
// and ledgers, plus the schedule table. Diagnostic state (flows, events,
// rate windows) is excluded so a resumed stage digests identically.
func (s *Stage) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(s.cfg.Seed))

	ids := make([]string, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	digestWriteU64(h, &tmp, uint64(len(ids)))
	for _, id := range ids {
		a := s.actors[id]
		h.Write([]byte(id))
		h.Write([]byte(a.Name))
		digestWriteU64(h, &tmp, uint64(a.roles))
		digestWriteF64(h, &tmp, a.Pose.Pos.X)
		digestWriteF64(h, &tmp, a.Pose.Pos.Y)
		digestWriteF64(h, &tmp, a.Pose.Pos.Z)
		digestWriteF64(h, &tmp, a.Pose.Yaw)

		m := a.inv.Memento()
		digestWriteU64(h, &tmp, uint64(m.TotalCapacity))
		for _, c := range m.Unclaimed {
			h.Write([]byte(c.Kind))
			digestWriteU64(h, &tmp, uint64(c.N))
		}
		for _, cl := range m.Claims {
			digestWriteU64(h, &tmp, uint64(cl.Handle))
			h.Write([]byte(cl.Count.Kind))
			digestWriteU64(h, &tmp, uint64(cl.Count.N))
		}
	}

	keys := make([]string, 0, len(s.schedules))
	for k := range s.schedules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	digestWriteU64(h, &tmp, uint64(len(keys)))
	for _, k := range keys {
		rec := s.schedules[k]
		h.Write([]byte(k))
		digestWriteU64(h, &tmp, uint64(rec.Priority))
		digestWriteU64(h, &tmp, uint64(rec.Roles))
		h.Write([]byte(rec.ForActor))
		digestWriteU64(h, &tmp, uint64(len(rec.Steps)))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
