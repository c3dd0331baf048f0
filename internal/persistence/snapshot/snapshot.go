package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"stagecraft.ai/internal/sim/inventory"
)

type Header struct {
	Version int    `json:"version"`
	StageID string `json:"stage_id"`
	Tick    uint64 `json:"tick"`
}

// StageV1 is the full resumable state of a stage. Claimed performances are
// persisted as their wire-form schedules; on import they are re-enqueued
// unclaimed, so a resume never resurrects a half-run gesture.
type StageV1 struct {
	Header Header `json:"header"`

	Seed          int64 `json:"seed"`
	TickRate      int   `json:"tick_rate_hz"`
	ActorCapacity int64 `json:"actor_capacity"`

	SnapshotEveryTicks int    `json:"snapshot_every_ticks,omitempty"`
	PropsDigest        string `json:"props_digest,omitempty"`

	DistanceTol float64 `json:"distance_tol,omitempty"`
	VerticalTol float64 `json:"vertical_tol,omitempty"`
	AngleTolDeg float64 `json:"angle_tol_deg,omitempty"`

	Actors    []ActorV1    `json:"actors"`
	Schedules []ScheduleV1 `json:"schedules"`

	Counters CountersV1 `json:"counters"`
}

type ActorV1 struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Roles     uint32            `json:"roles"`
	Pos       [3]float64        `json:"pos"`
	Yaw       float64           `json:"yaw"`
	Inventory inventory.Memento `json:"inventory"`
}

// ScheduleV1 records one scheduled performance in wire form so that a fresh
// process can recompile its gestures.
type ScheduleV1 struct {
	Key      string   `json:"key"`
	Priority int      `json:"priority"`
	Roles    uint32   `json:"roles,omitempty"`
	ForActor string   `json:"for_actor,omitempty"`
	Retry    bool     `json:"retry,omitempty"`
	Owner    string   `json:"owner,omitempty"`
	Steps    []StepV1 `json:"steps"`
}

type StepV1 struct {
	Pos        *[3]float64 `json:"pos,omitempty"`
	Yaw        *float64    `json:"yaw,omitempty"`
	Item       string      `json:"item,omitempty"`
	Count      int         `json:"count,omitempty"`
	DurationS  float64     `json:"duration_s,omitempty"`
	TimeoutS   float64     `json:"timeout_s,omitempty"`
	TickEveryS float64     `json:"tick_every_s,omitempty"`
}

type CountersV1 struct {
	NextActor uint64 `json:"next_actor"`
}

func WriteSnapshot(path string, snap StageV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (StageV1, error) {
	var snap StageV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Read header line (ignore it for now, gob also contains header).
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// FindLatest returns the highest-tick snapshot under dir, or "" if none.
func FindLatest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
