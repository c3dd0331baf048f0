package stage

import (
	"sync/atomic"

	"stagecraft.ai/internal/persistence/snapshot"
	"stagecraft.ai/internal/protocol"
	"stagecraft.ai/internal/sim/director"
	"stagecraft.ai/internal/sim/pose"
	"stagecraft.ai/internal/sim/props"
)

type Config struct {
	ID         string
	TickRateHz int
	Seed       int64

	// ActorCapacity is the inventory bulk capacity each actor starts with.
	ActorCapacity int64

	DistanceTol float64
	VerticalTol float64
	AngleTolDeg float64

	// DefaultTimeoutS applies to scheduled steps that carry no timeout.
	DefaultTimeoutS  float64
	MaxStepsPerSched int

	SnapshotEveryTicks int

	RateLimits RateLimitConfig
}

type RateLimitConfig struct {
	ScheduleWindowTicks int
	ScheduleMax         int
	InstantWindowTicks  int
	InstantMax          int
}

type JoinRequest struct {
	Name  string
	Roles uint32
	Out   chan []byte
	Resp  chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type ActionEnvelope struct {
	ActorID string
	Act     protocol.ActMsg
}

type RecordedJoin struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
}

type RecordedAction struct {
	ActorID string          `json:"actor_id"`
	Act     protocol.ActMsg `json:"act"`
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Joins   []RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string         `json:"leaves,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Digest  string           `json:"digest"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "SCHEDULE", "CLAIM", "PERF_COMPLETE"
	Key     string         `json:"key,omitempty"`
	Item    string         `json:"item,omitempty"`
	Count   int            `json:"count,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type clientState struct {
	Out chan []byte
}

// scheduleRecord keeps the wire form of a schedule so it can be rebuilt on
// resume. Owner is the actor a private schedule was pinned to.
type scheduleRecord struct {
	Key      string
	Priority int
	Roles    uint32
	ForActor string
	Retry    bool
	Owner    string
	Steps    []protocol.StepSpec
}

// Stage is a single-threaded authoritative simulation.
// All state must be accessed only from the stage loop goroutine.
type Stage struct {
	cfg      Config
	catalog  *props.Catalog
	comparer pose.Comparer

	tick atomic.Uint64

	actors  map[string]*Actor
	clients map[string]*clientState

	dir       *director.Director
	schedules map[string]*scheduleRecord

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	nextActorNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.StageV1

	lastStepMS float64
}

func New(cfg Config, catalog *props.Catalog) (*Stage, error) {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 10
	}
	if cfg.ActorCapacity <= 0 {
		cfg.ActorCapacity = 100
	}
	if cfg.MaxStepsPerSched <= 0 {
		cfg.MaxStepsPerSched = 16
	}
	cmp := pose.Comparer{
		DistanceTol: cfg.DistanceTol,
		VerticalTol: cfg.VerticalTol,
		AngleTolDeg: cfg.AngleTolDeg,
	}
	if cmp.DistanceTol <= 0 {
		cmp = pose.DefaultComparer()
	}
	s := &Stage{
		cfg:       cfg,
		catalog:   catalog,
		comparer:  cmp,
		actors:    map[string]*Actor{},
		clients:   map[string]*clientState{},
		dir:       director.New(),
		schedules: map[string]*scheduleRecord{},
		inbox:     make(chan ActionEnvelope, 1024),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		stop:      make(chan struct{}),
	}
	return s, nil
}

func (s *Stage) SetTickLogger(l TickLogger)                 { s.tickLogger = l }
func (s *Stage) SetAuditLogger(l AuditLogger)               { s.auditLogger = l }
func (s *Stage) SetSnapshotSink(ch chan<- snapshot.StageV1) { s.snapshotSink = ch }
func (s *Stage) CurrentTick() uint64                        { return s.tick.Load() }
func (s *Stage) ID() string                                 { return s.cfg.ID }
func (s *Stage) TickRateHz() int                            { return s.cfg.TickRateHz }
func (s *Stage) PropsDigest() string {
	if s.catalog == nil {
		return ""
	}
	return s.catalog.Digest
}

// Join, Leave and Submit are the transport-facing entry points. They hand
// work to the loop goroutine; none of them touch stage state directly.
func (s *Stage) Join(req JoinRequest) { s.join <- req }
func (s *Stage) Leave(actorID string) { s.leave <- actorID }
func (s *Stage) Submit(env ActionEnvelope) {
	select {
	case s.inbox <- env:
	default:
		// Shed load rather than stall the transport; the client will observe
		// the missing effects in its next OBS.
	}
}

func (s *Stage) audit(entry AuditEntry) {
	if s.auditLogger == nil {
		return
	}
	_ = s.auditLogger.WriteAudit(entry)
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

type Metrics struct {
	Tick        uint64      `json:"tick"`
	Actors      int         `json:"actors"`
	Clients     int         `json:"clients"`
	Scheduled   int         `json:"scheduled"`
	Claimed     int         `json:"claimed"`
	StepMS      float64     `json:"step_ms"`
	QueueDepths QueueDepths `json:"queue_depths"`
}

// MetricsSnapshot is safe to call from outside the loop goroutine only for
// the channel depths and tick; the remaining gauges are best-effort reads.
func (s *Stage) MetricsSnapshot() Metrics {
	stats := s.dir.StatsSnapshot()
	return Metrics{
		Tick:      s.tick.Load(),
		Actors:    len(s.actors),
		Clients:   len(s.clients),
		Scheduled: stats.Scheduled,
		Claimed:   stats.Claimed,
		StepMS:    s.lastStepMS,
		QueueDepths: QueueDepths{
			Inbox: len(s.inbox),
			Join:  len(s.join),
			Leave: len(s.leave),
		},
	}
}
