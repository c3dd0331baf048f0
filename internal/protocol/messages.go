package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorName       string `json:"actor_name"`
	// Roles is the role bitset the actor claims from; 0 means every role.
	Roles uint32 `json:"roles,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ActorID         string      `json:"actor_id"`
	SessionID       string      `json:"session_id"`
	StageParams     StageParams `json:"stage_params"`
	PropsDigest     string      `json:"props_digest,omitempty"`
}

type StageParams struct {
	TickRateHz    int     `json:"tick_rate_hz"`
	Seed          int64   `json:"seed"`
	ActorCapacity int64   `json:"actor_capacity"`
	DistanceTol   float64 `json:"distance_tol"`
	VerticalTol   float64 `json:"vertical_tol"`
	AngleTolDeg   float64 `json:"angle_tol_deg"`
}

// ACT (client -> server): a batch of instants executed on the next tick.
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	ActorID         string       `json:"actor_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
}

// Instant types.
const (
	InstantSchedule = "SCHEDULE"
	InstantCancel   = "CANCEL"
	InstantClaim    = "CLAIM"
	InstantMove     = "MOVE"
	InstantPut      = "PUT"
	InstantTake     = "TAKE"
	InstantFind     = "FIND"
)

// InstantReq is one instant request. Fields beyond ID/Type are
// discriminated by Type.
type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// SCHEDULE / CANCEL
	Key      string     `json:"key,omitempty"`
	Priority int        `json:"priority,omitempty"`
	Roles    uint32     `json:"roles,omitempty"` // roles the work is visible to; 0 = all
	ForActor string     `json:"for_actor,omitempty"`
	Retry    bool       `json:"retry,omitempty"` // requeue instead of delete on failure
	Steps    []StepSpec `json:"steps,omitempty"`

	// MOVE
	Pos [3]float64 `json:"pos,omitempty"`
	Yaw float64    `json:"yaw,omitempty"`

	// PUT / TAKE
	Item  string `json:"item,omitempty"`
	Count int    `json:"count,omitempty"`
}

// StepSpec is the declarative wire form of one gesture.
type StepSpec struct {
	Pose       *PoseSpec `json:"pose,omitempty"`
	Item       string    `json:"item,omitempty"`
	Count      int       `json:"count,omitempty"`
	DurationS  float64   `json:"duration_s,omitempty"`
	TimeoutS   float64   `json:"timeout_s,omitempty"`
	TickEveryS float64   `json:"tick_every_s,omitempty"`
}

type PoseSpec struct {
	Pos [3]float64 `json:"pos"`
	Yaw *float64   `json:"yaw,omitempty"`
}

// OBS (server -> client)
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	ActorID         string `json:"actor_id"`

	Self        SelfObs         `json:"self"`
	Inventory   []ItemStack     `json:"inventory"`
	Performance *PerformanceObs `json:"performance,omitempty"`
	Events      []Event         `json:"events"`
}

type SelfObs struct {
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`
	Roles uint32     `json:"roles"`
}

type ItemStack struct {
	Item    string `json:"item"`
	Count   int    `json:"count"`
	Claimed int    `json:"claimed,omitempty"`
}

// PerformanceObs describes the actor's claimed performance, if any.
type PerformanceObs struct {
	Key          string    `json:"key"`
	Phase        string    `json:"phase"`
	GestureIndex int       `json:"gesture_index"`
	GestureCount int       `json:"gesture_count"`
	NextPose     *PoseSpec `json:"next_pose,omitempty"`
}

type Event map[string]interface{}
