package props

// Kind is an opaque resource-kind identifier (e.g. "PLANK", "WATER_BUCKET").
// Kinds classify resources; individual instances are never tracked, only
// quantities per kind.
type Kind string

// Count pairs a kind with a non-negative quantity. Value equality is the
// identity used throughout the scheduling core.
type Count struct {
	Kind Kind `json:"kind"`
	N    int  `json:"n"`
}

func Of(kind Kind, n int) Count {
	return Count{Kind: kind, N: n}
}
