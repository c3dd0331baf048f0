package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Instant/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrNotScheduled  = "E_NOT_SCHEDULED"
	ErrKeyConflict   = "E_KEY_CONFLICT"
	ErrAlreadyClaims = "E_ALREADY_CLAIMED"
	ErrNothingToDo   = "E_NOTHING_TO_DO"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNoResource:      {},
	ErrNotScheduled:    {},
	ErrKeyConflict:     {},
	ErrAlreadyClaims:   {},
	ErrNothingToDo:     {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
