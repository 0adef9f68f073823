package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request/accept layer.
	ErrAlreadyTrading   = "E_ALREADY_TRADING"
	ErrAlreadyRequested = "E_ALREADY_REQUESTED"
	ErrNoSuchRequest    = "E_NO_SUCH_REQUEST"

	// Session layer.
	ErrInvalidState = "E_INVALID_STATE"
	ErrEmptySlot    = "E_EMPTY_SLOT"
	ErrEscrowFull   = "E_ESCROW_FULL"
	ErrNoResource   = "E_NO_RESOURCE"

	// Generic.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrAlreadyTrading:   {},
	ErrAlreadyRequested: {},
	ErrNoSuchRequest:    {},
	ErrInvalidState:     {},
	ErrEmptySlot:        {},
	ErrEscrowFull:       {},
	ErrNoResource:       {},
	ErrBadRequest:       {},
	ErrInvalidTarget:    {},
	ErrRateLimit:        {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
