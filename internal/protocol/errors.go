package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrProtoUnsupported = "E_PROTO_UNSUPPORTED"

	// World routing/state.
	ErrWorldBusy     = "E_WORLD_BUSY"
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"
	ErrWorldDenied   = "E_WORLD_DENIED"

	// Command/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNotFound      = "E_NOT_FOUND"
	ErrBlocked       = "E_BLOCKED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoUnsupported: {},
	ErrWorldBusy:        {},
	ErrWorldNotFound:    {},
	ErrWorldDenied:      {},
	ErrBadRequest:       {},
	ErrNoPermission:     {},
	ErrInvalidTarget:    {},
	ErrNotFound:         {},
	ErrBlocked:          {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
