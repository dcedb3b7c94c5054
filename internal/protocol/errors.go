package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrUnknownMethod   = "E_UNKNOWN_METHOD"

	// Simulator layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownObject = "E_UNKNOWN_OBJECT"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrBlocked       = "E_BLOCKED"
	ErrBusy          = "E_BUSY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrUnknownMethod:   {},
	ErrBadRequest:      {},
	ErrUnknownObject:   {},
	ErrInvalidTarget:   {},
	ErrBlocked:         {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
