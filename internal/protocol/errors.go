package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Voxel core.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownTarget = "E_UNKNOWN_TARGET"
	ErrUnknownSource = "E_UNKNOWN_SOURCE"
	ErrDuplicate     = "E_DUPLICATE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownTarget:   {},
	ErrUnknownSource:   {},
	ErrDuplicate:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
