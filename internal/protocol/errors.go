package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Program layer.
	ErrBadWorkspace = "E_BAD_WORKSPACE"
	ErrUnknownBlock = "E_UNKNOWN_BLOCK"

	// Bridge handoff.
	ErrBridge      = "E_BRIDGE"
	ErrUnavailable = "E_UNAVAILABLE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadWorkspace:    {},
	ErrUnknownBlock:    {},
	ErrBridge:          {},
	ErrUnavailable:     {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
