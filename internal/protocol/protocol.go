package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeError   = "ERROR"

	// Editor session.
	TypeWorkspace  = "WORKSPACE"
	TypeRun        = "RUN"
	TypeToggleCode = "TOGGLE_CODE"
	TypeSaveCode   = "SAVE_CODE"
	TypeCode       = "CODE"
	TypeNotice     = "NOTICE"

	// Bridge.
	TypeReceiveCode = "RECEIVE_CODE"
	TypeAck         = "ACK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsSupportedVersion accepts the current version; an empty version is
// treated as current.
func IsSupportedVersion(v string) bool {
	return v == "" || v == Version
}
