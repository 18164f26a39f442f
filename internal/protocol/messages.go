package protocol

import "encoding/json"

// HELLO (client -> server). Editors send it on /v1/ws; bridge clients
// send it on the receiver's /v1/bridge with ClientName set.
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	ClientName        string   `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SelectedVersion string         `json:"selected_version,omitempty"`
	SessionID       string         `json:"session_id"`
	Catalogs        CatalogDigests `json:"catalogs,omitempty"`
}

type CatalogDigests struct {
	BlocksDigest  string `json:"blocks_digest,omitempty"`
	BlockCount    int    `json:"block_count,omitempty"`
	ToolboxDigest string `json:"toolbox_digest,omitempty"`
}

// WORKSPACE (editor -> server): the whole serialized workspace after a change.
type WorkspaceMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Workspace       json.RawMessage `json:"workspace"`
}

// RUN, TOGGLE_CODE, SAVE_CODE (editor -> server) carry no payload.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// CODE (server -> editor)
type CodeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Display         string `json:"display"`
	Visible         bool   `json:"visible"`
	ToggleLabel     string `json:"toggle_label"`
}

// NOTICE (server -> editor): a user-facing confirmation.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// RECEIVE_CODE (bridge client -> receiver)
type ReceiveCodeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SubmissionID    string `json:"submission_id"`
	Code            string `json:"code"`
}

// ACK (receiver -> bridge client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SubmissionID    string `json:"submission_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
