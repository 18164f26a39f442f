package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"roboblocks/internal/protocol"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "server",
	})
	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "S1",
		Catalogs: protocol.CatalogDigests{BlocksDigest: "deadbeef", BlockCount: 8, ToolboxDigest: "cafe"},
	})
	validate(compile("workspace.schema.json"), protocol.WorkspaceMsg{
		Type: protocol.TypeWorkspace, ProtocolVersion: protocol.Version,
		Workspace: json.RawMessage(`{"blocks":{"languageVersion":0,"blocks":[{"type":"robot_grip"}]}}`),
	})
	validate(compile("code.schema.json"), protocol.CodeMsg{
		Type: protocol.TypeCode, ProtocolVersion: protocol.Version,
		Code: "grip()\n", Display: "grip()\n", Visible: true, ToggleLabel: "Hide Code",
	})
	validate(compile("receive_code.schema.json"), protocol.ReceiveCodeMsg{
		Type: protocol.TypeReceiveCode, ProtocolVersion: protocol.Version, SubmissionID: "sub-1", Code: "",
	})
	validate(compile("ack.schema.json"), protocol.AckMsg{
		Type: protocol.TypeAck, ProtocolVersion: protocol.Version, SubmissionID: "sub-1", OK: true,
	})
	validate(compile("error.schema.json"), protocol.NewError(protocol.ErrBadWorkspace, "bad"))
}

func TestSchemas_RejectMalformed(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "code.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"CODE","protocol_version":"1.0","code":"","display":"","visible":true,"toggle_label":"Toggle"}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected bad toggle label rejected")
	}
}
