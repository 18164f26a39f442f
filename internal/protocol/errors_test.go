package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrProtoVersion,
		ErrBadWorkspace,
		ErrUnknownBlock,
		ErrBridge,
		ErrUnavailable,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"RUN","protocol_version":"1.0"}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if m.Type != TypeRun || !IsSupportedVersion(m.ProtocolVersion) {
		t.Fatalf("base=%+v", m)
	}
	if IsSupportedVersion("0.9") {
		t.Fatalf("expected 0.9 unsupported")
	}
}
