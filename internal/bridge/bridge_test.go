package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roboblocks/internal/protocol"
)

func TestFileBridge_WritesExactText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "prog.txt")
	b := NewFileBridge(path)
	if !Available(b) {
		t.Fatalf("file bridge should always be available")
	}
	for _, code := range []string{"grip()\nrelease()\n", "grip()\n", ""} {
		if err := b.ReceiveCode(context.Background(), code); err != nil {
			t.Fatalf("ReceiveCode: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(got) != code {
			t.Fatalf("file=%q want=%q", got, code)
		}
	}
	if NewFileBridge("").Path() != DefaultFilePath {
		t.Fatalf("default path not applied")
	}
}

func TestFileBridge_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewFileBridge(filepath.Join(t.TempDir(), "p.txt")).ReceiveCode(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeBridge struct {
	mu        sync.Mutex
	got       []string
	available bool
	err       error
}

func (f *fakeBridge) ReceiveCode(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, code)
	return f.err
}

func (f *fakeBridge) Available() bool { return f.available }

func TestAvailable(t *testing.T) {
	if Available(nil) {
		t.Fatalf("nil bridge available")
	}
	if Available(&fakeBridge{available: false}) {
		t.Fatalf("unavailable bridge reported available")
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &fakeBridge{available: true}
	down := &fakeBridge{available: false}
	bad := &fakeBridge{available: true, err: errors.New("boom")}

	m := Multi{ok, down, bad}
	if !m.Available() {
		t.Fatalf("multi should be available")
	}
	err := m.ReceiveCode(context.Background(), "grip()\n")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.got) != 1 || len(down.got) != 0 || len(bad.got) != 1 {
		t.Fatalf("fan-out: ok=%v down=%v bad=%v", ok.got, down.got, bad.got)
	}
	if err := (Multi{down}).ReceiveCode(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type recorded struct {
	mu   sync.Mutex
	subs []Submission
}

func (r *recorded) RecordSubmission(s Submission) {
	r.mu.Lock()
	r.subs = append(r.subs, s)
	r.mu.Unlock()
}

func TestRecording_RecordsMetadataOnly(t *testing.T) {
	inner := &fakeBridge{available: true}
	rec := &recorded{}
	r := NewRecording(inner, "file", rec, nil)

	ctx := WithAction(WithSubmissionID(context.Background(), "sub-1"), "save")
	if err := r.ReceiveCode(ctx, "grip()\nrelease()\n"); err != nil {
		t.Fatalf("ReceiveCode: %v", err)
	}
	if len(rec.subs) != 1 {
		t.Fatalf("subs=%+v", rec.subs)
	}
	s := rec.subs[0]
	if s.ID != "sub-1" || s.Action != "save" || s.Bridge != "file" || s.Lines != 2 || s.Bytes != 17 || len(s.Digest) != 64 || s.Err != "" {
		t.Fatalf("submission=%+v", s)
	}

	inner.err = errors.New("nope")
	if err := r.ReceiveCode(context.Background(), ""); err == nil {
		t.Fatalf("expected error passthrough")
	}
	if got := rec.subs[1]; got.ID == "" || got.Err != "nope" {
		t.Fatalf("failed submission=%+v", got)
	}
}

// receiver is a minimal backend: WELCOME after HELLO, ACK per RECEIVE_CODE.
func receiver(t *testing.T, got chan<- protocol.ReceiveCodeMsg) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello protocol.HelloMsg
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeHello {
			return
		}
		_ = conn.WriteJSON(protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "R1"})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m protocol.ReceiveCodeMsg
			if err := json.Unmarshal(raw, &m); err != nil {
				return
			}
			got <- m
			_ = conn.WriteJSON(protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, SubmissionID: m.SubmissionID, OK: true})
		}
	}))
}

func waitAvailable(t *testing.T, b *WSBridge) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !b.Available() {
		if time.Now().After(deadline) {
			t.Fatalf("bridge never connected: %+v", b.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSBridge_DeliversToReceiver(t *testing.T) {
	got := make(chan protocol.ReceiveCodeMsg, 1)
	srv := receiver(t, got)
	defer srv.Close()

	b := NewWSBridge(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	b.Start()
	defer b.Close()
	waitAvailable(t, b)

	ctx := WithSubmissionID(context.Background(), "sub-42")
	if err := b.ReceiveCode(ctx, "move_to(1, 2, 3)\n"); err != nil {
		t.Fatalf("ReceiveCode: %v", err)
	}
	m := <-got
	if m.SubmissionID != "sub-42" || m.Code != "move_to(1, 2, 3)\n" || m.ProtocolVersion != protocol.Version {
		t.Fatalf("receiver got %+v", m)
	}
	st := b.Status()
	if !st.Connected || st.SessionID != "R1" || st.Sent != 1 {
		t.Fatalf("status=%+v", st)
	}
}

func TestWSBridge_UnavailableBeforeConnect(t *testing.T) {
	b := NewWSBridge(WSConfig{URL: "ws://127.0.0.1:1/v1/bridge"}, nil)
	if b.Available() {
		t.Fatalf("available before start")
	}
	if err := b.ReceiveCode(context.Background(), "grip()\n"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	b.Close()
}

func TestWSBridge_ReconnectAfterSessionDropIsQuick(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		dials++
		mu.Unlock()
		var hello protocol.HelloMsg
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		// Welcome, then drop the session straight away.
		_ = conn.WriteJSON(protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "R1"})
	}))
	defer srv.Close()

	b := NewWSBridge(WSConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	b.Start()
	defer b.Close()

	// Five dials need 0.8s when every drop resets the delay and 3s when it keeps doubling.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := dials
		mu.Unlock()
		if n >= 5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d dials in 2s: %+v", n, b.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
