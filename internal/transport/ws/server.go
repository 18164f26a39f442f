// Package ws serves the editor session protocol and the bridge receiver
// over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roboblocks/internal/bridge"
	"roboblocks/internal/emit"
	"roboblocks/internal/program"
	"roboblocks/internal/protocol"
	"roboblocks/internal/session"
)

type ServerConfig struct {
	Emitter  *emit.Emitter
	Bridge   bridge.Bridge
	Catalogs protocol.CatalogDigests
}

// Server runs one editor session per connection. Each session is driven
// serially by its connection's read loop.
type Server struct {
	cfg ServerConfig
	log *log.Logger

	upgrader websocket.Upgrader

	// Live connections, closed by Shutdown.
	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
	wg      sync.WaitGroup

	active   atomic.Int64
	sessions atomic.Uint64
	messages atomic.Uint64
	failures atomic.Uint64
}

type Stats struct {
	ActiveSessions int64  `json:"active_sessions"`
	SessionsTotal  uint64 `json:"sessions_total"`
	MessagesTotal  uint64 `json:"messages_total"`
	ErrorsTotal    uint64 `json:"errors_total"`
}

func NewServer(cfg ServerConfig, logger *log.Logger) *Server {
	if cfg.Emitter == nil {
		cfg.Emitter = emit.New(nil)
	}
	return &Server{
		cfg:   cfg,
		log:   logger,
		conns: map[*websocket.Conn]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		ActiveSessions: s.active.Load(),
		SessionsTotal:  s.sessions.Load(),
		MessagesTotal:  s.messages.Load(),
		ErrorsTotal:    s.failures.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if !s.track(conn) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
			return
		}
		defer s.untrack(conn)

		sessionID, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.active.Add(1)
		s.sessions.Add(1)
		defer s.active.Add(-1)

		sess := session.New(sessionID, s.cfg.Emitter, s.cfg.Bridge, s.log)
		out := make(chan []byte, 16)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.messages.Add(1)
			for _, reply := range s.dispatch(ctx, sess, msg) {
				b, err := json.Marshal(reply)
				if err != nil {
					continue
				}
				select {
				case out <- b:
				case <-ctx.Done():
				}
			}
		}
		if s.log != nil {
			s.log.Printf("editor session %s closed", sessionID)
		}
	}
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown refuses new sessions, closes the live ones and waits for their
// handlers to return. http.Server.Shutdown does not track hijacked
// connections, so call this after it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch applies one editor message to sess and returns the replies.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, msg []byte) []any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.fail(protocol.ErrProtoBadRequest, "malformed message")
	}
	if !protocol.IsSupportedVersion(base.ProtocolVersion) {
		return s.fail(protocol.ErrProtoVersion, "unsupported protocol_version "+base.ProtocolVersion)
	}

	switch base.Type {
	case protocol.TypeWorkspace:
		var m protocol.WorkspaceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.fail(protocol.ErrProtoBadRequest, "bad WORKSPACE")
		}
		doc, err := program.Decode(m.Workspace)
		if err != nil {
			return s.fail(protocol.ErrBadWorkspace, err.Error())
		}
		view, refreshed, err := sess.Changed(doc)
		if err != nil {
			return s.emitFailure(err)
		}
		if !refreshed {
			return nil
		}
		return []any{codeMsg(view)}

	case protocol.TypeToggleCode:
		view, err := sess.ToggleCode()
		if err != nil {
			return s.emitFailure(err)
		}
		return []any{codeMsg(view)}

	case protocol.TypeRun, protocol.TypeSaveCode:
		ctx = bridge.WithSubmissionID(ctx, uuid.NewString())
		var out session.Outcome
		if base.Type == protocol.TypeRun {
			out, err = sess.Run(ctx)
		} else {
			out, err = sess.SaveCode(ctx)
		}
		if err != nil {
			return s.emitFailure(err)
		}
		if out.Notice == "" {
			return nil
		}
		return []any{protocol.NoticeMsg{Type: protocol.TypeNotice, ProtocolVersion: protocol.Version, Text: out.Notice}}

	case protocol.TypeHello:
		return s.fail(protocol.ErrProtoBadRequest, "duplicate HELLO")
	default:
		return s.fail(protocol.ErrProtoBadRequest, "unknown message type "+base.Type)
	}
}

func (s *Server) emitFailure(err error) []any {
	switch {
	case errors.Is(err, session.ErrBridge):
		return s.fail(protocol.ErrBridge, err.Error())
	case errors.Is(err, emit.ErrUnknownKind), errors.Is(err, emit.ErrNotStatement):
		return s.fail(protocol.ErrUnknownBlock, err.Error())
	default:
		return s.fail(protocol.ErrInternal, err.Error())
	}
}

func (s *Server) fail(code, message string) []any {
	s.failures.Add(1)
	return []any{protocol.NewError(code, message)}
}

func codeMsg(v session.CodeView) protocol.CodeMsg {
	return protocol.CodeMsg{
		Type:            protocol.TypeCode,
		ProtocolVersion: protocol.Version,
		Code:            v.Code,
		Display:         v.Display,
		Visible:         v.Visible,
		ToggleLabel:     v.ToggleLabel,
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, ok bool) {
	hello, ok := readHello(conn)
	if !ok {
		return "", false
	}
	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SelectedVersion: protocol.Version,
		SessionID:       sessionID,
		Catalogs:        s.cfg.Catalogs,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	if s.log != nil {
		s.log.Printf("editor session %s opened client=%q", sessionID, hello.ClientName)
	}
	return sessionID, true
}

// readHello waits for the client's HELLO. A wrong first message or
// unsupported version gets an ERROR and a policy-violation close.
func readHello(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return hello, false
	}
	if !helloVersionOK(hello) {
		reject(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return hello, false
	}
	return hello, true
}

func helloVersionOK(h protocol.HelloMsg) bool {
	if h.ProtocolVersion == protocol.Version {
		return true
	}
	for _, v := range h.SupportedVersions {
		if v == protocol.Version {
			return true
		}
	}
	return false
}

func reject(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.NewError(code, message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
