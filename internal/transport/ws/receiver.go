package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roboblocks/internal/bridge"
	"roboblocks/internal/protocol"
)

// Receiver is the backend end of the bridge protocol: it accepts
// RECEIVE_CODE messages and hands each program to its sink.
type Receiver struct {
	sink bridge.Bridge
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewReceiver(sink bridge.Bridge, logger *log.Logger) *Receiver {
	return &Receiver{
		sink: sink,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (rc *Receiver) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := rc.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := readHello(conn)
		if !ok {
			return
		}
		sessionID := uuid.NewString()
		if err := writeJSON(conn, protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SelectedVersion: protocol.Version,
			SessionID:       sessionID,
		}); err != nil {
			return
		}
		if rc.log != nil {
			rc.log.Printf("bridge client %q connected session=%s", hello.ClientName, sessionID)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		})
		go ping(ctx, conn)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := rc.handle(ctx, msg)
			if reply == nil {
				continue
			}
			if err := writeJSON(conn, reply); err != nil {
				break
			}
		}
		if rc.log != nil {
			rc.log.Printf("bridge client session=%s disconnected", sessionID)
		}
	}
}

const pingInterval = 30 * time.Second

// ping keeps an idle bridge connection inside both peers' read deadlines.
func ping(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (rc *Receiver) handle(ctx context.Context, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError(protocol.ErrProtoBadRequest, "malformed message")
	}
	if base.Type != protocol.TypeReceiveCode {
		return protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
	}
	var m protocol.ReceiveCodeMsg
	if err := json.Unmarshal(msg, &m); err != nil || m.SubmissionID == "" {
		return protocol.NewError(protocol.ErrProtoBadRequest, "bad RECEIVE_CODE")
	}

	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, SubmissionID: m.SubmissionID}
	if !bridge.Available(rc.sink) {
		ack.Code = protocol.ErrUnavailable
		ack.Message = "no program sink"
		return ack
	}
	err = rc.sink.ReceiveCode(bridge.WithSubmissionID(ctx, m.SubmissionID), m.Code)
	switch {
	case err == nil:
		ack.OK = true
	case errors.Is(err, bridge.ErrUnavailable):
		ack.Code = protocol.ErrUnavailable
		ack.Message = err.Error()
	default:
		ack.Code = protocol.ErrBridge
		ack.Message = err.Error()
		if rc.log != nil {
			rc.log.Printf("receive %s: %v", m.SubmissionID, err)
		}
	}
	return ack
}
