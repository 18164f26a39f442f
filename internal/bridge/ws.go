package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roboblocks/internal/protocol"
)

type WSConfig struct {
	URL        string
	ClientName string
	// AckTimeout bounds the wait for the receiver's ACK.
	AckTimeout time.Duration
}

// WSBridge keeps a websocket to the robot backend and sends each program
// as a RECEIVE_CODE message. It reconnects with backoff until closed.
type WSBridge struct {
	cfg    WSConfig
	logger *log.Logger

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected       bool
	lastConnectedAt time.Time
	lastErr         string
	sessionID       string
	sent            uint64
	failed          uint64

	conn    *websocket.Conn
	writeMu sync.Mutex

	pending map[string]chan protocol.AckMsg
}

func NewWSBridge(cfg WSConfig, logger *log.Logger) *WSBridge {
	if cfg.ClientName == "" {
		cfg.ClientName = "roboblocks"
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	return &WSBridge{
		cfg:     cfg,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: map[string]chan protocol.AckMsg{},
	}
}

func (b *WSBridge) Start() {
	b.startOnce.Do(func() {
		go b.run()
	})
}

func (b *WSBridge) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
		// Wake a blocking ReadMessage.
		b.Disconnect()
		b.Start()
		<-b.done
	})
}

func (b *WSBridge) Disconnect() {
	b.mu.Lock()
	c := b.conn
	b.conn = nil
	b.connected = false
	b.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// Available reports whether the backend has completed the handshake.
func (b *WSBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && b.conn != nil
}

func (b *WSBridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		Connected:       b.connected,
		URL:             b.cfg.URL,
		SessionID:       b.sessionID,
		LastConnectedAt: b.lastConnectedAt,
		LastError:       b.lastErr,
		Sent:            b.sent,
		Failed:          b.failed,
	}
}

func (b *WSBridge) ReceiveCode(ctx context.Context, code string) error {
	id := SubmissionID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	msg := protocol.ReceiveCodeMsg{
		Type:            protocol.TypeReceiveCode,
		ProtocolVersion: protocol.Version,
		SubmissionID:    id,
		Code:            code,
	}
	raw, _ := json.Marshal(msg)

	ack := make(chan protocol.AckMsg, 1)
	b.mu.Lock()
	b.pending[id] = ack
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.write(raw); err != nil {
		b.countResult(false)
		return fmt.Errorf("send %s: %w", id, err)
	}

	timer := time.NewTimer(b.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		b.countResult(false)
		return ctx.Err()
	case <-timer.C:
		b.countResult(false)
		return fmt.Errorf("submission %s: timeout waiting for ack", id)
	case a := <-ack:
		if !a.OK {
			b.countResult(false)
			return fmt.Errorf("submission %s rejected: %s %s", id, a.Code, a.Message)
		}
		b.countResult(true)
		return nil
	}
}

func (b *WSBridge) write(raw []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.mu.RLock()
	conn := b.conn
	ok := b.connected
	b.mu.RUnlock()
	if conn == nil || !ok {
		return ErrUnavailable
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (b *WSBridge) countResult(ok bool) {
	b.mu.Lock()
	if ok {
		b.sent++
	} else {
		b.failed++
	}
	b.mu.Unlock()
}

func (b *WSBridge) run() {
	defer close(b.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-b.stop:
			b.Disconnect()
			return
		default:
		}

		if err := b.connectAndReadLoop(); err != nil {
			b.mu.Lock()
			if b.connected {
				backoff = 200 * time.Millisecond
			}
			b.connected = false
			b.lastErr = err.Error()
			b.mu.Unlock()
			if b.logger != nil {
				b.logger.Printf("bridge %s: %v (retry in %s)", b.cfg.URL, err, backoff)
			}
			select {
			case <-b.stop:
				b.Disconnect()
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
			continue
		}
		// Clean exit.
		return
	}
}

func (b *WSBridge) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(b.cfg.URL, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:              protocol.TypeHello,
		ProtocolVersion:   protocol.Version,
		SupportedVersions: []string{protocol.Version},
		ClientName:        b.cfg.ClientName,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	b.mu.Lock()
	b.conn = conn
	b.lastErr = ""
	b.mu.Unlock()

	for {
		select {
		case <-b.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-b.stop:
				return nil
			default:
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			if !protocol.IsSupportedVersion(w.ProtocolVersion) {
				_ = conn.Close()
				return fmt.Errorf("unsupported protocol version %q", w.ProtocolVersion)
			}
			b.mu.Lock()
			b.sessionID = w.SessionID
			b.connected = true
			b.lastConnectedAt = time.Now()
			b.mu.Unlock()
			if b.logger != nil {
				b.logger.Printf("bridge connected url=%s session=%s", b.cfg.URL, w.SessionID)
			}

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			b.mu.RLock()
			ch := b.pending[a.SubmissionID]
			b.mu.RUnlock()
			if ch != nil {
				select {
				case ch <- a:
				default:
				}
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil && b.logger != nil {
				b.logger.Printf("bridge error from backend: %s %s", e.Code, e.Message)
			}
		}
	}
}
