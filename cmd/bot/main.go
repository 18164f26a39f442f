// Command bot drives an editor session from the command line: it loads a
// saved workspace, prints the generated program and can submit it.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"roboblocks/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "editor ws url")
		workspace = flag.String("workspace", "", "workspace JSON file")
		run       = flag.Bool("run", false, "send RUN after the workspace")
		save      = flag.Bool("save", false, "send SAVE_CODE after the workspace")
		wait      = flag.Duration("wait", 2*time.Second, "how long to wait for replies")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *workspace == "" {
		logger.Fatalf("-workspace is required")
	}
	raw, err := os.ReadFile(*workspace)
	if err != nil {
		logger.Fatalf("read workspace: %v", err)
	}
	if !json.Valid(raw) {
		logger.Fatalf("workspace is not JSON")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "bot",
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	send := func(v any) {
		if err := conn.WriteJSON(v); err != nil {
			logger.Fatalf("send: %v", err)
		}
	}
	command := func(typ string) protocol.CommandMsg {
		return protocol.CommandMsg{Type: typ, ProtocolVersion: protocol.Version}
	}

	// Show code first so the workspace change is answered with CODE.
	send(command(protocol.TypeToggleCode))
	send(protocol.WorkspaceMsg{Type: protocol.TypeWorkspace, ProtocolVersion: protocol.Version, Workspace: raw})
	if *run {
		send(command(protocol.TypeRun))
	}
	if *save {
		send(command(protocol.TypeSaveCode))
	}

	failed := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(*wait))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				logger.Printf("read: %v", err)
			}
			break
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
			logger.Printf("WELCOME session=%s blocks=%d", w.SessionID, w.Catalogs.BlockCount)

		case protocol.TypeCode:
			var c protocol.CodeMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			if c.Visible {
				os.Stdout.WriteString(c.Display)
				if len(c.Display) > 0 && c.Display[len(c.Display)-1] != '\n' {
					os.Stdout.WriteString("\n")
				}
			}

		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			if err := json.Unmarshal(msg, &n); err != nil {
				continue
			}
			logger.Printf("NOTICE %s", n.Text)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
