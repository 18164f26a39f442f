// Package session holds the state of one editor: its program document,
// whether the code panel is shown, and the bridge its Run and Save
// actions hand code to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"roboblocks/internal/bridge"
	"roboblocks/internal/emit"
	"roboblocks/internal/program"
)

const (
	Placeholder = "# (no code yet)"

	LabelShow = "Show Code"
	LabelHide = "Hide Code"

	SavedNotice = "Code saved to file via bridge!"
)

var ErrBridge = errors.New("bridge handoff failed")

// CodeView is what the code panel shows.
type CodeView struct {
	Code        string `json:"code"`
	Display     string `json:"display"`
	Visible     bool   `json:"visible"`
	ToggleLabel string `json:"toggle_label"`
}

// Outcome is the result of Run or SaveCode. Sent is false when no bridge
// was available; Notice is set only for a successful save.
type Outcome struct {
	Code   string `json:"code"`
	Sent   bool   `json:"sent"`
	Notice string `json:"notice,omitempty"`
}

// Session is owned by a single goroutine; it is not safe for concurrent use.
type Session struct {
	id      string
	emitter *emit.Emitter
	bridge  bridge.Bridge
	logger  *log.Logger

	doc     *program.Document
	visible bool
}

// New returns a session with an empty program and the code panel hidden.
// A nil bridge makes Run and SaveCode no-ops.
func New(id string, e *emit.Emitter, b bridge.Bridge, logger *log.Logger) *Session {
	if e == nil {
		e = emit.New(nil)
	}
	return &Session{id: id, emitter: e, bridge: b, logger: logger, doc: program.Empty()}
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Document() *program.Document { return s.doc }
func (s *Session) Visible() bool               { return s.visible }

// Display is the panel text for code.
func Display(code string) string {
	if code == "" {
		return Placeholder
	}
	return code
}

// Code emits the current program.
func (s *Session) Code() (string, error) {
	return s.emitter.Program(s.doc)
}

// View emits the current program and reports the panel state.
func (s *Session) View() (CodeView, error) {
	v := CodeView{Visible: s.visible, ToggleLabel: s.label()}
	if !s.visible {
		return v, nil
	}
	code, err := s.Code()
	if err != nil {
		return CodeView{}, err
	}
	v.Code = code
	v.Display = Display(code)
	return v, nil
}

// Changed replaces the document. While the panel is shown the code is
// re-emitted and refreshed is true.
func (s *Session) Changed(doc *program.Document) (view CodeView, refreshed bool, err error) {
	if doc == nil {
		doc = program.Empty()
	}
	s.doc = doc
	if !s.visible {
		return CodeView{Visible: false, ToggleLabel: s.label()}, false, nil
	}
	view, err = s.View()
	return view, err == nil, err
}

// ToggleCode shows or hides the code panel. Showing re-emits.
func (s *Session) ToggleCode() (CodeView, error) {
	if s.visible {
		s.visible = false
		return CodeView{Visible: false, ToggleLabel: s.label()}, nil
	}
	code, err := s.Code()
	if err != nil {
		return CodeView{}, err
	}
	s.visible = true
	return CodeView{Code: code, Display: Display(code), Visible: true, ToggleLabel: s.label()}, nil
}

// Run emits the program and submits it when a bridge is available.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	return s.submit(ctx, "run")
}

// SaveCode emits the program, submits it when a bridge is available and
// returns the save confirmation.
func (s *Session) SaveCode(ctx context.Context) (Outcome, error) {
	out, err := s.submit(ctx, "save")
	if err == nil && out.Sent {
		out.Notice = SavedNotice
	}
	return out, err
}

func (s *Session) submit(ctx context.Context, action string) (Outcome, error) {
	code, err := s.Code()
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Code: code}
	if !bridge.Available(s.bridge) {
		return out, nil
	}
	ctx = bridge.WithAction(ctx, action)
	if err := s.bridge.ReceiveCode(ctx, code); err != nil {
		if s.logger != nil {
			s.logger.Printf("session %s: %s: %v", s.id, action, err)
		}
		return out, fmt.Errorf("%w: %w", ErrBridge, err)
	}
	out.Sent = true
	return out, nil
}

func (s *Session) label() string {
	if s.visible {
		return LabelHide
	}
	return LabelShow
}
