// Package bridge hands generated programs to the robot backend.
package bridge

import (
	"context"
	"errors"
)

// Bridge receives the full program text on Run and Save.
type Bridge interface {
	ReceiveCode(ctx context.Context, code string) error
}

// Availability is implemented by bridges whose backend may come and go.
type Availability interface {
	Available() bool
}

var ErrUnavailable = errors.New("bridge unavailable")

// Available reports whether b can take a submission right now. A nil
// bridge is never available; a bridge without Availability always is.
func Available(b Bridge) bool {
	if b == nil {
		return false
	}
	if a, ok := b.(Availability); ok {
		return a.Available()
	}
	return true
}

// Multi fans one submission out to every available bridge.
type Multi []Bridge

func (m Multi) ReceiveCode(ctx context.Context, code string) error {
	var errs []error
	sent := 0
	for _, b := range m {
		if !Available(b) {
			continue
		}
		sent++
		if err := b.ReceiveCode(ctx, code); err != nil {
			errs = append(errs, err)
		}
	}
	if sent == 0 {
		return ErrUnavailable
	}
	return errors.Join(errs...)
}

func (m Multi) Available() bool {
	for _, b := range m {
		if Available(b) {
			return true
		}
	}
	return false
}

type ctxKey int

const (
	keySubmissionID ctxKey = iota
	keyAction
)

// WithSubmissionID tags the handoff so every layer logs the same id.
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySubmissionID, id)
}

func SubmissionID(ctx context.Context) string {
	s, _ := ctx.Value(keySubmissionID).(string)
	return s
}

// WithAction records which user action ("run", "save") caused the handoff.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, keyAction, action)
}

func Action(ctx context.Context) string {
	s, _ := ctx.Value(keyAction).(string)
	return s
}
