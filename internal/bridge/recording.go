package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recording wraps a bridge and reports every handoff to its recorders.
type Recording struct {
	next      Bridge
	name      string
	recorders []Recorder
	now       func() time.Time
}

func NewRecording(next Bridge, name string, recorders ...Recorder) *Recording {
	var rs []Recorder
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return &Recording{next: next, name: name, recorders: rs, now: time.Now}
}

func (r *Recording) Available() bool { return Available(r.next) }

func (r *Recording) ReceiveCode(ctx context.Context, code string) error {
	id := SubmissionID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = WithSubmissionID(ctx, id)
	}
	err := r.next.ReceiveCode(ctx, code)

	sub := Describe(code)
	sub.ID = id
	sub.Action = Action(ctx)
	sub.Bridge = r.name
	sub.At = r.now().UTC()
	if err != nil {
		sub.Err = err.Error()
	}
	for _, rec := range r.recorders {
		rec.RecordSubmission(sub)
	}
	return err
}

// Describe fills the content fields of a submission for code.
func Describe(code string) Submission {
	sum := sha256.Sum256([]byte(code))
	return Submission{
		Digest: hex.EncodeToString(sum[:]),
		Lines:  strings.Count(code, "\n"),
		Bytes:  len(code),
	}
}
