package bridge

import "time"

// Status is reported on /healthz and /metrics.
type Status struct {
	Connected       bool      `json:"connected"`
	URL             string    `json:"url"`
	SessionID       string    `json:"session_id,omitempty"`
	LastConnectedAt time.Time `json:"last_connected_at,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Sent            uint64    `json:"sent"`
	Failed          uint64    `json:"failed"`
}

// Submission describes one handoff. Program text itself is not kept.
type Submission struct {
	ID     string    `json:"id"`
	Action string    `json:"action,omitempty"`
	Bridge string    `json:"bridge"`
	At     time.Time `json:"at"`
	Digest string    `json:"digest"`
	Lines  int       `json:"lines"`
	Bytes  int       `json:"bytes"`
	Err    string    `json:"err,omitempty"`
}

// Recorder observes handoffs (audit log, index).
type Recorder interface {
	RecordSubmission(Submission)
}
