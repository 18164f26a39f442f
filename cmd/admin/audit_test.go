package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"roboblocks/internal/bridge"
	auditlog "roboblocks/internal/persistence/log"
)

func TestReadAudit_FiltersAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	l := auditlog.NewSubmissionLogger(dir, nil)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	subs := []bridge.Submission{
		{ID: "a", Action: "run", Bridge: "file", At: t0, Digest: "aa11"},
		{ID: "b", Action: "save", Bridge: "file", At: t0.Add(time.Minute), Digest: "bb22", Err: "disk full"},
		{ID: "c", Action: "run", Bridge: "ws", At: t0.Add(2 * time.Minute), Digest: "aa33"},
	}
	for _, s := range subs {
		if err := l.WriteSubmission(s); err != nil {
			t.Fatalf("WriteSubmission: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	names, err := auditFiles(dir)
	if err != nil || len(names) == 0 {
		t.Fatalf("auditFiles=%v err=%v", names, err)
	}

	all, err := readAudit(dir, auditFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("all=%+v err=%v", all, err)
	}
	runs, _ := readAudit(dir, auditFilter{Action: "run", DigestPrefix: "aa"})
	if len(runs) != 2 || runs[0].ID != "a" || runs[1].ID != "c" {
		t.Fatalf("runs=%+v", runs)
	}
	failed, _ := readAudit(dir, auditFilter{FailedOnly: true})
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("failed=%+v", failed)
	}
	late, _ := readAudit(dir, auditFilter{Since: t0.Add(90 * time.Second)})
	if len(late) != 1 || late[0].ID != "c" {
		t.Fatalf("since=%+v", late)
	}
}

func TestReadAudit_MissingDir(t *testing.T) {
	if _, err := readAudit(filepath.Join(t.TempDir(), "nope"), auditFilter{}); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
