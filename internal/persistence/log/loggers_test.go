package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"roboblocks/internal/bridge"
)

func readJSONL(t *testing.T, path string) []bridge.Submission {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []bridge.Submission
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var s bridge.Submission
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestSubmissionLogger_WritesAndRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	l := NewSubmissionLogger(dir, nil)
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return at }

	l.RecordSubmission(bridge.Submission{ID: "a", Action: "run", Digest: "d1", Lines: 1, Bytes: 7})
	l.RecordSubmission(bridge.Submission{ID: "b", Action: "save", Digest: "d2", Lines: 2, Bytes: 17})
	at = at.Add(2 * time.Minute)
	l.RecordSubmission(bridge.Submission{ID: "c", Action: "run"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first := readJSONL(t, filepath.Join(dir, "submissions-2026-03-01-10.jsonl.zst"))
	if len(first) != 2 || first[0].ID != "a" || first[1].Action != "save" || first[1].Bytes != 17 {
		t.Fatalf("hour 10 entries=%+v", first)
	}
	second := readJSONL(t, filepath.Join(dir, "submissions-2026-03-01-11.jsonl.zst"))
	if len(second) != 1 || second[0].ID != "c" {
		t.Fatalf("hour 11 entries=%+v", second)
	}
}

func TestJSONLZstdWriter_OnCloseReportsCompletedFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "submissions")
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	w.now = func() time.Time { return at }
	var closed []string
	w.SetOnClose(func(p string) { closed = append(closed, p) })

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.CurrentPath() != w.PathForTime(at) {
		t.Fatalf("current=%q want=%q", w.CurrentPath(), w.PathForTime(at))
	}
	at = at.Add(time.Hour)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(closed) != 1 || closed[0] != filepath.Join(dir, "submissions-2026-03-01-10.jsonl.zst") {
		t.Fatalf("closed after rotation=%v", closed)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(closed) != 2 || closed[1] != filepath.Join(dir, "submissions-2026-03-01-11.jsonl.zst") {
		t.Fatalf("closed after Close=%v", closed)
	}
	if err := w.Close(); err != nil || len(closed) != 2 {
		t.Fatalf("second Close reported again: %v %v", closed, err)
	}
}
