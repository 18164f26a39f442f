package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBucket is a path-style store that checks every request's signature.
type fakeBucket struct {
	sig signer

	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	failPuts int
	puts     int
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.verify(r) {
		http.Error(w, "SignatureDoesNotMatch", http.StatusForbidden)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		f.puts++
		if f.failPuts > 0 {
			f.failPuts--
			http.Error(w, "slow down", http.StatusServiceUnavailable)
			return
		}
		b, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = b
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeBucket) verify(r *http.Request) bool {
	at, err := time.Parse(amzTime, r.Header.Get("x-amz-date"))
	if err != nil {
		return false
	}
	c := r.Clone(context.Background())
	c.Header.Del("Authorization")
	f.sig.sign(c, r.Header.Get("x-amz-content-sha256"), at)
	return c.Header.Get("Authorization") == r.Header.Get("Authorization")
}

func (f *fakeBucket) object(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[p]
	return b, ok
}

func newBucket(t *testing.T) (*fakeBucket, *Store) {
	t.Helper()
	fb := &fakeBucket{
		sig:     signer{accessKey: "AK", secretKey: "SK", region: DefaultRegion},
		objects: map[string][]byte{},
		types:   map[string]string{},
	}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	s, err := Open(Config{Endpoint: srv.URL, Bucket: "audit", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return fb, s
}

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestStore_PutAndExists(t *testing.T) {
	fb, s := newBucket(t)
	ctx := context.Background()

	if err := s.Put(ctx, "host a/x.json", strings.NewReader(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if b, ok := fb.object("/audit/host a/x.json"); !ok || string(b) != `{"a":1}` {
		t.Fatalf("stored=%q ok=%v", b, ok)
	}
	ok, err := s.Exists(ctx, "host a/x.json")
	if err != nil || !ok {
		t.Fatalf("Exists=%v err=%v", ok, err)
	}
	ok, err = s.Exists(ctx, "missing.json")
	if err != nil || ok {
		t.Fatalf("Exists(missing)=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "../escape", strings.NewReader("x"), ""); !errors.Is(err, ErrBadKey) {
		t.Fatalf("expected ErrBadKey, got %v", err)
	}
}

func TestStore_BadCredentialsSurfaceStatus(t *testing.T) {
	fb, _ := newBucket(t)
	srv := httptest.NewServer(fb)
	defer srv.Close()
	s, err := Open(Config{Endpoint: srv.URL, Bucket: "audit", AccessKeyID: "AK", SecretAccessKey: "wrong"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = s.Put(context.Background(), "k", strings.NewReader("x"), "")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusForbidden || se.Op != "put" {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
}

func TestOpen_Validation(t *testing.T) {
	bad := []Config{
		{Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"},
		{Endpoint: "r2.example", AccessKeyID: "a", SecretAccessKey: "s"},
		{Endpoint: "r2.example", Bucket: "b"},
		{Endpoint: "ftp://r2.example", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"},
	}
	for i, c := range bad {
		if _, err := Open(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	s, err := Open(Config{Endpoint: "r2.example/", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s", Region: "eu-west-1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Endpoint() != "https://r2.example" || s.sig.region != "eu-west-1" {
		t.Fatalf("endpoint=%q region=%q", s.Endpoint(), s.sig.region)
	}
}

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"a/b.jsonl.zst":  "a/b.jsonl.zst",
		"/a//b":          "a/b",
		`win\path\f.zst`: "win/path/f.zst",
		"../x":           "",
		"a/../../x":      "",
		"  ":             "",
		"/":              "",
	}
	for in, want := range cases {
		if got := CleanKey(in); got != want {
			t.Fatalf("CleanKey(%q)=%q want=%q", in, got, want)
		}
	}
}

func TestCanonicalQuery(t *testing.T) {
	q := map[string][]string{"b": {"2 3"}, "a": {"z", "y"}}
	if got := canonicalQuery(q); got != "a=y&a=z&b=2%203" {
		t.Fatalf("canonicalQuery=%q", got)
	}
}

func waitStats(t *testing.T, m *Mirror, done func(MirrorStats) bool) MirrorStats {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := m.Stats()
		if done(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("mirror stats=%+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMirror_UploadsUnderPrefixWithRetry(t *testing.T) {
	fb, s := newBucket(t)
	fb.failPuts = 2
	root := t.TempDir()
	m := NewMirror(s, MirrorConfig{Root: root, Prefix: "/server-1/", Attempts: 3})
	m.sleep = func(time.Duration) {}
	defer m.Close()

	p := filepath.Join(root, "submissions-2026-03-01-10.jsonl.zst")
	writeFile(t, p, "payload")
	m.Enqueue(p)
	waitStats(t, m, func(st MirrorStats) bool { return st.UploadedTotal == 1 })

	b, ok := fb.object("/audit/server-1/submissions-2026-03-01-10.jsonl.zst")
	if !ok || string(b) != "payload" {
		t.Fatalf("object=%q ok=%v", b, ok)
	}
	fb.mu.Lock()
	puts, ct := fb.puts, fb.types["/audit/server-1/submissions-2026-03-01-10.jsonl.zst"]
	fb.mu.Unlock()
	if puts != 3 || ct != "application/zstd" {
		t.Fatalf("puts=%d content-type=%q", puts, ct)
	}
}

func TestMirror_GivesUpAfterAttempts(t *testing.T) {
	fb, s := newBucket(t)
	fb.failPuts = 10
	root := t.TempDir()
	m := NewMirror(s, MirrorConfig{Root: root, Attempts: 2})
	m.sleep = func(time.Duration) {}
	defer m.Close()

	p := filepath.Join(root, "a.jsonl.zst")
	writeFile(t, p, "x")
	m.Enqueue(p)
	st := waitStats(t, m, func(st MirrorStats) bool { return st.FailedTotal == 1 })
	if st.UploadedTotal != 0 || st.LastErrorUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_BackfillSkipsUploadedAndCurrent(t *testing.T) {
	fb, s := newBucket(t)
	root := t.TempDir()
	done := filepath.Join(root, "submissions-2026-03-01-08.jsonl.zst")
	old := filepath.Join(root, "submissions-2026-03-01-09.jsonl.zst")
	cur := filepath.Join(root, "submissions-2026-03-01-10.jsonl.zst")
	writeFile(t, done, "d")
	writeFile(t, old, "o")
	writeFile(t, cur, "c")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	fb.objects["/audit/submissions-2026-03-01-08.jsonl.zst"] = []byte("d")

	m := NewMirror(s, MirrorConfig{Root: root})
	defer m.Close()
	n, err := m.Backfill(context.Background(), func(p string) bool { return p == cur })
	if err != nil || n != 1 {
		t.Fatalf("Backfill n=%d err=%v", n, err)
	}
	st := waitStats(t, m, func(st MirrorStats) bool { return st.UploadedTotal == 1 })
	if st.SkippedTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if _, ok := fb.object("/audit/submissions-2026-03-01-09.jsonl.zst"); !ok {
		t.Fatalf("old file not uploaded")
	}
	if _, ok := fb.object("/audit/submissions-2026-03-01-10.jsonl.zst"); ok {
		t.Fatalf("current file uploaded")
	}
}

func TestMirror_BackfillMissingRoot(t *testing.T) {
	_, s := newBucket(t)
	m := NewMirror(s, MirrorConfig{Root: filepath.Join(t.TempDir(), "none")})
	defer m.Close()
	if n, err := m.Backfill(context.Background(), nil); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestMirror_KeyStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	m := &Mirror{cfg: MirrorConfig{Root: root, Prefix: "p"}}
	if k, err := m.Key(filepath.Join(root, "x", "f.jsonl.zst")); err != nil || k != "p/x/f.jsonl.zst" {
		t.Fatalf("key=%q err=%v", k, err)
	}
	if _, err := m.Key(filepath.Join(t.TempDir(), "f.jsonl.zst")); err == nil {
		t.Fatalf("expected error for file outside root")
	}
}

func TestMirror_EnqueueAfterCloseDrops(t *testing.T) {
	_, s := newBucket(t)
	root := t.TempDir()
	m := NewMirror(s, MirrorConfig{Root: root})
	m.Close()
	m.Close()

	p := filepath.Join(root, "late.jsonl.zst")
	writeFile(t, p, "x")
	m.Enqueue(p)
	if st := m.Stats(); st.DroppedTotal != 1 || st.QueuedTotal != 0 || st.UploadedTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}
}
