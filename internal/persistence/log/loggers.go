package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"roboblocks/internal/bridge"
)

// JSONLZstdWriter appends JSON lines to zstd files, one file per UTC hour.
// Every line is flushed through the encoder before Write returns.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu  sync.Mutex
	cur *hourFile
	// onClose receives the path of each file once it is complete.
	onClose func(path string)
}

// hourFile is one open output file.
type hourFile struct {
	hour string
	path string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

const hourLayout = "2006-01-02-15"

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix, now: time.Now}
}

// SetOnClose registers fn for completed files. Call before the first Write.
func (w *JSONLZstdWriter) SetOnClose(fn func(path string)) {
	w.mu.Lock()
	w.onClose = fn
	w.mu.Unlock()
}

// CurrentPath is the file being appended to, or "" between hours.
func (w *JSONLZstdWriter) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return ""
	}
	return w.cur.path
}

// PathForTime is the file a write at t lands in.
func (w *JSONLZstdWriter) PathForTime(t time.Time) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, t.UTC().Format(hourLayout)))
}

func (w *JSONLZstdWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if w.cur == nil || w.cur.hour != now.UTC().Format(hourLayout) {
		if err := w.finishLocked(); err != nil {
			return err
		}
		hf, err := openHourFile(w.PathForTime(now), now.UTC().Format(hourLayout))
		if err != nil {
			return err
		}
		w.cur = hf
	}
	return w.cur.append(line)
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishLocked()
}

func (w *JSONLZstdWriter) finishLocked() error {
	if w.cur == nil {
		return nil
	}
	hf := w.cur
	w.cur = nil
	err := hf.close()
	if w.onClose != nil {
		w.onClose(hf.path)
	}
	return err
}

func openHourFile(path, hour string) (*hourFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &hourFile{hour: hour, path: path, f: f, enc: enc, buf: bufio.NewWriterSize(enc, 32*1024)}, nil
}

func (h *hourFile) append(line []byte) error {
	if _, err := h.buf.Write(line); err != nil {
		return err
	}
	if err := h.buf.Flush(); err != nil {
		return err
	}
	return h.enc.Flush()
}

func (h *hourFile) close() error {
	flushErr := h.buf.Flush()
	encErr := h.enc.Close()
	fileErr := h.f.Close()
	switch {
	case flushErr != nil:
		return flushErr
	case encErr != nil:
		return encErr
	default:
		return fileErr
	}
}

// SubmissionLogger is the audit trail of bridge handoffs: one compressed
// JSONL entry per submission, metadata only.
type SubmissionLogger struct {
	w      *JSONLZstdWriter
	logger *stdlog.Logger
}

func NewSubmissionLogger(dir string, logger *stdlog.Logger) *SubmissionLogger {
	return &SubmissionLogger{w: NewJSONLZstdWriter(dir, "submissions"), logger: logger}
}

func (l *SubmissionLogger) WriteSubmission(s bridge.Submission) error { return l.w.Write(s) }

// RecordSubmission implements bridge.Recorder; write failures are logged.
func (l *SubmissionLogger) RecordSubmission(s bridge.Submission) {
	if err := l.WriteSubmission(s); err != nil && l.logger != nil {
		l.logger.Printf("audit log: submission %s: %v", s.ID, err)
	}
}

// Writer exposes the underlying file writer for mirroring hooks.
func (l *SubmissionLogger) Writer() *JSONLZstdWriter { return l.w }

func (l *SubmissionLogger) Close() error { return l.w.Close() }
