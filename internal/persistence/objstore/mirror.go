package objstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type MirrorConfig struct {
	// Root is the local directory mirrored; keys are paths relative to it.
	Root   string
	Prefix string

	Workers   int
	QueueSize int
	// EnqueueWait bounds how long Enqueue blocks on a full queue.
	EnqueueWait time.Duration
	// Attempts per file, with backoff doubling from 200ms up to 5s.
	Attempts int

	Logger *log.Logger
}

type MirrorStats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	QueuedTotal    uint64 `json:"queued_total"`
	SaturatedTotal uint64 `json:"saturated_total"`
	DroppedTotal   uint64 `json:"dropped_total"`
	UploadedTotal  uint64 `json:"uploaded_total"`
	FailedTotal    uint64 `json:"failed_total"`
	SkippedTotal   uint64 `json:"skipped_total"`
	LastUploadUnix int64  `json:"last_upload_unix"`
	LastErrorUnix  int64  `json:"last_error_unix"`
}

// Mirror copies completed local files into the store in the background.
type Mirror struct {
	store *Store
	cfg   MirrorConfig

	// mu guards sends on queue against Close.
	mu     sync.RWMutex
	closed bool
	queue  chan string
	wg     sync.WaitGroup
	sleep  func(time.Duration)

	queued, saturated, dropped  atomic.Uint64
	uploaded, failed, skipped   atomic.Uint64
	lastUploadUnix, lastErrUnix atomic.Int64
}

func NewMirror(store *Store, cfg MirrorConfig) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")

	m := &Mirror{
		store: store,
		cfg:   cfg,
		queue: make(chan string, cfg.QueueSize),
		sleep: time.Sleep,
	}
	m.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer m.wg.Done()
			for p := range m.queue {
				m.upload(p)
			}
		}()
	}
	return m
}

// Enqueue schedules localPath. It is called with the audit writer's lock
// held, so a saturated queue drops the file after EnqueueWait. Files
// enqueued after Close are dropped.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		n := m.dropped.Add(1)
		m.printf("audit mirror: drop %s (closed, dropped=%d)", localPath, n)
		return
	}
	m.queued.Add(1)
	select {
	case m.queue <- localPath:
		return
	default:
	}
	m.saturated.Add(1)
	t := time.NewTimer(m.cfg.EnqueueWait)
	defer t.Stop()
	select {
	case m.queue <- localPath:
	case <-t.C:
		n := m.dropped.Add(1)
		m.printf("audit mirror: drop %s (queue full, dropped=%d)", localPath, n)
	}
}

// Backfill queues files under Root that are not yet in the store. skip
// excludes files still being written. It returns how many were queued.
func (m *Mirror) Backfill(ctx context.Context, skip func(path string) bool) (int, error) {
	if m == nil {
		return 0, nil
	}
	var pending []string
	err := filepath.WalkDir(m.cfg.Root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".jsonl.zst") || (skip != nil && skip(p)) {
			return nil
		}
		pending = append(pending, p)
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range pending {
		key, err := m.Key(p)
		if err != nil {
			continue
		}
		ok, err := m.store.Exists(ctx, key)
		if err != nil {
			return n, fmt.Errorf("check %s: %w", key, err)
		}
		if ok {
			m.skipped.Add(1)
			continue
		}
		m.Enqueue(p)
		n++
	}
	return n, nil
}

// Close uploads what is queued and stops the workers.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mirror) Stats() MirrorStats {
	if m == nil {
		return MirrorStats{}
	}
	return MirrorStats{
		QueueDepth:     len(m.queue),
		QueueCapacity:  cap(m.queue),
		QueuedTotal:    m.queued.Load(),
		SaturatedTotal: m.saturated.Load(),
		DroppedTotal:   m.dropped.Load(),
		UploadedTotal:  m.uploaded.Load(),
		FailedTotal:    m.failed.Load(),
		SkippedTotal:   m.skipped.Load(),
		LastUploadUnix: m.lastUploadUnix.Load(),
		LastErrorUnix:  m.lastErrUnix.Load(),
	}
}

// Key maps a file under Root to its object key.
func (m *Mirror) Key(localPath string) (string, error) {
	root, err := filepath.Abs(m.cfg.Root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", localPath, m.cfg.Root)
	}
	if m.cfg.Prefix != "" {
		rel = path.Join(m.cfg.Prefix, rel)
	}
	return rel, nil
}

func (m *Mirror) upload(localPath string) {
	key, err := m.Key(localPath)
	if err == nil {
		err = m.putWithBackoff(key, localPath)
	}
	if err != nil {
		m.failed.Add(1)
		m.lastErrUnix.Store(time.Now().Unix())
		m.printf("audit mirror: upload %s: %v", localPath, err)
		return
	}
	m.uploaded.Add(1)
	m.lastUploadUnix.Store(time.Now().Unix())
	m.printf("audit mirror: uploaded %s", key)
}

func (m *Mirror) putWithBackoff(key, localPath string) error {
	backoff := 200 * time.Millisecond
	var err error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		if _, statErr := os.Stat(localPath); statErr != nil {
			return statErr
		}
		err = m.store.PutFile(context.Background(), key, localPath)
		if err == nil || attempt == m.cfg.Attempts {
			break
		}
		m.sleep(backoff)
		if backoff *= 2; backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
	return err
}

func (m *Mirror) printf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
