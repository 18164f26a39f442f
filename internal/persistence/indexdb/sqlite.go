package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"roboblocks/internal/bridge"
)

// CatalogEntry is one served definition set (blocks, toolbox).
type CatalogEntry struct {
	Name   string
	Digest string
	JSON   []byte
}

// Index is a secondary read model of submissions. Writes never block the
// caller; the audit log stays the source of truth.
type Index interface {
	bridge.Recorder
	UpsertCatalogs(entries []CatalogEntry) error
	Close() error
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan bridge.Submission
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal    atomic.Uint64
	writtenTotal atomic.Uint64
	failTotal    atomic.Uint64
}

// Fixed-width so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	WrittenTotal  uint64 `json:"written_total"`
	FailTotal     uint64 `json:"fail_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan bridge.Submission, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			action TEXT NOT NULL,
			bridge TEXT NOT NULL,
			digest TEXT NOT NULL,
			lines INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			err TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_at ON submissions(at);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_digest ON submissions(digest);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordSubmission queues sub for the writer; a full queue drops it.
func (s *SQLiteIndex) RecordSubmission(sub bridge.Submission) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- sub:
	default:
		s.dropTotal.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropTotal.Load(),
		WrittenTotal:  s.writtenTotal.Load(),
		FailTotal:     s.failTotal.Load(),
	}
}

func (s *SQLiteIndex) UpsertCatalogs(entries []CatalogEntry) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if e.Name == "" || e.Digest == "" || len(e.JSON) == 0 {
			continue
		}
		if _, err := stmt.Exec(e.Name, e.Digest, string(e.JSON), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for name, or "" if absent.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

// RecentSubmissions returns up to limit submissions, newest first.
func (s *SQLiteIndex) RecentSubmissions(ctx context.Context, limit int) ([]bridge.Submission, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, action, bridge, digest, lines, bytes, COALESCE(err,'') FROM submissions ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bridge.Submission
	for rows.Next() {
		var sub bridge.Submission
		var at string
		if err := rows.Scan(&sub.ID, &at, &sub.Action, &sub.Bridge, &sub.Digest, &sub.Lines, &sub.Bytes, &sub.Err); err != nil {
			return nil, err
		}
		sub.At, _ = time.Parse(timeLayout, at)
		out = append(out, sub)
	}
	return out, rows.Err()
}

const (
	batchMax  = 64
	batchWait = 500 * time.Millisecond
)

// batch is the writer's open transaction.
type batch struct {
	tx      *sql.Tx
	insert  *sql.Stmt
	n       int
	started time.Time
}

func (s *SQLiteIndex) loop() {
	insert, err := s.db.Prepare(`INSERT OR REPLACE INTO submissions(id,at,action,bridge,digest,lines,bytes,err) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
			s.failTotal.Add(1)
		}
		return
	}
	defer insert.Close()

	var b *batch
	finish := func(ok bool) {
		if b == nil {
			return
		}
		if ok && b.tx.Commit() == nil {
			s.writtenTotal.Add(uint64(b.n))
		} else {
			_ = b.tx.Rollback()
			s.failTotal.Add(uint64(b.n))
		}
		b = nil
	}

	for sub := range s.ch {
		if b == nil {
			tx, err := s.db.Begin()
			if err != nil {
				s.failTotal.Add(1)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			b = &batch{tx: tx, insert: tx.Stmt(insert), started: time.Now()}
		}
		b.n++
		_, err := b.insert.Exec(sub.ID, sub.At.UTC().Format(timeLayout), sub.Action, sub.Bridge,
			sub.Digest, sub.Lines, sub.Bytes, sub.Err)
		if err != nil {
			finish(false)
			continue
		}
		// Commit when the queue drains so readers see the row promptly.
		if b.n >= batchMax || time.Since(b.started) >= batchWait || len(s.ch) == 0 {
			finish(true)
		}
	}
	finish(true)
}
