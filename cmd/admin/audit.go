package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"roboblocks/internal/bridge"
)

type auditFilter struct {
	Since        time.Time
	Action       string
	DigestPrefix string
	FailedOnly   bool
}

func (f auditFilter) match(s bridge.Submission) bool {
	if !f.Since.IsZero() && s.At.Before(f.Since) {
		return false
	}
	if f.Action != "" && s.Action != f.Action {
		return false
	}
	if f.DigestPrefix != "" && !strings.HasPrefix(s.Digest, f.DigestPrefix) {
		return false
	}
	if f.FailedOnly && s.Err == "" {
		return false
	}
	return true
}

// auditFiles lists the hourly audit files in dir, oldest first.
func auditFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "submissions-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func readAudit(dir string, f auditFilter) ([]bridge.Submission, error) {
	names, err := auditFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]bridge.Submission, 0, 256)
	for _, name := range names {
		subs, err := readAuditFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			if f.match(s) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func readAuditFile(path string) ([]bridge.Submission, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	dec, err := zstd.NewReader(fh)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []bridge.Submission
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var s bridge.Submission
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, s)
	}
	// A file still being written may end mid-frame.
	if err := sc.Err(); err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return out, nil
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 16<<20))
}
