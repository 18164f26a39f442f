package bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

const DefaultFilePath = "blockly_code.txt"

// FileBridge writes each program to one file, replacing what was there.
type FileBridge struct {
	path string
	mu   sync.Mutex
}

func NewFileBridge(path string) *FileBridge {
	if path == "" {
		path = DefaultFilePath
	}
	return &FileBridge{path: path}
}

func (f *FileBridge) Path() string { return f.path }

func (f *FileBridge) ReceiveCode(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFileAtomic(f.path, []byte(code))
}

func writeFileAtomic(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
