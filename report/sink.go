package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink receives rendered report files.
type Sink interface {
	Deliver(ctx context.Context, name string, data []byte) error
}

// DirSink writes files into Dir, creating it if needed.
type DirSink struct {
	Dir string
}

func (s DirSink) Deliver(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, path)
}
