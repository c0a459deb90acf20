// Package diag is the diagnostics side channel: when enumeration finds
// nothing at all, the current page is dumped for offline inspection. The
// sink is injected so tests can capture or suppress the side effect.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/FranksOps/papyrus/internal/session"
)

// Sink receives page snapshots keyed by a short name, e.g. "search_page".
type Sink interface {
	Capture(ctx context.Context, name string, snap *session.Snapshot) error
}

// FileSink writes debug_<name>.png and debug_<name>.html into Dir.
// Filenames are fixed per name; a later capture overwrites an earlier one.
type FileSink struct {
	Dir    string
	Logger *slog.Logger
}

func (f *FileSink) Capture(ctx context.Context, name string, snap *session.Snapshot) error {
	if snap == nil {
		return nil
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := f.Dir
	if dir == "" {
		dir = "."
	}

	if len(snap.Image) > 0 {
		path := filepath.Join(dir, fmt.Sprintf("debug_%s.png", name))
		if err := os.WriteFile(path, snap.Image, 0o644); err != nil {
			return fmt.Errorf("diag: %w", err)
		}
		logger.Info("debug screenshot saved", "path", path)
	}
	if len(snap.HTML) > 0 {
		path := filepath.Join(dir, fmt.Sprintf("debug_%s.html", name))
		if err := os.WriteFile(path, snap.HTML, 0o644); err != nil {
			return fmt.Errorf("diag: %w", err)
		}
		logger.Info("debug markup saved", "path", path)
	}
	return nil
}

// Discard ignores every capture.
type Discard struct{}

func (Discard) Capture(ctx context.Context, name string, snap *session.Snapshot) error {
	return nil
}
