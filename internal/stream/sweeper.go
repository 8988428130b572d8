package stream

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SweeperConfig configures artifact cleanup.
type SweeperConfig struct {
	// ArtifactRoot is the directory holding one subdirectory per camera
	// external identifier.
	ArtifactRoot string
	// MaxAge is how long a camera directory may go without any file being
	// written before it is considered abandoned. Defaults to one hour.
	MaxAge time.Duration
	Logger *slog.Logger
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// Sweeper removes artifact directories that no transcoder is writing to
// anymore. A live transcoder refreshes its playlist and segments every few
// seconds, so a directory whose newest file is older than MaxAge belongs to a
// stream that has stopped.
type Sweeper struct {
	root   string
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		root:   cfg.ArtifactRoot,
		maxAge: maxAge,
		logger: logger,
		now:    now,
	}
}

// Sweep removes every camera directory whose contents have all gone stale.
// A missing artifact root is not an error; the transcoder creates it lazily.
func (s *Sweeper) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read artifact root: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		newest, err := newestModTime(dir)
		if err != nil {
			s.logger.Warn("failed to inspect artifact directory", "dir", dir, "error", err)
			continue
		}
		if newest.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove stale artifact directory", "dir", dir, "error", err)
			continue
		}
		s.logger.Info("removed stale artifact directory", "camera_id", entry.Name())
	}
	return nil
}

// newestModTime returns the most recent modification time among the directory
// and its immediate children. Empty directories report their own mtime.
func newestModTime(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}
	newest := info.ModTime()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime(); mod.After(newest) {
			newest = mod
		}
	}
	return newest, nil
}
