package stream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// PlaylistName is the segmented-playlist artifact the external transcoder
// writes inside each camera's namespace directory.
const PlaylistName = "index.m3u8"

// ErrArtifactNotReady reports that the playlist did not appear within the
// polling budget. It is a normal terminal condition, not a failure: the
// artifact may still show up after the caller stops waiting.
var ErrArtifactNotReady = errors.New("stream artifact not ready")

// PollerConfig configures artifact readiness polling.
type PollerConfig struct {
	// ArtifactRoot is the directory holding one subdirectory per camera
	// external identifier.
	ArtifactRoot string
	MaxAttempts  uint
	Interval     time.Duration
	// Stat is swappable for tests; defaults to os.Stat.
	Stat func(string) (os.FileInfo, error)
}

// Poller waits for a transcoding process's output artifact to exist.
type Poller struct {
	root     string
	attempts uint
	interval time.Duration
	stat     func(string) (os.FileInfo, error)
}

// NewPoller constructs a Poller defaulting to 30 attempts at
// 500ms apart.
func NewPoller(cfg PollerConfig) *Poller {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 30
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	stat := cfg.Stat
	if stat == nil {
		stat = os.Stat
	}
	return &Poller{root: cfg.ArtifactRoot, attempts: attempts, interval: interval, stat: stat}
}

// PlaylistPath returns the expected artifact location for a camera.
func (p *Poller) PlaylistPath(cameraKey string) string {
	return filepath.Join(p.root, cameraKey, PlaylistName)
}

// WaitForArtifact blocks until the camera's playlist exists, the attempt
// budget is exhausted, or the context is cancelled. The wait sleeps between
// fixed-delay checks; it never busy-spins. Exhaustion returns
// ErrArtifactNotReady; cancellation returns the context error.
func (p *Poller) WaitForArtifact(ctx context.Context, cameraKey string) error {
	playlist := p.PlaylistPath(cameraKey)
	err := retry.New(
		retry.Attempts(p.attempts),
		retry.Delay(p.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		if _, err := p.stat(playlist); err != nil {
			return ErrArtifactNotReady
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrArtifactNotReady
	}
	return nil
}
