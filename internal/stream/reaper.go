package stream

import (
	"context"
	"log/slog"
	"time"
)

// ReaperConfig configures idle transcoder reaping.
type ReaperConfig struct {
	Activity *ActivityLog
	Registry *Registry
	// MaxIdle is how long a camera may go without a viewer before its
	// transcoder is killed. Defaults to 15 minutes.
	MaxIdle time.Duration
	Logger  *slog.Logger
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// Reaper kills transcoders whose cameras have had no viewer activity within
// the idle window. Without it a transcoder started for one viewer would run
// forever.
type Reaper struct {
	activity *ActivityLog
	registry *Registry
	maxIdle  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewReaper(cfg ReaperConfig) *Reaper {
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 15 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reaper{
		activity: cfg.Activity,
		registry: cfg.Registry,
		maxIdle:  maxIdle,
		logger:   logger,
		now:      now,
	}
}

// Reap kills the transcoders of every idle camera and forgets their activity
// records. A kill failure leaves the record in place so the next pass retries.
func (r *Reaper) Reap(ctx context.Context) error {
	cutoff := r.now().Add(-r.maxIdle)
	for _, cameraKey := range r.activity.IdleSince(cutoff) {
		if err := ctx.Err(); err != nil {
			return err
		}
		killed, err := r.registry.KillStreamsForKey(ctx, cameraKey)
		if err != nil {
			r.logger.Warn("failed to reap idle transcoder", "camera_id", cameraKey, "error", err)
			continue
		}
		r.activity.Forget(cameraKey)
		if killed > 0 {
			r.logger.Info("reaped idle transcoder", "camera_id", cameraKey, "killed", killed)
		}
	}
	return nil
}
