package stream

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestActivityLogIdleSince(t *testing.T) {
	log := NewActivityLog()
	base := time.Now()
	clock := base
	log.now = func() time.Time { return clock }

	log.Touch("stale-cam")
	clock = base.Add(20 * time.Minute)
	log.Touch("live-cam")

	idle := log.IdleSince(base.Add(10 * time.Minute))
	if len(idle) != 1 || idle[0] != "stale-cam" {
		t.Fatalf("idle = %v, want only stale-cam", idle)
	}

	log.Forget("stale-cam")
	if idle := log.IdleSince(clock.Add(time.Hour)); len(idle) != 1 || idle[0] != "live-cam" {
		t.Fatalf("idle after forget = %v, want only live-cam", idle)
	}
}

func TestActivityLogNilAndEmptyTouch(t *testing.T) {
	var log *ActivityLog
	log.Touch("cam-1")

	populated := NewActivityLog()
	populated.Touch("")
	if idle := populated.IdleSince(time.Now().Add(time.Hour)); len(idle) != 0 {
		t.Fatalf("idle = %v, want empty", idle)
	}
}

func newTestReaper(activity *ActivityLog, controller ProcessController, now time.Time) *Reaper {
	return NewReaper(ReaperConfig{
		Activity: activity,
		Registry: newTestRegistry(controller),
		MaxIdle:  10 * time.Minute,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return now },
	})
}

func TestReapKillsIdleTranscoders(t *testing.T) {
	base := time.Now()
	activity := NewActivityLog()
	clock := base
	activity.now = func() time.Time { return clock }

	activity.Touch("idle-cam")
	clock = base.Add(30 * time.Minute)
	activity.Touch("watched-cam")

	controller := newFakeController()
	controller.live["/idle-cam?token="] = []int32{900}
	controller.live["/watched-cam?token="] = []int32{901}

	reaper := newTestReaper(activity, controller, clock)
	if err := reaper.Reap(context.Background()); err != nil {
		t.Fatalf("Reap: %v", err)
	}

	if len(controller.killed) != 1 || controller.killed[0] != 900 {
		t.Fatalf("killed = %v, want only the idle camera's pid", controller.killed)
	}
	if idle := activity.IdleSince(clock.Add(time.Hour)); len(idle) != 1 || idle[0] != "watched-cam" {
		t.Fatalf("remaining activity = %v, want only watched-cam", idle)
	}
}

func TestReapKeepsRecordOnKillFailure(t *testing.T) {
	base := time.Now()
	activity := NewActivityLog()
	activity.now = func() time.Time { return base }
	activity.Touch("idle-cam")

	controller := newFakeController()
	controller.live["/idle-cam?token="] = []int32{900}
	controller.killErr = ErrProcessControl

	reaper := newTestReaper(activity, controller, base.Add(time.Hour))
	if err := reaper.Reap(context.Background()); err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if idle := activity.IdleSince(base.Add(2 * time.Hour)); len(idle) != 1 {
		t.Fatalf("activity record dropped after failed kill: %v", idle)
	}
}

func TestReapHonoursCancellation(t *testing.T) {
	activity := NewActivityLog()
	activity.Touch("cam-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reaper := newTestReaper(activity, newFakeController(), time.Now().Add(time.Hour))
	if err := reaper.Reap(ctx); err != context.Canceled {
		t.Fatalf("Reap err = %v, want context.Canceled", err)
	}
}
