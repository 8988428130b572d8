package stream

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestSweeper(root string, now time.Time) *Sweeper {
	return NewSweeper(SweeperConfig{
		ArtifactRoot: root,
		MaxAge:       time.Hour,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          func() time.Time { return now },
	})
}

func writeArtifact(t *testing.T, root, exid, name string, mod time.Time) {
	t.Helper()
	dir := filepath.Join(root, exid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestSweepRemovesStaleDirectories(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeArtifact(t, root, "stale-cam", PlaylistName, now.Add(-2*time.Hour))
	writeArtifact(t, root, "live-cam", PlaylistName, now.Add(-time.Minute))

	if err := newTestSweeper(root, now).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "stale-cam")); !os.IsNotExist(err) {
		t.Fatalf("stale directory survived the sweep: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "live-cam", PlaylistName)); err != nil {
		t.Fatalf("live directory was removed: %v", err)
	}
}

func TestSweepKeepsDirectoryWithOneFreshSegment(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeArtifact(t, root, "cam-1", PlaylistName, now.Add(-2*time.Hour))
	writeArtifact(t, root, "cam-1", "segment0042.ts", now.Add(-time.Minute))

	if err := newTestSweeper(root, now).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cam-1")); err != nil {
		t.Fatalf("directory with a fresh segment was removed: %v", err)
	}
}

func TestSweepMissingRootIsNoop(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	if err := newTestSweeper(root, time.Now()).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep on missing root: %v", err)
	}
}

func TestSweepIgnoresLooseFiles(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	stray := filepath.Join(root, "README")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(stray, now.Add(-3*time.Hour), now.Add(-3*time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := newTestSweeper(root, now).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(stray); err != nil {
		t.Fatalf("loose file was removed: %v", err)
	}
}

func TestSweepHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "cam-1", PlaylistName, time.Now().Add(-2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newTestSweeper(root, time.Now()).Sweep(ctx); err != context.Canceled {
		t.Fatalf("Sweep err = %v, want context.Canceled", err)
	}
}
