package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/singleflight"
)

// ErrProcessControl marks spawn/kill/list failures against the OS. Callers
// treat these as best-effort trouble, not authorization failures.
var ErrProcessControl = errors.New("process control failed")

// ProcessController abstracts the OS-level operations the registry needs:
// enumerate transcoder processes by command-line substring, spawn a detached
// command, and kill by PID. Tests substitute a fake.
type ProcessController interface {
	List(ctx context.Context, substring string) ([]int32, error)
	Spawn(ctx context.Context, name string, args []string) error
	Kill(ctx context.Context, pid int32) error
}

// OSProcessController is the production controller backed by the real
// process table.
type OSProcessController struct {
	Logger *slog.Logger
}

// List scans the OS process table for live transcoder invocations whose
// command line contains the given substring. The process table, not any
// in-memory bookkeeping, is the authority for liveness: processes started by
// a previous instance of this service are still found.
func (c *OSProcessController) List(ctx context.Context, substring string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list processes: %v", ErrProcessControl, err)
	}
	self := int32(os.Getpid())
	var pids []int32
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			// Processes exit between enumeration and inspection.
			continue
		}
		if !strings.Contains(cmdline, substring) {
			continue
		}
		if !strings.Contains(cmdline, "ffmpeg") {
			continue
		}
		pids = append(pids, p.Pid)
	}
	return pids, nil
}

// Spawn launches the command detached from the calling request. The child is
// reaped in a background goroutine so it never lingers as a zombie, but
// nothing waits on it: transcoders run until killed.
func (c *OSProcessController) Spawn(ctx context.Context, name string, args []string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn %s: %v", ErrProcessControl, name, err)
	}
	logger := c.Logger
	go func() {
		err := cmd.Wait()
		if logger == nil {
			return
		}
		if err != nil {
			logger.Info("transcoder exited", "pid", cmd.Process.Pid, "error", err)
		} else {
			logger.Info("transcoder exited", "pid", cmd.Process.Pid)
		}
	}()
	return nil
}

// Kill terminates the process immediately, no grace period.
func (c *OSProcessController) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("%w: find pid %d: %v", ErrProcessControl, pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("%w: kill pid %d: %v", ErrProcessControl, pid, err)
	}
	return nil
}

// RegistryConfig configures the transcoding process registry.
type RegistryConfig struct {
	Controller ProcessController
	FFmpegPath string
	// RTMPBase is the push target prefix, e.g. rtmp://127.0.0.1:1935/live.
	// The camera key and stream token are appended per spawn.
	RTMPBase string
	Logger   *slog.Logger
}

// Registry starts and kills external transcoding processes keyed by the
// source URL embedded in their command lines. It keeps no authoritative state
// of its own; every liveness decision consults the process table.
type Registry struct {
	controller ProcessController
	ffmpegPath string
	rtmpBase   string
	logger     *slog.Logger
	ensure     singleflight.Group
}

// NewRegistry constructs a Registry. The controller defaults to the real OS
// controller and the binary to "ffmpeg" on PATH.
func NewRegistry(cfg RegistryConfig) *Registry {
	controller := cfg.Controller
	if controller == nil {
		controller = &OSProcessController{Logger: cfg.Logger}
	}
	ffmpegPath := strings.TrimSpace(cfg.FFmpegPath)
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Registry{
		controller: controller,
		ffmpegPath: ffmpegPath,
		rtmpBase:   strings.TrimRight(strings.TrimSpace(cfg.RTMPBase), "/"),
		logger:     cfg.Logger,
	}
}

// FindLiveProcessIDs returns the PIDs of transcoders currently serving the
// source URL.
func (r *Registry) FindLiveProcessIDs(ctx context.Context, sourceURL string) ([]int32, error) {
	return r.controller.List(ctx, sourceURL)
}

// Start launches a fresh transcoder for the source URL: RTSP pulled over
// TCP, video copied verbatim, a silent audio track synthesized and encoded,
// output pushed to the RTMP target namespaced by the camera key with the
// stream token carried as a query parameter.
func (r *Registry) Start(ctx context.Context, sourceURL, cameraKey, token string) error {
	args := r.transcodeArgs(sourceURL, cameraKey, token)
	if err := r.controller.Spawn(ctx, r.ffmpegPath, args); err != nil {
		return err
	}
	if r.logger != nil {
		r.logger.Info("transcoder started", "camera", cameraKey)
	}
	return nil
}

// EnsureRunning starts a transcoder unless one is already live for the
// source URL. Concurrent calls for the same URL collapse onto a single
// check-then-start via singleflight, so two viewers arriving together cannot
// double-spawn.
func (r *Registry) EnsureRunning(ctx context.Context, sourceURL, cameraKey, token string) error {
	_, err, _ := r.ensure.Do(sourceURL, func() (any, error) {
		pids, err := r.FindLiveProcessIDs(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		if len(pids) > 0 {
			return nil, nil
		}
		return nil, r.Start(ctx, sourceURL, cameraKey, token)
	})
	return err
}

// KillAndRestart kills every live transcoder for the source URL and then
// unconditionally starts a fresh one.
func (r *Registry) KillAndRestart(ctx context.Context, sourceURL, cameraKey, token string) error {
	_, err, _ := r.ensure.Do(sourceURL, func() (any, error) {
		pids, err := r.FindLiveProcessIDs(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		for _, pid := range pids {
			if err := r.controller.Kill(ctx, pid); err != nil {
				return nil, err
			}
			if r.logger != nil {
				r.logger.Info("transcoder killed", "camera", cameraKey, "pid", pid)
			}
		}
		return nil, r.Start(ctx, sourceURL, cameraKey, token)
	})
	return err
}

// KillStreamsForKey kills every live transcoder pushing to the camera key's
// RTMP target, returning how many were killed. The push URL embeds the key as
// a path segment, so the command line is matched on that segment.
func (r *Registry) KillStreamsForKey(ctx context.Context, cameraKey string) (int, error) {
	pids, err := r.controller.List(ctx, "/"+cameraKey+"?token=")
	if err != nil {
		return 0, err
	}
	killed := 0
	for _, pid := range pids {
		if err := r.controller.Kill(ctx, pid); err != nil {
			return killed, err
		}
		killed++
	}
	return killed, nil
}

func (r *Registry) transcodeArgs(sourceURL, cameraKey, token string) []string {
	push := fmt.Sprintf("%s/%s?token=%s", r.rtmpBase, cameraKey, url.QueryEscape(token))
	return []string{
		"-rtsp_transport", "tcp",
		"-i", sourceURL,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v",
		"-map", "1:a",
		"-shortest",
		"-f", "flv",
		push,
	}
}
