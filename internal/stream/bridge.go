package stream

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/buurz-forks/evercam-server/internal/camera"
	"github.com/buurz-forks/evercam-server/internal/models"
	"github.com/buurz-forks/evercam-server/internal/observability/metrics"
)

// Command selects the bridge behaviour for a request.
type Command string

const (
	// CommandCheck ensures a transcoder is running and waits for its output.
	CommandCheck Command = "check"
	// CommandKill kills any live transcoder and restarts it, without waiting.
	CommandKill Command = "kill"
)

// Outcome is the terminal state of one bridge request.
type Outcome string

const (
	OutcomeReady        Outcome = "ready"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeTimedOut     Outcome = "timed_out"
)

// Directory resolves a camera record from its external identifier.
type Directory interface {
	GetFull(ctx context.Context, exid string) (models.FullCamera, bool, error)
}

// BridgeConfig wires the bridge's collaborators.
type BridgeConfig struct {
	Directory Directory
	Registry  *Registry
	Poller    *Poller
	// Activity, when set, is touched on every authorized request so the
	// reaper can tell watched cameras from abandoned ones.
	Activity *ActivityLog
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Bridge coordinates one viewer request: validate the stream token, authorize
// it against the camera's current configuration, ensure a transcoder is
// running for the camera's source URL, and wait for the output artifact.
type Bridge struct {
	directory Directory
	registry  *Registry
	poller    *Poller
	activity  *ActivityLog
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// NewBridge constructs a Bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		directory: cfg.Directory,
		registry:  cfg.Registry,
		poller:    cfg.Poller,
		activity:  cfg.Activity,
		logger:    logger,
		metrics:   recorder,
	}
}

// Request runs the bridge state machine. States execute strictly in order:
// validate, authorize, ensure, poll. Every authorization failure collapses to
// the same OutcomeUnauthorized so callers cannot distinguish a missing camera
// from a bad credential. Once authorization passes, infrastructure trouble is
// reported as delay (OutcomeTimedOut), never as denial.
func (b *Bridge) Request(ctx context.Context, exid, token string, command Command) Outcome {
	outcome := b.run(ctx, exid, token, command)
	b.metrics.StreamOutcome(string(outcome))
	return outcome
}

func (b *Bridge) run(ctx context.Context, exid, token string, command Command) Outcome {
	username, password, tokenURL, err := DecodeToken(token)
	if err != nil {
		b.logger.Warn("stream token rejected", "camera", exid)
		return OutcomeUnauthorized
	}

	cam, ok, err := b.directory.GetFull(ctx, exid)
	if err != nil {
		// Fail closed: no credential check is possible, so no process action.
		b.logger.Error("camera lookup failed", "camera", exid, "error", err)
		return OutcomeUnauthorized
	}
	if !ok {
		b.logger.Warn("stream request for unknown camera", "camera", exid)
		return OutcomeUnauthorized
	}

	currentUser, currentPass := camera.Credentials(cam.Camera)
	if !constantTimeEqual(username, currentUser) || !constantTimeEqual(password, currentPass) {
		b.logger.Warn("stream credentials rejected", "camera", exid)
		return OutcomeUnauthorized
	}

	// The source URL is re-derived from the camera's current config rather
	// than trusted from the token; a stale or forged URL is a denial.
	sourceURL := camera.RTSPURL(cam, camera.NetworkExternal, camera.SnapshotH264, true)
	if sourceURL == "" || sourceURL != tokenURL {
		b.logger.Warn("stream source mismatch", "camera", exid)
		return OutcomeUnauthorized
	}

	b.activity.Touch(cam.Exid)

	switch command {
	case CommandKill:
		if err := b.registry.KillAndRestart(ctx, sourceURL, cam.Exid, token); err != nil {
			b.logger.Error("transcoder restart failed", "camera", exid, "error", err)
		}
		return OutcomeReady
	default:
		if err := b.registry.EnsureRunning(ctx, sourceURL, cam.Exid, token); err != nil {
			// An already-running process may still satisfy the request, so
			// keep going and let the poller decide.
			b.logger.Error("transcoder ensure failed", "camera", exid, "error", err)
		}
	}

	if err := b.poller.WaitForArtifact(ctx, cam.Exid); err != nil {
		b.logger.Info("stream not ready", "camera", exid, "error", err)
		return OutcomeTimedOut
	}
	return OutcomeReady
}

func constantTimeEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
