// Package server assembles the HTTP route table and middleware chain and owns
// the listener lifecycle.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/buurz-forks/evercam-server/internal/api"
	"github.com/buurz-forks/evercam-server/internal/observability/logging"
	"github.com/buurz-forks/evercam-server/internal/observability/metrics"
	"github.com/buurz-forks/evercam-server/internal/stream"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr string
	TLS  TLSConfig
	// ArtifactRoot is served read-only under /hls/ so players can fetch
	// playlists and segments directly.
	ArtifactRoot string
	// Activity, when set, is touched on every artifact fetch so idle
	// transcoders can be told apart from watched ones.
	Activity *stream.ActivityLog
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/v1/users", handler.Signup)
	mux.HandleFunc("/v1/login", handler.Login)
	mux.HandleFunc("/v1/cameras", handler.RequireAPIAuth(handler.Cameras))
	mux.HandleFunc("/v1/cameras/", handler.RequireAPIAuth(handler.CameraByExid))
	mux.HandleFunc("/live/", handler.Live)
	if root := strings.TrimSpace(cfg.ArtifactRoot); root != "" {
		mux.Handle("/hls/", http.StripPrefix("/hls/", artifactServer(root, cfg.Activity)))
	}

	handlerChain := http.Handler(mux)
	handlerChain = securityHeadersMiddleware(handlerChain)
	handlerChain = metrics.Middleware(recorder, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(handlerChain)
	handlerChain = requestIDMiddleware(handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Playlist polling can hold a request for the full 30x500ms budget.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if (srv.tlsCertFile == "") != (srv.tlsKeyFile == "") {
		return nil, fmt.Errorf("both TLS cert file and key file must be provided")
	}
	if srv.tlsCertFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// artifactServer exposes transcoder output as plain files, GET/HEAD only, no
// directory listings. Each fetch counts as viewer activity for its camera.
func artifactServer(root string, activity *stream.ActivityLog) http.Handler {
	fileServer := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		if idx := strings.IndexByte(r.URL.Path, '/'); idx > 0 {
			activity.Touch(r.URL.Path[:idx])
		}
		fileServer.ServeHTTP(w, r)
	})
}
