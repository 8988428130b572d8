// Package api exposes the HTTP surface: camera CRUD and sharing under /v1,
// token-authenticated stream endpoints under /live, and health reporting.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/buurz-forks/evercam-server/internal/directory"
	"github.com/buurz-forks/evercam-server/internal/storage"
	"github.com/buurz-forks/evercam-server/internal/stream"
)

type Handler struct {
	Store     storage.Repository
	Directory *directory.Directory
	Bridge    *stream.Bridge
	Endpoints stream.Endpoints
	Logger    *slog.Logger
}

func NewHandler(store storage.Repository, dir *directory.Directory, bridge *stream.Bridge, endpoints stream.Endpoints, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Directory: dir,
		Bridge:    bridge,
		Endpoints: endpoints,
		Logger:    logger,
	}
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, 1)
	if h.Store != nil {
		components = append(components, recordComponent("datastore", h.Store.Ping(ctx)))
	}
	return components, overallStatus, statusCode
}

// Health reports overall service health with per-component detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	components, status, code := h.componentHealth(r.Context())
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
	})
}
