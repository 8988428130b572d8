package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/buurz-forks/evercam-server/internal/camera"
	"github.com/buurz-forks/evercam-server/internal/directory"
	"github.com/buurz-forks/evercam-server/internal/models"
	"github.com/buurz-forks/evercam-server/internal/storage"
	"github.com/buurz-forks/evercam-server/internal/stream"
)

var errCameraNotFound = errors.New("camera not found")

type cameraURLs struct {
	RTSP     string `json:"rtsp,omitempty"`
	Snapshot string `json:"snapshot,omitempty"`
	HLS      string `json:"hls,omitempty"`
	RTMP     string `json:"rtmp,omitempty"`
}

type cameraView struct {
	models.Camera
	Rights string     `json:"rights"`
	URLs   cameraURLs `json:"urls"`
}

func (h *Handler) cameraView(cam models.FullCamera, userID string) cameraView {
	hls, rtmp := stream.PlaybackURLs(cam, h.Endpoints)
	view := cameraView{
		Camera: cam.Camera,
		Rights: directory.Rights(cam, userID),
		URLs: cameraURLs{
			RTSP:     camera.RTSPURL(cam, camera.NetworkExternal, camera.SnapshotH264, false),
			Snapshot: camera.SnapshotURL(cam.Camera, camera.SnapshotJPG),
			HLS:      hls,
			RTMP:     rtmp,
		},
	}
	// The config blob embeds device credentials; only the owner sees it.
	if userID != cam.OwnerID {
		view.Config = nil
	}
	return view
}

// Cameras handles /v1/cameras: the caller's visible camera list on GET,
// camera registration on POST.
func (h *Handler) Cameras(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errAuthRequired)
		return
	}
	switch r.Method {
	case http.MethodGet:
		includeShared := parseBoolParam(r, "include_shared")
		cameras, err := h.Directory.ListForUser(r.Context(), user.ID, includeShared)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]cameraView, 0, len(cameras))
		for _, cam := range cameras {
			views = append(views, h.cameraView(models.FullCamera{Camera: cam}, user.ID))
		}
		writeJSON(w, http.StatusOK, map[string]any{"cameras": views})
	case http.MethodPost:
		var payload struct {
			ID          string              `json:"id"`
			Name        string              `json:"name"`
			Timezone    string              `json:"timezone"`
			VendorModel string              `json:"vendorModel"`
			Config      models.CameraConfig `json:"config"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cam, err := h.Store.CreateCamera(r.Context(), storage.CreateCameraParams{
			Exid:        payload.ID,
			OwnerID:     user.ID,
			Name:        payload.Name,
			Timezone:    payload.Timezone,
			VendorModel: payload.VendorModel,
			Config:      payload.Config,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.Directory.InvalidateUser(r.Context(), user.ID); err != nil {
			h.Logger.Warn("cache invalidation failed", "user", user.ID, "error", err)
		}
		writeJSON(w, http.StatusCreated, h.cameraView(models.FullCamera{Camera: cam}, user.ID))
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// CameraByExid handles /v1/cameras/{exid} and /v1/cameras/{exid}/shares.
func (h *Handler) CameraByExid(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errAuthRequired)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cameras/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errCameraNotFound)
		return
	}
	exid := parts[0]
	if len(parts) == 2 && parts[1] == "shares" {
		h.cameraShares(w, r, user, exid)
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, errCameraNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cam, found, err := h.Directory.GetFull(r.Context(), exid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !found || !h.canSee(cam, user.ID) {
			writeError(w, http.StatusNotFound, errCameraNotFound)
			return
		}
		writeJSON(w, http.StatusOK, h.cameraView(cam, user.ID))
	case http.MethodPatch:
		cam, found, err := h.Directory.GetFull(r.Context(), exid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !found || cam.OwnerID != user.ID {
			writeError(w, http.StatusNotFound, errCameraNotFound)
			return
		}
		var payload struct {
			Config models.CameraConfig `json:"config"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateCameraConfig(r.Context(), exid, payload.Config)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, errCameraNotFound)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := h.Directory.InvalidateCamera(r.Context(), cam); err != nil {
			h.Logger.Warn("cache invalidation failed", "camera", exid, "error", err)
		}
		cam.Camera = updated
		writeJSON(w, http.StatusOK, h.cameraView(cam, user.ID))
	default:
		w.Header().Set("Allow", "GET, PATCH")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// canSee reports whether the user may read the camera at all: its owner or
// anyone holding an active share.
func (h *Handler) canSee(cam models.FullCamera, userID string) bool {
	return cam.OwnerID == userID || cam.SharedWith(userID)
}

// cameraShares grants and revokes access rights. Only the owner manages
// shares; the share set feeds both list visibility and rights strings.
func (h *Handler) cameraShares(w http.ResponseWriter, r *http.Request, user models.User, exid string) {
	cam, found, err := h.Directory.GetFull(r.Context(), exid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found || cam.OwnerID != user.ID {
		writeError(w, http.StatusNotFound, errCameraNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			UserID string `json:"userId"`
			Right  string `json:"right"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		right, err := h.Store.CreateAccessRight(r.Context(), storage.CreateAccessRightParams{
			CameraExid:  exid,
			TokenUserID: payload.UserID,
			Right:       payload.Right,
		})
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.Directory.InvalidateCamera(r.Context(), cam); err != nil {
			h.Logger.Warn("cache invalidation failed", "camera", exid, "error", err)
		}
		writeJSON(w, http.StatusCreated, right)
	case http.MethodDelete:
		query := r.URL.Query()
		targetUser := strings.TrimSpace(query.Get("user_id"))
		right := strings.TrimSpace(query.Get("right"))
		if targetUser == "" || right == "" {
			writeError(w, http.StatusBadRequest, errors.New("user_id and right are required"))
			return
		}
		if err := h.Store.RevokeAccessRight(r.Context(), exid, targetUser, right); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := h.Directory.InvalidateCamera(r.Context(), cam); err != nil {
			h.Logger.Warn("cache invalidation failed", "camera", exid, "error", err)
		}
		writeJSON(w, http.StatusNoContent, nil)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func parseBoolParam(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
