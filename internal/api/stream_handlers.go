package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/buurz-forks/evercam-server/internal/stream"
)

var errStreamUnauthorized = errors.New("stream token rejected")

// Live routes /live/{exid}/index.m3u8 and /live/{exid}/kill. These endpoints
// authenticate solely by stream token; API credentials play no part.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/live/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	exid, action := parts[0], parts[1]
	token := r.URL.Query().Get("token")

	switch action {
	case stream.PlaylistName:
		h.livePlaylist(w, r, exid, token)
	case "kill":
		h.liveKill(w, r, exid, token)
	default:
		http.NotFound(w, r)
	}
}

// livePlaylist runs the bridge check command. Ready redirects the player into
// the artifact namespace; a timeout is success-shaped emptiness, not an error.
func (h *Handler) livePlaylist(w http.ResponseWriter, r *http.Request, exid, token string) {
	switch h.Bridge.Request(r.Context(), exid, token, stream.CommandCheck) {
	case stream.OutcomeReady:
		target := fmt.Sprintf("/hls/%s/%s?token=%s", url.PathEscape(exid), stream.PlaylistName, url.QueryEscape(token))
		http.Redirect(w, r, target, http.StatusFound)
	case stream.OutcomeTimedOut:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusUnauthorized, errStreamUnauthorized)
	}
}

// liveKill kills and restarts the camera's transcoder without waiting for the
// fresh artifact.
func (h *Handler) liveKill(w http.ResponseWriter, r *http.Request, exid, token string) {
	switch h.Bridge.Request(r.Context(), exid, token, stream.CommandKill) {
	case stream.OutcomeReady:
		w.WriteHeader(http.StatusAccepted)
	default:
		writeError(w, http.StatusUnauthorized, errStreamUnauthorized)
	}
}
