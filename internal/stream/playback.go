package stream

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/buurz-forks/evercam-server/internal/camera"
	"github.com/buurz-forks/evercam-server/internal/models"
)

// Endpoints are the public bases viewers play streams from.
type Endpoints struct {
	// HLSBase fronts the artifact namespace, e.g. https://media.example.com/hls.
	HLSBase string
	// RTMPBase is the media server's play/publish application, e.g.
	// rtmp://media.example.com/live.
	RTMPBase string
}

// PlaybackURLs derives the tokenised HLS and RTMP playback URLs for a
// camera. Both are empty when the camera's RTSP source cannot be derived,
// since no stream could ever start for it.
func PlaybackURLs(cam models.FullCamera, endpoints Endpoints) (hls, rtmp string) {
	sourceURL := camera.RTSPURL(cam, camera.NetworkExternal, camera.SnapshotH264, true)
	if sourceURL == "" {
		return "", ""
	}
	username, password := camera.Credentials(cam.Camera)
	token := url.QueryEscape(EncodeToken(username, password, sourceURL))
	if base := strings.TrimRight(strings.TrimSpace(endpoints.HLSBase), "/"); base != "" {
		hls = fmt.Sprintf("%s/%s/%s?token=%s", base, cam.Exid, PlaylistName, token)
	}
	if base := strings.TrimRight(strings.TrimSpace(endpoints.RTMPBase), "/"); base != "" {
		rtmp = fmt.Sprintf("%s/%s?token=%s", base, cam.Exid, token)
	}
	return hls, rtmp
}
