// Package camera derives connection URLs and credentials from a camera's
// configuration blob. Every function is a total, pure function: partially
// populated configs yield empty strings, never errors.
package camera

import (
	"fmt"
	"strings"

	"github.com/buurz-forks/evercam-server/internal/models"
)

const (
	NetworkExternal = "external"
	NetworkInternal = "internal"

	ProtocolHTTP = "http"
	ProtocolRTSP = "rtsp"

	SnapshotJPG  = "jpg"
	SnapshotH264 = "h264"
)

// Host returns the configured host for the given network, empty when absent.
func Host(cam models.Camera, network string) string {
	return cam.Config.String(network + "_host")
}

// Port returns the configured port for the given network and protocol. An
// absent value and a literal zero both read as empty: devices frequently
// persist 0 for "no port configured".
func Port(cam models.Camera, network, protocol string) string {
	port := cam.Config.String(network + "_" + protocol + "_port")
	if port == "" || port == "0" {
		return ""
	}
	return port
}

// ExternalURL assembles "<protocol>://<host>[:<port>]" from the external
// network config. An empty host collapses the whole URL to "".
func ExternalURL(cam models.Camera, protocol string) string {
	if protocol == "" {
		protocol = ProtocolHTTP
	}
	host := Host(cam, NetworkExternal)
	if host == "" {
		return ""
	}
	port := Port(cam, NetworkExternal, protocol)
	if port == "" {
		return fmt.Sprintf("%s://%s", protocol, host)
	}
	return fmt.Sprintf("%s://%s:%s", protocol, host, port)
}

// ResourcePath returns the snapshot path configured for the given type,
// normalised to carry a leading slash. Empty stays empty.
func ResourcePath(cam models.Camera, kind string) string {
	if kind == "" {
		kind = SnapshotJPG
	}
	path := cam.Config.String("snapshots", kind)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// SnapshotURL joins the external HTTP URL with the snapshot resource path.
func SnapshotURL(cam models.Camera, kind string) string {
	base := ExternalURL(cam, ProtocolHTTP)
	if base == "" {
		return ""
	}
	return base + ResourcePath(cam, kind)
}

// ResolvedPath returns the camera's own resource path when configured and
// otherwise falls back to the vendor model's default for the same type.
func ResolvedPath(cam models.FullCamera, kind string) string {
	if path := ResourcePath(cam.Camera, kind); path != "" {
		return path
	}
	if cam.VendorModel == nil {
		return ""
	}
	if kind == "" {
		kind = SnapshotJPG
	}
	path := cam.VendorModel.Config.String("snapshots", kind)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// RTSPURL builds the camera's native stream URL. Construction is strict:
// host, port, and resolved path must all be present, otherwise the result is
// "". Credentials are embedded only when requested and configured.
func RTSPURL(cam models.FullCamera, network, kind string, includeAuth bool) string {
	if network == "" {
		network = NetworkExternal
	}
	if kind == "" {
		kind = SnapshotH264
	}
	host := Host(cam.Camera, network)
	port := Port(cam.Camera, network, ProtocolRTSP)
	path := ResolvedPath(cam, kind)
	if host == "" || port == "" || path == "" {
		return ""
	}
	username, password := Credentials(cam.Camera)
	if includeAuth && (username != "" || password != "") {
		return fmt.Sprintf("rtsp://%s:%s@%s:%s%s", username, password, host, port, path)
	}
	return fmt.Sprintf("rtsp://%s:%s%s", host, port, path)
}

// Credentials reads the embedded basic-auth pair, each defaulting to "".
func Credentials(cam models.Camera) (username, password string) {
	return cam.Config.String("auth", "basic", "username"),
		cam.Config.String("auth", "basic", "password")
}
