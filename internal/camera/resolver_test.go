package camera

import (
	"testing"

	"github.com/buurz-forks/evercam-server/internal/models"
)

func configuredCamera() models.Camera {
	return models.Camera{
		Exid: "cam1",
		Config: models.CameraConfig{
			"external_host":      "1.2.3.4",
			"external_http_port": float64(8080),
			"external_rtsp_port": float64(554),
			"snapshots": map[string]any{
				"jpg":  "/snapshot.jpg",
				"h264": "/stream",
			},
			"auth": map[string]any{
				"basic": map[string]any{
					"username": "u",
					"password": "p",
				},
			},
		},
	}
}

func TestEmptyConfigResolvesToEmptyStrings(t *testing.T) {
	cam := models.Camera{Exid: "empty"}
	full := models.FullCamera{Camera: cam}

	if got := Host(cam, NetworkExternal); got != "" {
		t.Fatalf("Host = %q, want empty", got)
	}
	if got := Port(cam, NetworkExternal, ProtocolRTSP); got != "" {
		t.Fatalf("Port = %q, want empty", got)
	}
	if got := ExternalURL(cam, ""); got != "" {
		t.Fatalf("ExternalURL = %q, want empty", got)
	}
	if got := ResourcePath(cam, ""); got != "" {
		t.Fatalf("ResourcePath = %q, want empty", got)
	}
	if got := SnapshotURL(cam, SnapshotJPG); got != "" {
		t.Fatalf("SnapshotURL = %q, want empty", got)
	}
	if got := ResolvedPath(full, SnapshotH264); got != "" {
		t.Fatalf("ResolvedPath = %q, want empty", got)
	}
	if got := RTSPURL(full, "", "", true); got != "" {
		t.Fatalf("RTSPURL = %q, want empty", got)
	}
	if username, password := Credentials(cam); username != "" || password != "" {
		t.Fatalf("Credentials = %q/%q, want empty pair", username, password)
	}
}

func TestExternalURL(t *testing.T) {
	cam := configuredCamera()
	if got, want := ExternalURL(cam, ""), "http://1.2.3.4:8080"; got != want {
		t.Fatalf("ExternalURL = %q, want %q", got, want)
	}

	delete(cam.Config, "external_http_port")
	if got, want := ExternalURL(cam, ""), "http://1.2.3.4"; got != want {
		t.Fatalf("ExternalURL without port = %q, want %q", got, want)
	}
}

func TestPortTreatsZeroAsAbsent(t *testing.T) {
	cases := []struct {
		name  string
		value any
	}{
		{"numeric zero", float64(0)},
		{"string zero", "0"},
		{"empty string", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cam := configuredCamera()
			cam.Config["external_rtsp_port"] = tc.value
			if got := Port(cam, NetworkExternal, ProtocolRTSP); got != "" {
				t.Fatalf("Port = %q, want empty", got)
			}
			if got := RTSPURL(models.FullCamera{Camera: cam}, "", "", true); got != "" {
				t.Fatalf("RTSPURL = %q, want empty", got)
			}
		})
	}
}

func TestResourcePathAddsLeadingSlash(t *testing.T) {
	cam := configuredCamera()
	cam.Config["snapshots"] = map[string]any{"jpg": "snap/live.jpg"}
	if got, want := ResourcePath(cam, SnapshotJPG), "/snap/live.jpg"; got != want {
		t.Fatalf("ResourcePath = %q, want %q", got, want)
	}
}

func TestSnapshotURL(t *testing.T) {
	cam := configuredCamera()
	if got, want := SnapshotURL(cam, SnapshotJPG), "http://1.2.3.4:8080/snapshot.jpg"; got != want {
		t.Fatalf("SnapshotURL = %q, want %q", got, want)
	}

	cam.Config["snapshots"] = map[string]any{}
	if got, want := SnapshotURL(cam, SnapshotJPG), "http://1.2.3.4:8080"; got != want {
		t.Fatalf("SnapshotURL without path = %q, want %q", got, want)
	}
}

func TestResolvedPathFallsBackToVendorModel(t *testing.T) {
	cam := configuredCamera()
	cam.Config["snapshots"] = map[string]any{}
	full := models.FullCamera{
		Camera: cam,
		VendorModel: &models.VendorModel{
			Name:   "DCS-900",
			Config: models.CameraConfig{"snapshots": map[string]any{"h264": "live.sdp"}},
		},
	}
	if got, want := ResolvedPath(full, SnapshotH264), "/live.sdp"; got != want {
		t.Fatalf("ResolvedPath = %q, want %q", got, want)
	}
}

func TestRTSPURL(t *testing.T) {
	full := models.FullCamera{Camera: configuredCamera()}
	if got, want := RTSPURL(full, "", "", true), "rtsp://u:p@1.2.3.4:554/stream"; got != want {
		t.Fatalf("RTSPURL = %q, want %q", got, want)
	}
	if got, want := RTSPURL(full, "", "", false), "rtsp://1.2.3.4:554/stream"; got != want {
		t.Fatalf("RTSPURL without auth = %q, want %q", got, want)
	}

	noAuth := models.FullCamera{Camera: configuredCamera()}
	delete(noAuth.Config, "auth")
	if got, want := RTSPURL(noAuth, "", "", true), "rtsp://1.2.3.4:554/stream"; got != want {
		t.Fatalf("RTSPURL with empty credentials = %q, want %q", got, want)
	}
}

func TestRTSPURLRequiresHostPortAndPath(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(models.CameraConfig)
	}{
		{"missing host", func(cfg models.CameraConfig) { delete(cfg, "external_host") }},
		{"missing port", func(cfg models.CameraConfig) { delete(cfg, "external_rtsp_port") }},
		{"missing path", func(cfg models.CameraConfig) { cfg["snapshots"] = map[string]any{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cam := configuredCamera()
			tc.mutate(cam.Config)
			if got := RTSPURL(models.FullCamera{Camera: cam}, "", "", true); got != "" {
				t.Fatalf("RTSPURL = %q, want empty", got)
			}
		})
	}
}
