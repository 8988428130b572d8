package server

import "testing"

func TestCameraIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/live/cam-1/index.m3u8", "cam-1"},
		{"/live/cam-1/kill", "cam-1"},
		{"/hls/front-gate/segment0001.ts", "front-gate"},
		{"/hls/front-gate", "front-gate"},
		{"/v1/cameras/cam-1", ""},
		{"/healthz", ""},
		{"/live/", ""},
	}
	for _, tc := range cases {
		if got := cameraIDFromPath(tc.path); got != tc.want {
			t.Errorf("cameraIDFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
