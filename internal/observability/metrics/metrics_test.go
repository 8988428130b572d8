package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAccumulates(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/v1/cameras", http.StatusOK, 10*time.Millisecond)
	recorder.ObserveRequest("GET", "/v1/cameras", http.StatusOK, 5*time.Millisecond)

	if got := recorder.RequestSnapshot("GET", "/v1/cameras", http.StatusOK); got != 2 {
		t.Fatalf("count = %d, want 2 (method casing must not split the label)", got)
	}
}

func TestStreamOutcomeCounts(t *testing.T) {
	recorder := New()
	recorder.StreamOutcome("ready")
	recorder.StreamOutcome("ready")
	recorder.StreamOutcome("unauthorized")
	recorder.StreamOutcome("   ")

	if got := recorder.OutcomeSnapshot("ready"); got != 2 {
		t.Fatalf("ready = %d, want 2", got)
	}
	if got := recorder.OutcomeSnapshot("unauthorized"); got != 1 {
		t.Fatalf("unauthorized = %d, want 1", got)
	}
	if got := recorder.OutcomeSnapshot(""); got != 0 {
		t.Fatalf("blank outcome = %d, want 0", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("GET", "/healthz", http.StatusOK, time.Millisecond)
	recorder.StreamOutcome("timed_out")

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`evercam_http_requests_total{method="GET",path="/healthz",status="200"} 1`,
		`evercam_stream_outcomes_total{outcome="timed_out"} 1`,
		"# TYPE evercam_http_requests_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
}

func TestNormalizePathBoundsLabels(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/healthz", "/healthz"},
		{"/v1/cameras", "/v1/cameras"},
		{"/v1/cameras/front-gate-42", "/v1/cameras/:id"},
		{"/live/front-gate-42/index.m3u8", "/live/:id/:id"},
		{"/hls/cam-1/segment0001.ts", "/hls/cam-1/:id"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := Middleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cameras", nil))

	if got := recorder.RequestSnapshot("GET", "/v1/cameras", http.StatusNotFound); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestResponseRecorderDefaultsTo200(t *testing.T) {
	rec := NewResponseRecorder(httptest.NewRecorder())
	if rec.Status() != http.StatusOK {
		t.Fatalf("status = %d, want 200 before any write", rec.Status())
	}
	rec.WriteHeader(http.StatusAccepted)
	if rec.Status() != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 after WriteHeader", rec.Status())
	}
}
