package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buurz-forks/evercam-server/internal/observability/logging"
)

type idGenerator func() string

func requestIDMiddleware(next http.Handler) http.Handler {
	return requestIDMiddlewareWithGenerator(newRequestID, next)
}

// requestIDMiddlewareWithGenerator tags every request with an ID, echoed back
// on the response. Stream requests additionally carry the camera external
// identifier so all log lines for one viewer line up.
func requestIDMiddlewareWithGenerator(generator idGenerator, next http.Handler) http.Handler {
	if generator == nil {
		generator = newRequestID
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = generator()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if cameraID := cameraIDFromPath(r.URL.Path); cameraID != "" {
			ctx = logging.ContextWithCameraID(ctx, cameraID)
		}

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cameraIDFromPath extracts the camera external identifier from stream and
// artifact paths, returning "" for everything else.
func cameraIDFromPath(path string) string {
	for _, prefix := range []string{"/live/", "/hls/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if idx := strings.IndexByte(rest, '/'); idx > 0 {
			return rest[:idx]
		}
		return rest
	}
	return ""
}

func newRequestID() string {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err == nil {
		return hex.EncodeToString(buffer[:])
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
