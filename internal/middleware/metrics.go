package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/voice_metrics/internal/app/metrics"
	apperrors "github.com/R3E-Network/voice_metrics/internal/errors"
)

// MetricsMiddleware records HTTP metrics for each routed request. It must be
// installed with Router.Use so the matched route template is available.
func MetricsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			release := metrics.TrackInFlight()
			defer release()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			// Use route pattern if available
			if route := mux.CurrentRoute(r); route != nil {
				if pathTemplate, err := route.GetPathTemplate(); err == nil {
					path = pathTemplate
				}
			}

			metrics.RecordHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
		})
	}
}

// writeServiceError renders the API error envelope for middleware rejections.
func writeServiceError(w http.ResponseWriter, err *apperrors.ServiceError) {
	status := err.HTTPStatus
	body, merr := json.Marshal(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Message: err.Message})
	if merr != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"message":"Server Error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
