// Package middleware provides HTTP middleware for the trials API
package middleware

import (
	"net/http"
	"strings"

	apperrors "github.com/R3E-Network/voice_metrics/internal/errors"
	"github.com/R3E-Network/voice_metrics/pkg/logger"
)

// CORSMiddleware handles Cross-Origin Resource Sharing
type CORSMiddleware struct {
	allowedOrigins []string
	allowAll       bool
	log            *logger.Logger
}

// NewCORSMiddleware creates a new CORS middleware. An origin is accepted when
// it equals or starts with one of allowedOrigins; "*" accepts any origin.
func NewCORSMiddleware(allowedOrigins []string, log *logger.Logger) *CORSMiddleware {
	if log == nil {
		log = logger.NewDefault("cors")
	}
	m := &CORSMiddleware{log: log}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
			continue
		case "*":
			m.allowAll = true
		}
		m.allowedOrigins = append(m.allowedOrigins, origin)
	}
	return m
}

// AllowedOrigins returns the configured allow-list.
func (m *CORSMiddleware) AllowedOrigins() []string {
	out := make([]string, len(m.allowedOrigins))
	copy(out, m.allowedOrigins)
	return out
}

// Handler returns the CORS middleware handler
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Same-origin and non-browser clients send no Origin.
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !m.allowAll && !m.isOriginAllowed(origin) {
			m.log.WithContext(r.Context()).
				WithField("origin", origin).
				WithField("path", r.URL.Path).
				Warn("blocked by CORS")
			writeServiceError(w, apperrors.Forbidden("Not allowed by CORS"))
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Trace-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.Header().Add("Vary", "Origin")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed checks if an origin is in the allowed list
func (m *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, allowed := range m.allowedOrigins {
		if allowed == origin || strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
