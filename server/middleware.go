package server

import (
	"context"
	"net/http"
)

// orgIDHeader carries the caller's resolved organization identity.
// Authentication itself is external; the gateway in front of this API
// injects the header after validating the session.
const orgIDHeader = "X-Org-ID"

type contextKey string

const orgIDKey contextKey = "org_id"

// orgID returns the caller identity attached by identityMiddleware
func orgID(r *http.Request) string {
	if v, ok := r.Context().Value(orgIDKey).(string); ok {
		return v
	}
	return ""
}

// identityMiddleware rejects requests without a resolved identity
func (s *Server) identityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(orgIDHeader)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+orgIDHeader+" header")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), orgIDKey, id)))
	}
}

// corsMiddleware sets CORS headers for configured origins and answers
// preflight requests
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+orgIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
