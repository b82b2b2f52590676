package server

import (
	"net/http"
	"strings"
	"time"
)

// bearerAuthMiddleware protects the chat-completions ingress when
// gateway.auth_tokens is configured. No tokens configured means
// unauthenticated access is allowed.
func (s *Server) bearerAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimPrefix(auth, "Bearer ")
			if auth == "" || token == auth {
				httpError(w, "Unauthorized", "missing Authorization header", http.StatusUnauthorized)
				return
			}

			for _, t := range s.authTokens {
				if t.Token != token {
					continue
				}
				if t.ExpiresAt != "" {
					if exp, err := time.Parse(time.RFC3339, t.ExpiresAt); err == nil && time.Now().After(exp) {
						continue
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			httpError(w, "Unauthorized", "invalid or expired token", http.StatusUnauthorized)
		})
	}
}

// adminAuthMiddleware protects the control-plane REST API. If no
// admin_token is configured, every control-plane request is rejected.
func (s *Server) adminAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.config.AdminToken == "" {
				httpError(w, "Unauthorized", "admin token not configured", http.StatusForbidden)
				return
			}

			auth := r.Header.Get("Authorization")
			token := strings.TrimPrefix(auth, "Bearer ")
			if auth == "" || token == auth || token != s.config.AdminToken {
				httpError(w, "Unauthorized", "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
