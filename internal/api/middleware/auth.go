// Package middleware provides HTTP middleware for the Teledrop API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/pkg/access"
)

// Context key type for storing the resolved caller
type contextKey string

const callerContextKey contextKey = "caller"

// CallerFromContext retrieves the resolved caller from the request context.
// Requests that never passed through ResolveCaller resolve to Anonymous.
func CallerFromContext(ctx context.Context) access.Caller {
	caller, ok := ctx.Value(callerContextKey).(access.Caller)
	if !ok {
		return access.Anonymous
	}
	return caller
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// ResolveCaller resolves the request identity and stores it in the context.
//
// Credentials are tried in order: Bearer access token, X-API-Key header,
// session cookie. A present-but-invalid Bearer token or API key is refused
// with 401 rather than silently downgraded to anonymous; a stale cookie is
// ignored so expired browser sessions still see public drops.
func ResolveCaller(authSvc *auth.Service, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := access.Anonymous

			if tokenString, ok := extractBearerToken(r); ok {
				claims, err := authSvc.JWT().ValidateAccessToken(tokenString)
				if err != nil {
					unauthorized(w, "invalid or expired token")
					return
				}
				caller = access.Caller{Identity: claims.Identity, Authenticated: true}
			} else if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				identity, err := authSvc.ResolveAPIKey(r.Context(), apiKey)
				if err != nil {
					unauthorized(w, "invalid API key")
					return
				}
				caller = access.Caller{Identity: identity, Authenticated: true}
			} else if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
				if claims, err := authSvc.JWT().ValidateAccessToken(cookie.Value); err == nil {
					caller = access.Caller{Identity: claims.Identity, Authenticated: true}
				}
			}

			ctx := context.WithValue(r.Context(), callerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth blocks unauthenticated requests. Must run after ResolveCaller.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CallerFromContext(r.Context()).Authenticated {
				unauthorized(w, "AuthRequired")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// unauthorized writes a 401 RFC 7807 problem response. Kept local so the
// middleware package does not depend on the handlers package.
func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  "Unauthorized",
		"status": http.StatusUnauthorized,
		"detail": detail,
	})
}
