package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teledrop/teledrop/internal/api/middleware"
	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/internal/logger"
)

// AuthHandler serves operator login, token refresh, and identity lookup.
type AuthHandler struct {
	auth       *auth.Service
	cookieName string
}

// NewAuthHandler creates the auth handler. cookieName is the session cookie
// set alongside the JSON token pair so browser clients stay logged in.
func NewAuthHandler(authSvc *auth.Service, cookieName string) *AuthHandler {
	return &AuthHandler{auth: authSvc, cookieName: cookieName}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeCredentials(r, &req.Username, &req.Password) {
		BadRequest(w, "username and password are required")
		return
	}

	pair, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			Unauthorized(w, "invalid credentials")
			return
		}
		logger.Error("login failed", "error", err)
		InternalServerError(w, "internal error")
		return
	}

	h.setSessionCookie(w, r, pair)
	WriteJSONOK(w, pair)
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		BadRequest(w, "refresh_token is required")
		return
	}

	pair, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		Unauthorized(w, "invalid or expired refresh token")
		return
	}

	h.setSessionCookie(w, r, pair)
	WriteJSONOK(w, pair)
}

// Logout handles POST /api/auth/logout: it clears the session cookie.
// Bearer tokens are stateless and simply expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	WriteNoContent(w)
}

// Me handles GET /api/auth/me: it returns the resolved caller identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	WriteJSONOK(w, map[string]any{
		"identity":      caller.Identity,
		"authenticated": caller.Authenticated,
	})
}

// setSessionCookie stores the access token for browser sessions.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, r *http.Request, pair *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// decodeCredentials accepts JSON or form-encoded username/password bodies.
func decodeCredentials(r *http.Request, username, password *string) bool {
	if isJSONRequest(r) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return false
		}
		*username, *password = req.Username, req.Password
	} else {
		if err := r.ParseForm(); err != nil {
			return false
		}
		*username = r.PostForm.Get("username")
		*password = r.PostForm.Get("password")
	}
	return *username != "" && *password != ""
}
