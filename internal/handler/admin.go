package handler

import (
	"errors"
	"net/http"

	"github.com/sivanadi/AstroCalc/internal/server/middleware"
	"github.com/sivanadi/AstroCalc/internal/service"
)

// AdminHandler serves the admin session lifecycle.
type AdminHandler struct {
	sessions *service.SessionManager
}

func NewAdminHandler(sessions *service.SessionManager) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token              string `json:"session_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int64  `json:"expires_in"` // seconds
	MustChangePassword bool   `json:"must_change_password"`
}

// Login authenticates an admin and returns an opaque session token.
// POST /admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	token, mustChange, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionLimit):
			writeError(w, http.StatusTooManyRequests, "Too many active sessions; log out an existing session first")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "Authentication error")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:              token,
		TokenType:          "bearer",
		ExpiresIn:          int64(h.sessions.Timeout().Seconds()),
		MustChangePassword: mustChange,
	})
}

// Logout revokes the presented session token.
// POST /admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(middleware.GetSessionToken(r.Context()))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// LogoutAll revokes every live session, including the caller's.
// POST /admin/logout-all
func (h *AdminHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n := h.sessions.LogoutAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"sessions_revoked": n,
	})
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword rotates the caller's password. All sessions are revoked on
// success, so the client must log in again.
// POST /admin/password-change
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordChangeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := middleware.GetAdminUser(r.Context())
	err := h.sessions.ChangePassword(r.Context(), username, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		writeStoreError(w, err, "password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password changed; all sessions revoked",
	})
}
