package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sivanadi/AstroCalc/internal/service"
)

type contextKeyAuth string

const (
	// AdminUserKey is the context key for the authenticated admin username.
	AdminUserKey contextKeyAuth = "admin_user"
	// SessionTokenKey is the context key for the presented session token,
	// kept around so the logout handler can revoke it.
	SessionTokenKey contextKeyAuth = "session_token"
)

// AdminSession returns an HTTP middleware that validates the opaque session
// token from the Authorization header. On success the admin username and the
// token itself are attached to the request context; otherwise a 401 JSON
// error is returned.
func AdminSession(sessions *service.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer session token.")
				return
			}

			username, err := sessions.Validate(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Session invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), AdminUserKey, username)
			ctx = context.WithValue(ctx, SessionTokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminUser extracts the authenticated admin username from the context.
// Returns an empty string for unauthenticated requests.
func GetAdminUser(ctx context.Context) string {
	if u, ok := ctx.Value(AdminUserKey).(string); ok {
		return u
	}
	return ""
}

// GetSessionToken extracts the presented session token from the context.
func GetSessionToken(ctx context.Context) string {
	if t, ok := ctx.Value(SessionTokenKey).(string); ok {
		return t
	}
	return ""
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid an import cycle with the handler package
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
