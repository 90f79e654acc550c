package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/apexai/apex/internal/session"
	"github.com/apexai/apex/internal/storage"
)

// Session headers. Sessions are held by the client and presented on every call.
const (
	HeaderUserID = "X-Apex-User-ID"
	HeaderRole   = "X-Apex-Role"
	HeaderName   = "X-Apex-Name"
)

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type sessionKey struct{}

// RequireSession reads the caller's session from the request headers and
// rejects requests without one.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			httpError(w, http.StatusUnauthorized, "session_error", "missing %s header; sign in first", HeaderUserID)
			return
		}
		role, err := storage.ParseRole(r.Header.Get(HeaderRole))
		if err != nil {
			httpError(w, http.StatusUnauthorized, "session_error", "invalid %s header: %v", HeaderRole, err)
			return
		}
		sess := session.Session{
			Role:   role,
			Name:   r.Header.Get(HeaderName),
			UserID: userID,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

// RequireAdmin rejects sessions without the admin role. It must run after RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFrom(r.Context())
		if !ok || !sess.IsAdmin() {
			httpError(w, http.StatusForbidden, "permission_error", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFrom returns the session attached by RequireSession.
func SessionFrom(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(session.Session)
	return sess, ok
}

// SetSessionHeaders attaches sess to an outgoing request.
func SetSessionHeaders(r *http.Request, sess session.Session) {
	r.Header.Set(HeaderUserID, sess.UserID)
	r.Header.Set(HeaderRole, string(sess.Role))
	r.Header.Set(HeaderName, sess.Name)
}
