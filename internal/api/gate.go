package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/abuiliazeed/financial-projections/internal/config"
)

const SessionCookieName = "auth_token"

type contextKey string

const userIDKey contextKey = "user_id"

// publicPaths are matched exactly. Everything else, unknown paths included,
// needs a valid session.
var publicPaths = map[string]struct{}{
	"/":                {},
	"/login":           {},
	"/signup":          {},
	"/api/auth/login":  {},
	"/api/auth/signup": {},
	"/api/auth/logout": {},
}

func isPublic(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// UserIDFromContext returns the id the gate attached to the request.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// authenticate is the authorization gate. Public paths pass through without
// an identity; protected paths need a cookie that verifies.
func (s *APIServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			s.reject(w, r)
			return
		}

		userID, err := s.tokens.Verify(cookie.Value)
		if err != nil {
			s.logger.Debug("Session rejected",
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("path", r.URL.Path),
				"error", err,
			)
			s.clearSessionCookie(w)
			s.reject(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *APIServer) reject(w http.ResponseWriter, r *http.Request) {
	if isAPI(r.URL.Path) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *APIServer) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.config.Env == config.EnvProd,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *APIServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Env == config.EnvProd,
		SameSite: http.SameSiteStrictMode,
	})
}
