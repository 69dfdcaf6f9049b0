package web

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/btouchard/firstblood/internal/auth"
	"github.com/btouchard/firstblood/internal/config"
)

const sessionCookie = "firstblood_session"

type sessionCtxKey struct{}

type sessionInfo struct {
	token   string
	session *auth.Session
}

func sessionFromContext(ctx context.Context) (sessionInfo, bool) {
	si, ok := ctx.Value(sessionCtxKey{}).(sessionInfo)
	return si, ok
}

// RequireAdmin redirects requests without a valid session cookie to /login.
func RequireAdmin(sessions *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookie)
			if err != nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			s := sessions.Get(cookie.Value)
			if s == nil {
				// Expired or invalid session, clear cookie
				clearSessionCookie(w)
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, sessionInfo{token: cookie.Value, session: s})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireCSRF rejects the request with 403 unless token matches the session's.
func requireCSRF(w http.ResponseWriter, r *http.Request, token string) (sessionInfo, bool) {
	si, ok := sessionFromContext(r.Context())
	if !ok || !si.session.ValidCSRF(token) {
		slog.Warn("csrf token rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return sessionInfo{}, false
	}
	return si, true
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// AuthHandler handles login and logout requests.
type AuthHandler struct {
	admin    config.AdminConfig
	sessions *auth.SessionStore
	tmpl     *TemplateRenderer
}

func NewAuthHandler(admin config.AdminConfig, sessions *auth.SessionStore, tmpl *TemplateRenderer) *AuthHandler {
	return &AuthHandler{admin: admin, sessions: sessions, tmpl: tmpl}
}

func (ah *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	ah.tmpl.Render(w, http.StatusOK, "login.html", map[string]any{})
}

func (ah *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(ah.admin.Username)) == 1
	passOK := auth.CheckPassword(ah.admin.PasswordHash, password)
	if !userOK || !passOK {
		slog.Warn("login failed", "ip", r.RemoteAddr)
		ah.tmpl.Render(w, http.StatusUnauthorized, "login.html", map[string]any{"Error": "Invalid username or password"})
		return
	}

	token, err := ah.sessions.Create(username)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ttl := ah.admin.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	slog.Info("login successful", "username", username, "ip", r.RemoteAddr)
	http.Redirect(w, r, "/admin/first-blood", http.StatusSeeOther)
}

func (ah *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	si, ok := requireCSRF(w, r, r.FormValue("csrf_token"))
	if !ok {
		return
	}
	ah.sessions.Delete(si.token)
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
