package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/firstblood/internal/auth"
	"github.com/btouchard/firstblood/internal/config"
	"github.com/btouchard/firstblood/internal/notify"
	"github.com/btouchard/firstblood/internal/store"
	"github.com/btouchard/firstblood/internal/web/middleware"
)

// Deps holds what the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Notifier notify.Notifier
	Sessions *auth.SessionStore
	Tokens   *auth.TokenSet

	// MCP is mounted at /mcp behind an admin token when non-nil.
	MCP http.Handler
}

// NewRouter sets up all routes and returns the http.Handler.
func NewRouter(deps Deps) http.Handler {
	tmpl := NewTemplateRenderer()
	authH := NewAuthHandler(deps.Config.Admin, deps.Sessions, tmpl)
	admin := NewAdminHandler(deps.Store, deps.Store, deps.Notifier, deps.Sessions, tmpl)
	api := NewAPIHandler(deps.Store)

	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Login (IP rate limited against brute force)
	r.Group(func(r chi.Router) {
		r.Use(middleware.IPRateLimit(10, 5))
		r.Get("/login", authH.LoginPage)
		r.Post("/login", authH.Login)
	})

	// Admin pages (session required)
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin(deps.Sessions))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, adminPath, http.StatusSeeOther)
		})
		r.Get(adminPath, admin.Page)
		r.Post(adminPath, admin.Save)
		r.Get(adminPath+"/test", admin.Test)
		r.Post("/logout", authH.Logout)
	})

	// Platform API (rate limited + platform token)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Config.RateLimit))
		r.Use(middleware.PlatformAuth(deps.Tokens))
		r.Post("/challenges", api.CreateChallenge)
		r.Post("/users", api.CreateUser)
		r.Post("/teams", api.CreateTeam)
		r.Post("/solves", api.CreateSolve)
		r.Get("/first-bloods", api.ListFirstBloods)
	})

	// MCP endpoint (rate limited + admin token)
	if deps.MCP != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(deps.Config.RateLimit))
			r.Use(middleware.AdminAuth(deps.Tokens))
			r.Handle("/mcp", deps.MCP)
		})
	}

	return r
}
