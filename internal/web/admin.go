package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/btouchard/firstblood/internal/auth"
	"github.com/btouchard/firstblood/internal/firstblood"
	"github.com/btouchard/firstblood/internal/notify"
	"github.com/btouchard/firstblood/internal/store"
)

const adminPath = "/admin/first-blood"

// Flash messages shown after admin actions.
const (
	FlashSaved    = "First Blood webhook saved"
	FlashTestSent = "Test message sent (if webhook is valid)"
)

// ConfigStore reads and writes key-value configuration entries.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// FirstBloodLister lists the first solve of every solved challenge.
type FirstBloodLister interface {
	ListFirstBloods(ctx context.Context) ([]store.FirstBloodRecord, error)
}

// AdminHandler serves the first blood settings page.
type AdminHandler struct {
	config   ConfigStore
	bloods   FirstBloodLister
	notifier notify.Notifier
	sessions *auth.SessionStore
	tmpl     *TemplateRenderer
}

func NewAdminHandler(cfg ConfigStore, bloods FirstBloodLister, n notify.Notifier, sessions *auth.SessionStore, tmpl *TemplateRenderer) *AdminHandler {
	return &AdminHandler{
		config:   cfg,
		bloods:   bloods,
		notifier: n,
		sessions: sessions,
		tmpl:     tmpl,
	}
}

// Page renders the webhook form, pending flashes and the first blood table.
func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	si, ok := sessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	webhook, err := h.config.GetConfig(r.Context(), notify.WebhookKey)
	if err != nil {
		slog.Error("failed to read webhook config", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	flashes := h.sessions.PopFlashes(si.token)

	bloods, err := h.bloods.ListFirstBloods(r.Context())
	if err != nil {
		slog.Warn("failed to list first bloods", "error", err)
		flashes = append(flashes, auth.Flash{Kind: "error", Message: "Could not load first bloods"})
	}

	h.tmpl.Render(w, http.StatusOK, "first_blood.html", map[string]any{
		"Title":       "First Blood",
		"Username":    si.session.Username,
		"CSRFToken":   si.session.CSRFToken,
		"Webhook":     webhook,
		"Flashes":     flashes,
		"FirstBloods": bloods,
	})
}

// Save stores the trimmed webhook URL. An empty value disables notifications.
func (h *AdminHandler) Save(w http.ResponseWriter, r *http.Request) {
	si, ok := requireCSRF(w, r, r.FormValue("csrf_token"))
	if !ok {
		return
	}

	webhook := strings.TrimSpace(r.FormValue("webhook"))
	if err := h.config.SetConfig(r.Context(), notify.WebhookKey, webhook); err != nil {
		slog.Error("failed to save webhook config", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	slog.Info("first blood webhook updated", "username", si.session.Username, "enabled", webhook != "")
	h.sessions.AddFlash(si.token, auth.Flash{Kind: "success", Message: FlashSaved})
	http.Redirect(w, r, adminPath, http.StatusFound)
}

// Test sends the fixed test message. It always acknowledges, whatever the outcome.
func (h *AdminHandler) Test(w http.ResponseWriter, r *http.Request) {
	si, ok := requireCSRF(w, r, r.URL.Query().Get("csrf_token"))
	if !ok {
		return
	}

	h.notifier.Notify(r.Context(), firstblood.TestMessage)

	h.sessions.AddFlash(si.token, auth.Flash{Kind: "info", Message: FlashTestSent})
	http.Redirect(w, r, adminPath, http.StatusFound)
}
