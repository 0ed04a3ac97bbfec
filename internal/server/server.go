// Package server provides the HTTP API over the registry and syncer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bryan-buckman/rssbox/internal/config"
	"github.com/bryan-buckman/rssbox/internal/database"
	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/bryan-buckman/rssbox/internal/opml"
	"github.com/bryan-buckman/rssbox/internal/registry"
	"github.com/bryan-buckman/rssbox/internal/syncer"
	"github.com/bryan-buckman/rssbox/internal/trash"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// syncTimeout bounds syncs started from a request.
const syncTimeout = 5 * time.Minute

// Deps are the components the server exposes.
type Deps struct {
	Registry     *registry.Registry
	Syncer       *syncer.Syncer
	Trash        *trash.Registry
	Board        *Board
	SettingsPath string
}

// Server is the HTTP API.
type Server struct {
	registry     *registry.Registry
	syncer       *syncer.Syncer
	trash        *trash.Registry
	board        *Board
	settingsPath string
	router       chi.Router
}

// New creates a server.
func New(d Deps) *Server {
	s := &Server{
		registry:     d.Registry,
		syncer:       d.Syncer,
		trash:        d.Trash,
		board:        d.Board,
		settingsPath: d.SettingsPath,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleNewSubscription)
			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.handleUpdateSubscription)
				r.Delete("/", s.handleRemoveSubscription)
				r.Get("/entries", s.handleEntries)
				r.Delete("/entries", s.handleRemoveAllEntries)
				r.Delete("/entries/{entryID}", s.handleRemoveEntry)
				r.Post("/entries/{entryID}/read", s.handleMarkRead)
				r.Post("/read", s.handleMarkAllRead)
				r.Post("/sync", s.handleSyncOne)
				r.Delete("/sync", s.handleCancelSync)
			})
		})
		r.Post("/sync", s.handleSyncAll)
		r.Post("/entries/{entryID}/favorite", s.handleFavorite)
		r.Get("/cache", s.handleCacheSize)
		r.Delete("/cache", s.handleClearCache)
		r.Get("/messages", s.handleMessages)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleSaveSettings)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// --- Subscriptions ---

type subscriptionRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Format   string `json:"format"`
	Proxy    string `json:"proxy"`
	Favorite bool   `json:"favorite"`
}

func (req subscriptionRequest) config() model.SubscriptionConfig {
	return model.SubscriptionConfig{
		Name:     req.Name,
		URL:      req.URL,
		Format:   model.FeedFormat(req.Format),
		Proxy:    model.ProxyKind(req.Proxy),
		Favorite: req.Favorite,
	}
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	favorites, err := s.registry.Subscription(r.Context(), model.FavoritesID)
	if err != nil {
		writeError(w, err)
		return
	}
	subs, err := s.registry.Subscriptions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"favorites":     favorites,
		"subscriptions": subs,
	})
}

func (s *Server) handleNewSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	sub, err := s.registry.NewSubscription(r.Context(), req.config())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	sub, err := s.registry.UpdateSubscription(r.Context(), chi.URLParam(r, "id"), req.config())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.syncer.Cancel(id)
	if err := s.registry.RemoveSubscription(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// --- Entries ---

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRemoveAllEntries(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.RemoveAllEntries(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	err := s.registry.RemoveEntry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	err := s.registry.MarkRead(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.MarkAllRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Favorite(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// --- Sync ---

type failureJSON struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func failuresJSON(failures []syncer.Failure) []failureJSON {
	out := make([]failureJSON, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureJSON{ID: f.ID, URL: f.URL, Error: f.Err.Error()})
	}
	return out
}

func (s *Server) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
	defer cancel()

	show := r.URL.Query().Get("show") == "1"
	failures, err := s.syncer.SyncOne(ctx, chi.URLParam(r, "id"), show)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"failures": failuresJSON(failures),
	})
}

func (s *Server) handleCancelSync(w http.ResponseWriter, r *http.Request) {
	cancelled := s.syncer.Cancel(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": cancelled})
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
	defer cancel()

	failures, err := s.syncer.SyncAll(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"failures": failuresJSON(failures),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.board.Messages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []syncer.Notice{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// --- Cache ---

func (s *Server) handleCacheSize(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": s.trash.Len(),
		"bytes":   s.trash.Size(),
		"size":    s.trash.SizeString(),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.trash.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// --- Settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := config.LoadSettings(s.settingsPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleSaveSettings writes the settings file. Changes apply on next start.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	settings := config.DefaultSettings()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if settings.Sync.Timeout < 0 || settings.Sync.Interval < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "durations must not be negative"})
		return
	}
	if err := config.SaveSettings(s.settingsPath, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// --- OPML ---

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file provided"})
		return
	}
	defer file.Close()

	feeds, err := opml.Parse(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("failed to parse OPML: %v", err)})
		return
	}

	imported := 0
	for _, f := range feeds {
		_, err := s.registry.NewSubscription(r.Context(), model.SubscriptionConfig{Name: f.Name, URL: f.URL})
		if err != nil {
			slog.Warn("Skipping OPML feed", "url", f.URL, "error", err)
			continue
		}
		imported++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": imported,
		"total":    len(feeds),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	subs, err := s.registry.Subscriptions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	feeds := make([]opml.Feed, 0, len(subs))
	for _, sub := range subs {
		feeds = append(feeds, opml.Feed{Name: sub.Name, URL: sub.URL})
	}

	data, err := opml.Export("rssbox subscriptions", feeds)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=rssbox.opml")
	w.Write(data)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps err to a status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrAlreadyFavorited), errors.Is(err, database.ErrDuplicate):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
