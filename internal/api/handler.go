// Package api exposes the local HTTP surface: catalog browsing, search,
// personalization, session management, and the Kartra webhook.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mesenbrink/helpnow/internal/catalog"
	"github.com/mesenbrink/helpnow/internal/kartra"
	"github.com/mesenbrink/helpnow/internal/personalize"
	"github.com/mesenbrink/helpnow/internal/search"
	"github.com/mesenbrink/helpnow/internal/session"
	"github.com/mesenbrink/helpnow/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const verifyTimeout = 20 * time.Second

// Verifier abstracts membership verification for the API layer.
type Verifier interface {
	VerifyMember(ctx context.Context, email string) (kartra.Verification, error)
}

type Deps struct {
	Catalog   *catalog.Catalog
	Index     []search.Entry
	Favorites *personalize.Store
	Recent    *personalize.Store
	Sessions  *session.Gate
	Verifier  Verifier
	Store     *storage.Store // optional; if nil, view events are not recorded
	Token     string
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/webhooks/kartra", handleKartraWebhook(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/catalog", handleListBehaviors(deps))
		r.Get("/catalog/{behavior}", handleListSituations(deps))
		r.Get("/catalog/{behavior}/{situation}", handleGetVideo(deps))
		r.Get("/search", handleSearch(deps))

		r.Get("/favorites", handleListFavorites(deps))
		r.Post("/favorites/toggle", handleToggleFavorite(deps))
		r.Delete("/favorites", handleClearFavorites(deps))

		r.Get("/recent", handleListRecent(deps))
		r.Post("/recent", handleRecordView(deps))
		r.Delete("/recent", handleClearRecent(deps))

		r.Get("/views", handleListViews(deps))
		r.Delete("/views", handlePurgeViews(deps))

		r.Get("/dashboard", handleDashboard(deps))

		r.Post("/auth/login", handleLogin(deps))
		r.Get("/auth/session", handleGetSession(deps))
		r.Delete("/auth/session", handleLogout(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type behaviorSummary struct {
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Situations int    `json:"situations"`
}

func handleListBehaviors(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		behaviors := deps.Catalog.Behaviors()
		out := make([]behaviorSummary, 0, len(behaviors))
		for _, b := range behaviors {
			out = append(out, behaviorSummary{
				Slug:       b.Slug,
				Title:      catalog.Title(b.Slug),
				Situations: len(b.Situations),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

type situationSummary struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	VideoURL string `json:"videoUrl"`
	Prompt   string `json:"prompt2,omitempty"`
}

func handleListSituations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		behavior := chi.URLParam(r, "behavior")

		situations := deps.Catalog.LookupSituations(behavior)
		if situations == nil {
			httpError(w, http.StatusNotFound, "not_found", "unknown behavior %q", behavior)
			return
		}

		out := make([]situationSummary, 0, len(situations))
		for _, s := range situations {
			out = append(out, situationSummary{
				Slug:     s.Slug,
				Title:    catalog.Title(s.Slug),
				VideoURL: s.Video.VideoURL,
				Prompt:   s.Video.Prompt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		behavior := chi.URLParam(r, "behavior")
		situation := chi.URLParam(r, "situation")

		entry, ok := deps.Catalog.LookupVideo(behavior, situation)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no video for %s/%s", behavior, situation)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")

		matches := search.Match(deps.Index, q)
		if matches == nil {
			matches = []search.Entry{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(matches)
	}
}

func handleListFavorites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeRecords(w, deps.Favorites.List())
	}
}

func handleToggleFavorite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := decodeRecord(w, r, deps)
		if !ok {
			return
		}

		favorited := deps.Favorites.Toggle(r.Context(), rec)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"favorited": favorited})
	}
}

func handleClearFavorites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Favorites.Clear(r.Context())
		writeStatus(w, "cleared")
	}
}

func handleListRecent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeRecords(w, deps.Recent.List())
	}
}

func handleRecordView(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := decodeRecord(w, r, deps)
		if !ok {
			return
		}

		deps.Recent.Upsert(r.Context(), rec)

		if deps.Store != nil {
			event := storage.ViewEvent{
				ID:            uuid.New().String(),
				BehaviorSlug:  rec.BehaviorSlug,
				SituationSlug: rec.SituationSlug,
				VideoURL:      rec.VideoURL,
				ViewedAt:      time.Now().UTC(),
			}
			if err := deps.Store.SaveViewEvent(r.Context(), event); err != nil {
				slog.Error("recording view event", "error", err)
			}
		}

		writeStatus(w, "recorded")
	}
}

func handleClearRecent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Recent.Clear(r.Context())
		writeStatus(w, "cleared")
	}
}

func handleListViews(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		events := []storage.ViewEvent{}
		if deps.Store != nil {
			var err error
			events, err = deps.Store.ListViewEvents(r.Context(), limit, offset)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to list views: %v", err)
				return
			}
			if events == nil {
				events = []storage.ViewEvent{}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}
}

func handlePurgeViews(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store != nil {
			if err := deps.Store.PurgeViewEvents(r.Context()); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to purge views: %v", err)
				return
			}
		}
		writeStatus(w, "cleared")
	}
}

type dashboard struct {
	Favorites      []personalize.Record `json:"favorites"`
	RecentlyViewed []personalize.Record `json:"recentlyViewed"`
	Session        *session.Record      `json:"session,omitempty"`
}

func handleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := dashboard{
			Favorites:      nonNil(deps.Favorites.List()),
			RecentlyViewed: nonNil(deps.Recent.List()),
		}
		if rec, ok := deps.Sessions.Current(); ok {
			d.Session = &rec
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}

type loginRequest struct {
	Email string `json:"email"`
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		email := strings.TrimSpace(strings.ToLower(req.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid email address")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
		defer cancel()

		v, err := deps.Verifier.VerifyMember(ctx, email)
		if err != nil {
			slog.Error("membership verification failed", "error", err)
			httpError(w, http.StatusBadGateway, "connection_error", "unable to reach the membership service, check your connection and try again")
			return
		}
		if !v.IsVerified {
			httpError(w, http.StatusNotFound, "email_not_found", "no membership found for this email")
			return
		}
		if !v.HasActiveSubscription {
			httpError(w, http.StatusForbidden, "no_active_membership", "membership is not active")
			return
		}

		rec, err := deps.Sessions.Login(r.Context(), v.Email, v.LeadID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := deps.Sessions.Current()
		if !ok {
			httpError(w, http.StatusUnauthorized, "authentication_error", "no active session")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Sessions.Clear(r.Context())
		writeStatus(w, "signed_out")
	}
}

// handleKartraWebhook acknowledges every delivery with 200 so Kartra
// does not retry; a cancellation matching the signed-in member ends the
// local session.
func handleKartraWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var event kartra.WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			slog.Warn("undecodable webhook payload", "error", err)
			writeStatus(w, "received")
			return
		}

		slog.Info("kartra webhook", "action", event.Action, "email", event.Lead.Email)

		if event.Action == kartra.ActionCancelSubscription {
			if rec, ok := deps.Sessions.Current(); ok && strings.EqualFold(rec.Email, event.Lead.Email) {
				deps.Sessions.Clear(r.Context())
				slog.Info("session ended by subscription cancellation", "email", rec.Email)
			}
		}

		writeStatus(w, "received")
	}
}

// decodeRecord reads a personalization record from the request and
// resolves it against the catalog. The behavior and situation must name
// a real video.
func decodeRecord(w http.ResponseWriter, r *http.Request, deps Deps) (personalize.Record, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var rec personalize.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return personalize.Record{}, false
	}
	if rec.BehaviorSlug == "" || rec.SituationSlug == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "behavior and situation are required")
		return personalize.Record{}, false
	}

	entry, ok := deps.Catalog.LookupVideo(rec.BehaviorSlug, rec.SituationSlug)
	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "no video for %s/%s", rec.BehaviorSlug, rec.SituationSlug)
		return personalize.Record{}, false
	}

	rec.VideoURL = entry.VideoURL
	if rec.Title == "" {
		rec.Title = catalog.Title(rec.BehaviorSlug)
	}
	if rec.SituationTitle == "" {
		rec.SituationTitle = catalog.Title(rec.SituationSlug)
	}
	return rec, true
}

func writeRecords(w http.ResponseWriter, records []personalize.Record) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(nonNil(records))
}

func nonNil(records []personalize.Record) []personalize.Record {
	if records == nil {
		return []personalize.Record{}
	}
	return records
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
