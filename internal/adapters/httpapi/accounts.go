package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/redislive"
	"github.com/Guilhem-Bonnet/livewatch/internal/app"
	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/httpjson"
)

type AccountsHandler struct {
	accounts *app.AccountService
	// sessions est optionnel (sous-routes /sessions et /events).
	sessions *app.SessionQueryService
}

func NewAccountsHandler(accounts *app.AccountService, sessions *app.SessionQueryService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, sessions: sessions}
}

func (h *AccountsHandler) Routes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}/enabled", h.setEnabled)
		if h.sessions != nil {
			r.Get("/{id}/sessions", h.sessionsOf)
			r.Get("/{id}/events", h.eventsOf)
		}
	})
}

func (h *AccountsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}

	acct, err := h.accounts.Create(r.Context(), req)
	if err != nil {
		var verr *app.ValidationError
		switch {
		case errors.As(err, &verr):
			httpjson.WriteError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, app.ErrConflict):
			httpjson.WriteError(w, http.StatusConflict, "account already exists")
		default:
			httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	httpjson.Write(w, http.StatusCreated, acct)
}

func (h *AccountsHandler) list(w http.ResponseWriter, r *http.Request) {
	accts, err := h.accounts.List(r.Context(), queryLimit(r, 500, 5000))
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, accts)
}

func (h *AccountsHandler) get(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, acct)
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *AccountsHandler) setEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		httpjson.WriteError(w, http.StatusBadRequest, "expected {\"enabled\": bool}")
		return
	}
	acct, err := h.accounts.SetEnabled(r.Context(), chi.URLParam(r, "id"), *req.Enabled)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, acct)
}

func (h *AccountsHandler) sessionsOf(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.accounts.Get(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}
	out, err := h.sessions.AccountSessions(r.Context(), id, queryLimit(r, 50, 1000))
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *AccountsHandler) eventsOf(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.accounts.Get(r.Context(), id); err != nil {
		writeLookupError(w, err)
		return
	}
	out, err := h.sessions.AccountEvents(r.Context(), id, queryLimit(r, 100, 5000))
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrNotFound) {
		httpjson.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
}

// LiveCache est la projection Redis des sessions ouvertes (optionnelle).
type LiveCache interface {
	List(ctx context.Context, p domain.Platform) ([]redislive.Entry, error)
}

type LiveHandler struct {
	sessions *app.SessionQueryService
	cache    LiveCache
}

func NewLiveHandler(sessions *app.SessionQueryService, cache LiveCache) *LiveHandler {
	return &LiveHandler{sessions: sessions, cache: cache}
}

func (h *LiveHandler) Routes(r chi.Router) {
	r.Get("/live", h.list)
}

func (h *LiveHandler) list(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("source") {
	case "", "db":
	case "redis":
		h.listCached(w, r)
		return
	default:
		httpjson.WriteError(w, http.StatusBadRequest, "source must be db or redis")
		return
	}

	out, err := h.sessions.Live(r.Context(), queryLimit(r, 500, 5000))
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

// listCached lit la vue Redis, sans passer par la base.
func (h *LiveHandler) listCached(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "live cache disabled")
		return
	}
	platforms := domain.Platforms()
	if raw := r.URL.Query().Get("platform"); raw != "" {
		p, err := domain.ParsePlatform(raw)
		if err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		platforms = []domain.Platform{p}
	}

	out := make([]redislive.Entry, 0)
	for _, p := range platforms {
		entries, err := h.cache.List(r.Context(), p)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("platform", string(p)).Msg("live cache read failed")
			httpjson.WriteError(w, http.StatusBadGateway, "live cache unavailable")
			return
		}
		out = append(out, entries...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].AccountID < out[j].AccountID
	})
	httpjson.Write(w, http.StatusOK, out)
}
