package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/livewatch/internal/app"
	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/httpjson"
)

type SettingsHandler struct {
	settings *app.SettingsService
	onPut    func(domain.PollSettings)
}

func NewSettingsHandler(settings *app.SettingsService, onPut func(domain.PollSettings)) *SettingsHandler {
	return &SettingsHandler{settings: settings, onPut: onPut}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/settings", h.get)
	r.Put("/settings", h.put)
	// Variante avec slash final (utile selon reverse-proxy / clients).
	r.Get("/settings/", h.get)
	r.Put("/settings/", h.put)
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, s)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	// Champs absents = valeurs courantes.
	current, err := h.settings.Get(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s := current
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	updated, err := h.settings.Put(r.Context(), s)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.onPut != nil {
		h.onPut(updated)
	}
	httpjson.Write(w, http.StatusOK, updated)
}
