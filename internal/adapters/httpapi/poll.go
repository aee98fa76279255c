package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/livewatch/internal/app"
	"github.com/Guilhem-Bonnet/livewatch/internal/httpjson"
)

type PollHandler struct {
	poller *app.Poller
}

func NewPollHandler(poller *app.Poller) *PollHandler {
	return &PollHandler{poller: poller}
}

func (h *PollHandler) Routes(r chi.Router) {
	r.Post("/poll/run", h.run)
}

// run déclenche un passage synchrone. Aucun paramètre: la sélection des
// comptes dus se fait côté stockage.
func (h *PollHandler) run(w http.ResponseWriter, r *http.Request) {
	res, err := h.poller.RunOnce(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("run_id", res.RunID).Msg("poll run failed")
		httpjson.Write(w, http.StatusInternalServerError, res)
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}
