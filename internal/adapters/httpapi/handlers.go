package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/livewatch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/livewatch/internal/httpjson"
)

// Un passage complet peut prendre plusieurs dizaines de secondes (timeout adapter 45s).
const defaultRequestTimeout = 2 * time.Minute

type healthResponse struct {
	Status  string        `json:"status"`
	Events  *eventsHealth `json:"events,omitempty"`
	Limiter *limiterStats `json:"limiter,omitempty"`
}

type eventsHealth struct {
	Subscribers int   `json:"subscribers"`
	Dropped     int64 `json:"dropped"`
}

type limiterStats struct {
	Limit    int `json:"limit"`
	InFlight int `json:"inFlight"`
}

// busStats est implémenté par memorybus.Bus.
type busStats interface {
	Subscribers() int
	Dropped() int64
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if bs, ok := s.bus.(busStats); ok {
		resp.Events = &eventsHealth{Subscribers: bs.Subscribers(), Dropped: bs.Dropped()}
	}
	if s.limiter != nil {
		resp.Limiter = &limiterStats{Limit: s.limiter.Limit(), InFlight: s.limiter.InFlight()}
	}
	httpjson.Write(w, http.StatusOK, resp)
}

// queryLimit lit ?limit=, borné à [1, max] (def si absent ou invalide).
func queryLimit(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("route", routePattern(r)).
		Msg("http")
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
