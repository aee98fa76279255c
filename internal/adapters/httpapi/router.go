package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/livewatch/internal/app"
	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

type Server struct {
	logger   zerolog.Logger
	poller   *app.Poller
	accounts *app.AccountService
	sessions *app.SessionQueryService
	settings *app.SettingsService
	bus      ports.EventBus
	// limiter est optionnel et permet d'appliquer accountConcurrency à chaud.
	limiter   *app.DynamicLimiter
	liveCache LiveCache
}

type Deps struct {
	Poller   *app.Poller
	Accounts *app.AccountService
	Sessions *app.SessionQueryService
	Settings *app.SettingsService
	Bus      ports.EventBus
	Limiter  *app.DynamicLimiter
	// LiveCache sert GET /live?source=redis; nil si Redis est désactivé.
	LiveCache LiveCache
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	return &Server{
		logger:    logger,
		poller:    deps.Poller,
		accounts:  deps.Accounts,
		sessions:  deps.Sessions,
		settings:  deps.Settings,
		bus:       deps.Bus,
		limiter:   deps.Limiter,
		liveCache: deps.LiveCache,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Le flux SSE reste ouvert: pas de timeout global sur lui.
		if s.bus != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.poller != nil {
				NewPollHandler(s.poller).Routes(r)
			}
			if s.accounts != nil {
				NewAccountsHandler(s.accounts, s.sessions).Routes(r)
			}
			if s.sessions != nil {
				NewLiveHandler(s.sessions, s.liveCache).Routes(r)
			}
			if s.settings != nil {
				NewSettingsHandler(s.settings, func(updated domain.PollSettings) {
					if s.limiter != nil {
						s.limiter.SetLimit(updated.AccountConcurrency)
					}
				}).Routes(r)
			}
		})
	})

	return r
}
