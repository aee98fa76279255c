package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/platforms"
	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/postgres"
	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/redislive"
	"github.com/Guilhem-Bonnet/livewatch/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/livewatch/internal/app"
	"github.com/Guilhem-Bonnet/livewatch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/livewatch/internal/config"
	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

// storage regroupe les repositories du backend choisi (SQLite ou PostgreSQL).
type storage struct {
	accounts ports.AccountRepository
	sessions ports.SessionRepository
	events   ports.StatusEventRepository
	settings ports.SettingsRepository
	close    func()
}

func main() {
	envFile, envErr := config.LoadDotEnv()

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}
	addr := flag.String("addr", cfg.Addr, "Adresse d'écoute (ex: 127.0.0.1:8080)")
	dbPath := flag.String("db", cfg.DBPath, "Chemin SQLite (ignoré si DATABASE_URL est défini)")
	once := flag.Bool("once", false, "Exécute un seul passage de polling, affiche le résultat et quitte")
	flag.Parse()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("app", "livewatch-server").Logger()
	log.Logger = logger

	if envErr != nil {
		logger.Warn().Err(envErr).Msg("env file not loaded")
	} else if envFile != "" {
		logger.Info().Str("env_file", envFile).Msg("env file loaded")
	}
	if cfgErr != nil {
		logger.Fatal().Err(cfgErr).Msg("invalid configuration")
	}
	cfg.Addr = *addr
	cfg.DBPath = *dbPath

	logger.Info().Interface("build", buildinfo.Current()).Bool("postgres", cfg.DatabaseURL != "").Msg("starting")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(shutdownCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.close()

	// Vue Redis optionnelle: son absence ne bloque pas le polling.
	var (
		view      ports.LiveView
		liveCache httpapi.LiveCache
	)
	if cfg.RedisURL != "" {
		rdb, err := openRedis(shutdownCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, live view disabled")
		} else {
			defer func() { _ = rdb.Close() }()
			rv := redislive.New(rdb, "")
			view, liveCache = rv, rv
			logger.Info().Msg("redis live view enabled")
		}
	}

	bus := memorybus.New()
	defer bus.Close()

	settingsSvc := app.NewSettingsService(store.settings)
	limiter := app.NewDynamicLimiter(domain.DefaultPollSettings().AccountConcurrency)
	if s, err := settingsSvc.Get(shutdownCtx); err == nil {
		limiter.SetLimit(s.AccountConcurrency)
	}

	client := platforms.NewHTTPClient(cfg.HTTPTimeout)
	adapters := platforms.NewRegistry(platformsConfig(cfg), client, logger)

	reconciler := app.NewReconciler(store.sessions, store.events, bus)
	opts := app.DefaultPollerOptions()
	opts.AdapterTimeout = cfg.Poll.AdapterTimeout
	poller := app.NewPoller(
		logger.With().Str("component", "poller").Logger(),
		store.accounts, adapters, reconciler, settingsSvc, limiter, bus, view, opts,
	)

	if *once {
		ctx, cancel := context.WithTimeout(shutdownCtx, cfg.Poll.RunTimeout)
		defer cancel()
		res, err := poller.RunOnce(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		if err != nil {
			logger.Error().Err(err).Msg("poll run failed")
			cancel()
			store.close()
			os.Exit(1)
		}
		return
	}

	if cfg.Poll.Scheduler {
		scheduler := app.NewPollScheduler(logger.With().Str("component", "scheduler").Logger(), poller)
		scheduler.TickInterval = cfg.Poll.TickInterval
		scheduler.RunTimeout = cfg.Poll.RunTimeout
		go scheduler.Run(shutdownCtx)
	}

	srv := httpapi.NewServer(logger, httpapi.Deps{
		Poller:   poller,
		Accounts: app.NewAccountService(store.accounts, bus),
		Sessions: app.NewSessionQueryService(store.sessions, store.events),
		Settings: settingsSvc,
		Bus:      bus,
		Limiter:  limiter,
		// Nil sans Redis: /live?source=redis répond 503.
		LiveCache: liveCache,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}

func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return storage{}, err
		}
		if err := postgres.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return storage{}, err
		}
		pg := postgres.NewStore(pool)
		return storage{
			accounts: pg.Accounts,
			sessions: pg.Sessions,
			events:   pg.Events,
			settings: pg.Settings,
			close:    pool.Close,
		}, nil
	}

	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return storage{}, err
	}
	return storage{
		accounts: sqlite.NewAccountsRepository(db.SQL),
		sessions: sqlite.NewSessionsRepository(db.SQL),
		events:   sqlite.NewStatusEventsRepository(db.SQL),
		settings: sqlite.NewSettingsRepository(db.SQL),
		close:    func() { _ = db.Close() },
	}, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func platformsConfig(cfg config.Config) platforms.Config {
	return platforms.Config{
		Twitch: platforms.TwitchConfig{
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
			Concurrency:  cfg.Twitch.Concurrency,
		},
		YouTube: platforms.YouTubeConfig{
			APIKey:          cfg.YouTube.APIKey,
			FeedConcurrency: cfg.YouTube.FeedConcurrency,
			FreshnessWindow: cfg.YouTube.FreshnessWindow,
			MaxCandidates:   cfg.YouTube.MaxCandidates,
		},
		Kick: platforms.KickConfig{
			Concurrency: cfg.Kick.Concurrency,
			ChunkDelay:  cfg.Kick.ChunkDelay,
		},
	}
}
