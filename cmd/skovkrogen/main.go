package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skovkrogen/internal/api"
	"skovkrogen/internal/auth"
	"skovkrogen/internal/booking"
	"skovkrogen/internal/bot"
	"skovkrogen/internal/config"
	"skovkrogen/internal/database"
	"skovkrogen/internal/events"
	"skovkrogen/internal/google"
	"skovkrogen/internal/metrics"
	"skovkrogen/internal/postgres"
	"skovkrogen/internal/selection"
	"skovkrogen/internal/supabase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// pinger reports whether a dependency is reachable.
type pinger func(ctx context.Context) error

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	repo, ready, closeStore, err := openStore(ctx, cfg, rdb, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("open booking store")
	}
	defer closeStore()
	if rdb != nil {
		ready = append(ready, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	authn, verifier := newAuthenticator(cfg)

	bus := events.NewEventBus()
	if cfg.NATS.URL != "" {
		conn, err := events.DialNATS(cfg.NATS.URL, "skovkrogen")
		if err != nil {
			logger.Error().Err(err).Msg("NATS unavailable, events stay local")
		} else {
			fwd := events.NewNATSForwarder(conn, cfg.NATS.SubjectPrefix, logger)
			fwd.Attach(bus)
			defer fwd.Close()
		}
	}

	household, err := config.LoadHousehold(cfg.App.HouseholdPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.App.HouseholdPath).Msg("load household")
	}

	svc := booking.NewService(repo, bus, booking.Options{
		Roster:           household.RosterNames(),
		Checklist:        household.Template(),
		Location:         cfg.Location(),
		HorizonMonths:    cfg.App.HorizonMonths,
		EnforceExclusive: cfg.App.EnforceExclusive,
	}, logger)

	var sheets *google.SheetsService
	if cfg.Google.Enabled {
		values, err := google.NewValuesAPI(ctx, cfg.Google.CredentialsFile)
		if err != nil {
			logger.Error().Err(err).Msg("Google Sheets disabled")
		} else {
			sheets = google.NewSheetsService(values, cfg.Google.SpreadsheetID, cfg.Google.SheetName, household.Template(), &logger)
			mirror := google.NewMirror(sheets, repo, svc.Today, 90, &logger)
			mirror.Attach(bus)
			go mirror.Run(ctx)
		}
	}

	selections := newSelectionStore(ctx, cfg, rdb, &logger)

	var tgBot *bot.Bot
	if cfg.Telegram.Enabled {
		var issuer bot.TokenIssuer
		if verifier != nil {
			issuer = verifier
		}
		tgBot, err = bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, svc, selections, household, issuer, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot")
		}
	}

	go func() {
		err := config.WatchHousehold(ctx, cfg.App.HouseholdPath, cfg.ReloadInterval(), &logger, func(h *config.Household) {
			svc.SetHousehold(h.RosterNames(), h.Template())
			if sheets != nil {
				sheets.SetChecklist(h.Template())
			}
			if tgBot != nil {
				tgBot.SetHousehold(h)
			}
		})
		if err != nil {
			logger.Error().Err(err).Msg("household watcher stopped")
		}
	}()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ready, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(cfg.HTTP.Address, svc, selections, authn, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		ResetRedirect:  cfg.HTTP.ResetRedirect,
	}, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP API stopped")
			stop()
		}
	}()

	if tgBot != nil {
		tgBot.StartReminders(ctx, cfg.Telegram.ReminderHour)
		go tgBot.Start(ctx)
	}

	logger.Info().Str("driver", cfg.Store.Driver).Bool("telegram", tgBot != nil).Msg("skovkrogen started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP API shutdown")
	}
	logger.Info().Msg("skovkrogen stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Log.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// openStore connects the configured booking store and returns its readiness
// checks and a close function.
func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) (booking.Repository, []pinger, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		store := postgres.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		return store, []pinger{store.Ping}, store.Close, nil

	case config.DriverSupabase:
		client := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.Table, cfg.SupabaseTimeout())
		if rdb != nil && cfg.SupabaseCacheTTL() > 0 {
			client.UseRedisCache(rdb, cfg.SupabaseCacheTTL())
		}
		return client, []pinger{client.HealthCheck}, func() {}, nil

	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Backup.Enabled {
			go database.NewBackupService(db, cfg.Backup, logger).Start(ctx)
		}
		return db, []pinger{db.PingContext}, func() { _ = db.Close() }, nil
	}
}

// newAuthenticator uses GoTrue when Supabase is configured and local token
// verification otherwise. The returned verifier can mint tokens and is nil
// when no JWT secret is set.
func newAuthenticator(cfg *config.Config) (auth.Authenticator, *auth.JWTVerifier) {
	var verifier *auth.JWTVerifier
	if cfg.Supabase.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.Supabase.JWTSecret, "authenticated")
	}
	if cfg.Supabase.URL != "" && cfg.Supabase.AnonKey != "" {
		client := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.Table, cfg.SupabaseTimeout())
		return supabase.NewAuth(client, verifier), verifier
	}
	if verifier == nil {
		// Nothing can be verified without a secret; every request is rejected.
		return auth.VerifierOnly{JWTVerifier: auth.NewJWTVerifier("", "authenticated")}, nil
	}
	return auth.VerifierOnly{JWTVerifier: verifier}, verifier
}

// newSelectionStore prefers Redis so selections survive restarts and are
// shared between replicas, falling back to memory while Redis is down.
func newSelectionStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) selection.Store {
	mem := selection.NewMemoryStore(cfg.SelectionTimeout())
	go mem.RunCleanup(ctx, cfg.SelectionCleanupInterval())
	if rdb == nil {
		return mem
	}
	return selection.NewFailoverStore(selection.NewRedisStore(rdb, cfg.SelectionTimeout()), mem, logger)
}

func startHealthServer(ctx context.Context, port int, checks []pinger, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctxPing); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
