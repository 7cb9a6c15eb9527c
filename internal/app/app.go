package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/auth"
	"github.com/anandk/vidya-server/internal/config"
	"github.com/anandk/vidya-server/internal/memory"
	"github.com/anandk/vidya-server/internal/prompts"
	"github.com/anandk/vidya-server/internal/rag"
	"github.com/anandk/vidya-server/internal/ratelimit"
	"github.com/anandk/vidya-server/internal/roomengine"
	"github.com/anandk/vidya-server/internal/roomengine/livekit"
	"github.com/anandk/vidya-server/internal/session"
	"github.com/anandk/vidya-server/internal/store"
	"github.com/anandk/vidya-server/internal/store/postgres"
	"github.com/anandk/vidya-server/internal/summarize"
	transporthttp "github.com/anandk/vidya-server/internal/transport/http"
)

const janitorInterval = time.Minute

// App wires together the coordinator, memory services, and transport.
type App struct {
	server          *stdhttp.Server
	limiter         *ratelimit.Limiter
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
// Optional backends (database, summarizer, knowledge store) are wired
// only when configured; the connection endpoint works without them.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	var engine roomengine.Engine
	missingVar := cfg.MissingLiveKitVar()
	if missingVar == "" {
		engine = livekit.New(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	} else {
		logger.Warn().Str("variable", missingVar).Msg("livekit not configured, connection requests will fail")
	}

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow)

	var coordinator *session.Coordinator
	if engine != nil {
		coordinator = session.NewCoordinator(engine, limiter, session.Options{
			RoomEmptyTimeout:    cfg.RoomEmptyTimeout,
			RoomMaxParticipants: cfg.RoomMaxParticipants,
			TokenTTL:            cfg.TokenTTL,
			DeleteSettleDelay:   cfg.DeleteSettleDelay,
			LockGrace:           cfg.SetupLockGrace,
		}, logger)
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		st = pg
		logger.Info().Msg("database connected")
	} else {
		logger.Warn().Msg("no database configured, memory and admin routes disabled")
	}

	var ragClient *rag.Client
	if cfg.LightRAGURL != "" {
		ragClient = rag.New(cfg.LightRAGURL, cfg.LightRAGAPIKey)
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if ragClient.Healthy(healthCtx) {
			logger.Info().Str("url", cfg.LightRAGURL).Msg("knowledge store reachable")
		} else {
			logger.Warn().Str("url", cfg.LightRAGURL).Msg("knowledge store not reachable, mirroring will retry per turn")
		}
		cancel()
	}

	var memorySvc *memory.Service
	if st != nil {
		memorySvc = memory.NewService(st, ragClient, logger)
	}

	var summarizer *summarize.Summarizer
	if cfg.GeminiAPIKey != "" {
		var err error
		summarizer, err = summarize.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to init summarizer, sessions will close without summaries")
		}
	}

	handlers := transporthttp.Handlers{
		Connection: transporthttp.NewConnectionHandlers(coordinator, missingVar, logger),
	}

	if memorySvc != nil && cfg.AgentAPIKey != "" {
		handlers.Memory = transporthttp.NewMemoryHandlers(memorySvc, prompts.DefaultConfig(), logger)
	}

	if cfg.AdminPassword != "" && cfg.JWTSecret != "" {
		authService := auth.NewService(cfg.AdminPassword, &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		handlers.Admin = transporthttp.NewAdminHandlers(authService, st, engine, logger)
	}

	if cfg.WebhookEnabled && missingVar == "" && memorySvc != nil {
		handlers.Webhook = transporthttp.NewWebhookHandlers(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, memorySvc, summarizer, logger)
	}

	server := transporthttp.NewServer(cfg, handlers, logger)

	return &App{
		server:          server,
		limiter:         limiter,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// a fatal server error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.limiter.Run(ctx, janitorInterval)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

func (a *App) cleanup() {
	if a.store != nil {
		a.store.Close()
		a.log.Info().Msg("store closed")
	}
}
