package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-service/internal/config"
	"identity-service/internal/database"
	"identity-service/internal/event"
	"identity-service/internal/handler"
	"identity-service/internal/keys"
	"identity-service/internal/middleware"
	"identity-service/internal/password"
	"identity-service/internal/repository"
	"identity-service/internal/router"
	"identity-service/internal/service"
	"identity-service/internal/token"
)

type App struct {
	server       *http.Server
	keys         *keys.Provider
	cleanupFuncs []func()
}

// New wires the service from cfg. Key material problems are returned
// here and abort startup.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	keyProvider, err := keys.New(cfg.KeyConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}
	slog.Info("signing keys loaded", "source", keyProvider.Source().String(), "alg", keyProvider.Method().Alg())

	var (
		users    service.UserStore
		recorder event.Recorder
		db       *database.DB
		cleanup  []func()
	)
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set; users are kept in memory and lost on restart")
		users = repository.NewMemoryUserRepository()
	} else {
		slog.Info("connecting to PostgreSQL")
		db, err = database.New(ctx, cfg.DatabaseURL, database.Options{
			MaxConns:        int32(cfg.DBMaxConns),
			MinConns:        int32(cfg.DBMinConns),
			ConnectAttempts: uint64(cfg.DBConnectAttempts),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		users = repository.NewUserRepository(db.Pool)
		recorder = repository.NewAuditRepository(db.Pool)
		cleanup = append(cleanup, db.Close)
		slog.Info("database ready")
	}

	hasher := password.NewHasher(password.Params{
		Memory:      uint32(cfg.Argon2MemoryKB),
		Iterations:  uint32(cfg.Argon2Iterations),
		Parallelism: uint8(cfg.Argon2Parallelism),
	}, cfg.HashWorkers)

	tokens := token.NewService(keyProvider,
		token.WithAccessTTL(cfg.JWTAccessTTL),
		token.WithRefreshTTL(cfg.JWTRefreshTTL),
	)

	bus := event.NewBus()
	bus.OnDrop(func(e event.Event) {
		slog.Warn("audit event dropped", "event", string(e.Type))
	})
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go event.RunAuditLog(auditCtx, bus, slog.Default().With("component", "audit"), recorder)
	cleanup = append(cleanup, stopAudit)

	authService, err := service.NewAuthService(ctx, users, hasher, tokens, bus)
	if err != nil {
		for _, fn := range cleanup {
			fn()
		}
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	var healthHandler *handler.HealthHandler
	if db != nil {
		healthHandler = handler.NewHealthHandler(db)
	} else {
		healthHandler = handler.NewHealthHandler(nil)
	}

	appRouter := router.New(cfg,
		middleware.NewAuthMiddleware(tokens),
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(authService),
		healthHandler,
	)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		keys:         keyProvider,
		cleanupFuncs: cleanup,
	}, nil
}

// Run serves until SIGINT or SIGTERM. SIGHUP reloads the signing keys.
func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	var runErr error
wait:
	for {
		select {
		case <-reload:
			if err := a.keys.Reload(); err != nil {
				slog.Error("signing key reload failed; keeping previous keys", "error", err)
			}
		case err, ok := <-serveErr:
			if ok && err != nil {
				runErr = fmt.Errorf("server failed: %w", err)
			}
			break wait
		case sig := <-stop:
			slog.Info("shutdown signal received", "signal", sig.String())
			break wait
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("server stopped")
	return nil
}
