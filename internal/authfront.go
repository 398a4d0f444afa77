package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/authfront/authfront/internal/config"
	"github.com/authfront/authfront/internal/idp"
	"github.com/authfront/authfront/internal/lifecycle"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/server"
	"github.com/authfront/authfront/internal/storage"
)

// AuthFront represents the complete session-bound OAuth application
type AuthFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.Store
}

// NewAuthFront creates the application with all dependencies built
func NewAuthFront(ctx context.Context, cfg config.Config) (*AuthFront, error) {
	log.LogInfoWithFields("authfront", "Building application", map[string]any{
		"baseURL":  cfg.Server.BaseURL,
		"provider": cfg.Provider.Kind,
		"storage":  cfg.Storage.Kind,
	})

	// Cookie lifetimes must agree with the controller's session lifetimes,
	// so resolve defaults once here.
	if cfg.Sessions.PreAuthTTL <= 0 {
		cfg.Sessions.PreAuthTTL = 10 * time.Minute
	}
	if cfg.Sessions.AuthenticatedTTL <= 0 {
		cfg.Sessions.AuthenticatedTTL = 30 * 24 * time.Hour
	}

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, err := idp.NewProvider(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}

	controller := lifecycle.NewController(store, provider, lifecycle.Config{
		PreAuthTTL:          cfg.Sessions.PreAuthTTL,
		AuthenticatedTTL:    cfg.Sessions.AuthenticatedTTL,
		Rolling:             cfg.Sessions.Rolling,
		TokenExpiryOverride: cfg.Sessions.TokenExpiryOverride,
		ProviderTimeout:     cfg.Sessions.ProviderTimeout,
	})

	mux := buildHTTPHandler(cfg, store, provider, controller)
	httpServer := server.NewHTTPServer(mux, cfg.Server.Addr)

	return &AuthFront{
		config:     cfg,
		httpServer: httpServer,
		store:      store,
	}, nil
}

// Run starts the application and blocks until shutdown
func (a *AuthFront) Run() error {
	log.LogInfoWithFields("authfront", "Starting application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("authfront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("authfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("authfront", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("authfront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("authfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if err := a.store.Close(); err != nil {
		log.LogWarnWithFields("authfront", "Session store close error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("authfront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// setupStorage creates the session store based on configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Kind {
	case config.StorageKindRedis:
		rc := cfg.Storage.Redis
		log.LogInfoWithFields("storage", "Using Redis session store", map[string]any{
			"addr":      rc.Addr,
			"db":        rc.DB,
			"keyPrefix": rc.KeyPrefix,
		})
		store, err := storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:      rc.Addr,
			Username:  rc.Username,
			Password:  string(rc.Password),
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
		return store, nil

	case config.StorageKindFirestore:
		fc := cfg.Storage.Firestore
		log.LogInfoWithFields("storage", "Using Firestore session store", map[string]any{
			"project":    fc.ProjectID,
			"database":   fc.Database,
			"collection": fc.Collection,
		})
		store, err := storage.NewFirestoreStore(ctx, fc.ProjectID, fc.Database, fc.Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore store: %w", err)
		}
		return store, nil

	default:
		log.LogInfoWithFields("storage", "Using in-memory session store", map[string]any{})
		return storage.NewMemoryStore(), nil
	}
}

// buildHTTPHandler creates the complete HTTP handler with all routing and middleware
func buildHTTPHandler(
	cfg config.Config,
	store storage.Store,
	provider idp.Provider,
	controller *lifecycle.Controller,
) http.Handler {
	mux := http.NewServeMux()

	rootLogger := server.NewLoggerMiddleware("root")
	adminLogger := server.NewLoggerMiddleware("admin")
	recoverer := server.NewRecoverMiddleware("server")

	rootHandler := server.NewRootHandler(
		controller,
		provider.Type(),
		cfg.Sessions.CookieName,
		cfg.Sessions.PreAuthTTL,
		cfg.Sessions.AuthenticatedTTL,
		cfg.Sessions.Rolling,
	)

	mux.Handle("/", server.ChainMiddleware(rootHandler, rootLogger, recoverer))
	mux.Handle("/healthz", server.NewHealthHandler(controller.Health()))

	if cfg.Admin != nil {
		log.LogInfoWithFields("server", "Admin session inspection enabled", map[string]any{
			"username": cfg.Admin.Username,
		})
		adminHandler := server.NewAdminHandler(store, *cfg.Admin)
		mux.Handle("/admin/sessions", server.ChainMiddleware(adminHandler, adminLogger, recoverer))
	}

	log.LogInfoWithFields("server", "Server initialized", nil)
	return mux
}
