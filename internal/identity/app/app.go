// Package app wires the identity server together: configuration, store,
// signing keys, services, router, and lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightlock/identity/internal/identity/discovery"
	httpapi "github.com/brightlock/identity/internal/identity/http"
	"github.com/brightlock/identity/internal/identity/protocol"
	"github.com/brightlock/identity/internal/identity/response"
	"github.com/brightlock/identity/internal/identity/service"
	"github.com/brightlock/identity/internal/identity/session"
	"github.com/brightlock/identity/internal/identity/store"
	"github.com/brightlock/identity/internal/identity/store/drivers/sqlite"
	"github.com/brightlock/identity/internal/identity/token"
	"github.com/brightlock/identity/pkg/jwtx"
	"github.com/brightlock/identity/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application is the assembled identity server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager

	authorizeService   *service.AuthorizationService
	exchangeService    *service.TokenExchangeService
	applicationService *service.ApplicationService
	userService        *service.UserService
	housekeeping       *service.HousekeepingService
	sessionManager     *session.Manager
	credentialVerifier *session.CredentialVerifier
	discoveryService   *discovery.Service

	server *http.Server
	router *httpapi.Router
}

// New builds an Application with every dependency initialized. A server that
// cannot sign tokens refuses to start.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		RSABits:   cfg.RSABits,
		NumKeys:   cfg.NumKeys,
	})
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	// Fail closed on a broken provider configuration.
	if _, err := app.discoveryService.Metadata(); err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("provider configuration is not serveable: %w", err)
	}

	return app, nil
}

// Run starts the server and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("identity service starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, stops the workers, and closes the
// store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	clients := &protocol.StoreClientValidator{Store: app.db}
	scopes := protocol.DefaultScopeResolver{}

	credentials := token.KeyManagerSource{Keys: app.keyManager}
	tokens := token.NewManager(credentials, app.cfg.Issuer, app.lifetimes())

	app.sessionManager = session.NewManager(app.db)
	app.credentialVerifier = &session.CredentialVerifier{Store: app.db}

	app.authorizeService = &service.AuthorizationService{
		Store:     app.db,
		Validator: &protocol.AuthorizationValidator{Clients: clients, Scopes: scopes},
		Sessions:  app.sessionManager,
		Tokens:    tokens,
		Responses: response.AuthorizationResponseFactory{},
	}

	app.exchangeService = &service.TokenExchangeService{
		Store:     app.db,
		Validator: &protocol.TokenValidator{Clients: clients, Scopes: scopes},
		Tokens:    tokens,
		Responses: response.TokenResponseFactory{},
	}

	app.applicationService = &service.ApplicationService{Store: app.db}
	app.userService = &service.UserService{Store: app.db, Issuer: app.cfg.Issuer}

	app.discoveryService = &discovery.Service{
		Issuer:      app.cfg.Issuer,
		Keys:        app.keyManager,
		ExtraScopes: app.cfg.ExtraScopes,
	}

	app.housekeeping = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingInterval)
}

func (app *Application) initHTTP() {
	verifier := &jwtx.KeySetVerifier{Keys: app.keyManager.KeySet, Issuer: app.cfg.Issuer}

	router := httpapi.NewRouter(
		verifier,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.AuthorizeService = app.authorizeService
	router.ExchangeService = app.exchangeService
	router.ApplicationService = app.applicationService
	router.UserService = app.userService
	router.SessionManager = app.sessionManager
	router.CredentialVerifier = app.credentialVerifier
	router.DiscoveryService = app.discoveryService
	router.LogoutValidator = &protocol.LogoutValidator{
		Clients: &protocol.StoreClientValidator{Store: app.db},
	}
	router.SessionCookies = &httpapi.SessionCookies{
		Credentials: token.KeyManagerSource{Keys: app.keyManager},
		Issuer:      app.cfg.Issuer,
		Secure:      app.cfg.Env != "dev",
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// lifetimes folds the configured TTL overrides onto the defaults.
func (app *Application) lifetimes() token.Lifetimes {
	lifetimes := token.DefaultLifetimes
	if app.cfg.AuthorizationCodeTTL > 0 {
		lifetimes.AuthorizationCode = app.cfg.AuthorizationCodeTTL
	}
	if app.cfg.AccessTokenTTL > 0 {
		lifetimes.AccessToken = app.cfg.AccessTokenTTL
	}
	if app.cfg.RefreshTokenTTL > 0 {
		lifetimes.RefreshToken = app.cfg.RefreshTokenTTL
	}
	if app.cfg.IDTokenTTL > 0 {
		lifetimes.IDToken = app.cfg.IDTokenTTL
	}
	return lifetimes
}
