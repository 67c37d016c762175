package application

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/taskmanager/internal/api"
	"github.com/eugenenazirov/taskmanager/internal/config"
	"github.com/eugenenazirov/taskmanager/internal/security"
	"github.com/eugenenazirov/taskmanager/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	hasher  *security.PasswordHasher
	tokens  *security.TokenManager
	handler *api.Handler
	router  *api.Router
	logger  *zap.Logger
	server  *http.Server
}

// New builds the application from cfg: password hashing, CORS for every route and
// token issuance keyed by the configured secret. It fails when the secret is
// missing or any capability cannot be built.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.JWTSecretKey) == "" {
		return nil, config.ErrMissingJWTSecret
	}

	hasher, err := security.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}

	revocations := storage.NewMemoryRevocationStore()
	tokens, err := security.NewTokenManager(cfg.JWTSecretKey,
		security.WithIssuer(cfg.JWTIssuer),
		security.WithLifetimes(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		security.WithRevocationStore(revocations),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	handler := api.NewHandler(tokens)
	router := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	)

	logger.Info("application initialized",
		zap.Int("bcrypt_cost", hasher.Cost()),
		zap.Strings("cors_origins", cfg.CORSAllowedOrigins),
		zap.Duration("access_token_ttl", cfg.AccessTokenTTL),
		zap.Duration("refresh_token_ttl", cfg.RefreshTokenTTL),
	)

	return &App{
		hasher:  hasher,
		tokens:  tokens,
		handler: handler,
		router:  router,
		logger:  logger,
		server:  NewServer(cfg, router),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Hasher returns the password hashing capability.
func (a *App) Hasher() *security.PasswordHasher {
	return a.hasher
}

// Tokens returns the token manager.
func (a *App) Tokens() *security.TokenManager {
	return a.tokens
}

// Handle registers a public route behind the shared middleware.
func (a *App) Handle(pattern string, h http.Handler) {
	a.router.Handle(pattern, h)
}

// HandleProtected registers a route that requires a valid access token.
func (a *App) HandleProtected(pattern string, h http.Handler) {
	a.router.HandleProtected(pattern, h)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Start binds the listener synchronously, so a port conflict is reported to the
// caller, then serves in a goroutine.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	go func() {
		a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
