package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/taskmanager/internal/application"
	"github.com/eugenenazirov/taskmanager/internal/config"
	"github.com/eugenenazirov/taskmanager/internal/logging"
	"github.com/eugenenazirov/taskmanager/internal/security"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("taskmanager", "TaskManager API - task tracking service with token authentication")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a dotenv file (default: nearest .env)").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()

	serveCmd := kingpinApp.Command("serve", "Run the HTTP API").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service").String()
	corsOrigins := serveCmd.Flag("cors-origins", "Comma-separated allowed CORS origins, * for any").String()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	hashCmd := kingpinApp.Command("hash-password", "Hash a password read from stdin")
	cost := hashCmd.Flag("cost", "bcrypt cost factor").Default(fmt.Sprint(security.DefaultCost)).Int()

	issueCmd := kingpinApp.Command("issue-token", "Issue a token for an identity using the configured secret")
	identity := issueCmd.Flag("identity", "Identity stored in the token subject").Required().String()
	refresh := issueCmd.Flag("refresh", "Issue a refresh token instead of an access token").Bool()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	if command == hashCmd.FullCommand() {
		if err := runHashPassword(os.Stdin, os.Stdout, *cost); err != nil {
			kingpinApp.Fatalf("hash-password: %v", err)
		}
		return
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *port != "" {
		overrides.Port = port
	}

	if *corsOrigins != "" {
		overrides.CORSOrigins = corsOrigins
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		if errors.Is(err, config.ErrMissingJWTSecret) {
			kingpinApp.Fatalf("%v: set JWT_SECRET_KEY in the environment or a .env file", err)
		}
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	if command == issueCmd.FullCommand() {
		if err := runIssueToken(cfg, *identity, *refresh, os.Stdout); err != nil {
			kingpinApp.Fatalf("issue-token: %v", err)
		}
		return
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// runHashPassword hashes the first line of in and writes the hash to out.
func runHashPassword(in io.Reader, out io.Writer, cost int) error {
	hasher, err := security.NewPasswordHasher(cost)
	if err != nil {
		return err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}

	hash, err := hasher.Hash(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, hash)
	return err
}

func runIssueToken(cfg config.Config, identity string, refresh bool, out io.Writer) error {
	tokens, err := security.NewTokenManager(cfg.JWTSecretKey,
		security.WithIssuer(cfg.JWTIssuer),
		security.WithLifetimes(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	)
	if err != nil {
		return err
	}

	var token string
	if refresh {
		token, err = tokens.CreateRefreshToken(identity)
	} else {
		token, err = tokens.CreateAccessToken(identity, false)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
