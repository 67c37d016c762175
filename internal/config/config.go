package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = "8080"
	defaultEnvFile         = ".env"
	defaultRateLimitRPS    = 25.0
	defaultRateLimitBurst  = 50
	defaultBcryptCost      = 12
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultLogLevel        = "info"
)

// ErrMissingJWTSecret is returned when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET_KEY must be set")

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables (.env included) > YAML config > Defaults
type Config struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
	LogLevel             string        `yaml:"log_level"`
	RateLimitRPS         float64       `yaml:"-"`
	RateLimitBurst       int           `yaml:"-"`

	JWTSecretKey    string        `yaml:"-"`
	JWTIssuer       string        `yaml:"-"`
	AccessTokenTTL  time.Duration `yaml:"-"`
	RefreshTokenTTL time.Duration `yaml:"-"`
	BcryptCost      int           `yaml:"-"`

	CORSAllowedOrigins []string `yaml:"-"`
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	LogLevel             string        `yaml:"log_level"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	JWT                  yamlJWT       `yaml:"jwt"`
	Bcrypt               yamlBcrypt    `yaml:"bcrypt"`
	CORS                 yamlCORS      `yaml:"cors"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// yamlJWT represents the token section in YAML. The signing secret is read
// from the environment only.
type yamlJWT struct {
	Issuer          string `yaml:"issuer"`
	AccessTokenTTL  string `yaml:"access_token_expires"`
	RefreshTokenTTL string `yaml:"refresh_token_expires"`
}

type yamlBcrypt struct {
	LogRounds int `yaml:"log_rounds"`
}

type yamlCORS struct {
	Origins []string `yaml:"origins"`
}

// envConfig lists the environment variables understood by the service.
// Pointer fields stay nil when the variable is unset.
type envConfig struct {
	Port                 *string        `envconfig:"PORT"`
	JWTSecretKey         *string        `envconfig:"JWT_SECRET_KEY"`
	JWTIssuer            *string        `envconfig:"JWT_ISSUER"`
	AccessTokenTTL       *time.Duration `envconfig:"JWT_ACCESS_TOKEN_EXPIRES"`
	RefreshTokenTTL      *time.Duration `envconfig:"JWT_REFRESH_TOKEN_EXPIRES"`
	BcryptCost           *int           `envconfig:"BCRYPT_LOG_ROUNDS"`
	CORSOrigins          *string        `envconfig:"CORS_ORIGINS"`
	RateLimitRPS         *float64       `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst       *int           `envconfig:"RATE_LIMIT_BURST"`
	LogLevel             *string        `envconfig:"LOG_LEVEL"`
	EnableRequestLogging *bool          `envconfig:"ENABLE_REQUEST_LOGGING"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	CORSOrigins    *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	LogLevel       *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables (.env included) > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	envFile := ""
	if overrides != nil {
		envFile = overrides.EnvFile
	}
	if err := loadDotEnv(envFile); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		LogLevel:             defaultLogLevel,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		AccessTokenTTL:       defaultAccessTokenTTL,
		RefreshTokenTTL:      defaultRefreshTokenTTL,
		BcryptCost:           defaultBcryptCost,
		CORSAllowedOrigins:   []string{"*"},
	}
}

// loadDotEnv populates the process environment from a dotenv file. Variables
// already present in the environment win. With no explicit path the default
// file is looked up from the working directory upwards and may be absent.
func loadDotEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}

	found, err := locateFile(defaultEnvFile)
	if err != nil {
		return nil
	}
	return godotenv.Load(found)
}

// locateFile finds name in the working directory or the closest parent that has it.
func locateFile(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", name)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
		{"jwt.access_token_expires", yamlCfg.JWT.AccessTokenTTL, &cfg.AccessTokenTTL},
		{"jwt.refresh_token_expires", yamlCfg.JWT.RefreshTokenTTL, &cfg.RefreshTokenTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.field = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if yamlCfg.JWT.Issuer != "" {
		cfg.JWTIssuer = yamlCfg.JWT.Issuer
	}

	if yamlCfg.Bcrypt.LogRounds != 0 {
		cfg.BcryptCost = yamlCfg.Bcrypt.LogRounds
	}

	if origins := cleanOrigins(yamlCfg.CORS.Origins); len(origins) > 0 {
		cfg.CORSAllowedOrigins = origins
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	var env envConfig
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	if env.Port != nil && strings.TrimSpace(*env.Port) != "" {
		cfg.Port = strings.TrimSpace(*env.Port)
	}
	if env.JWTSecretKey != nil {
		cfg.JWTSecretKey = *env.JWTSecretKey
	}
	if env.JWTIssuer != nil {
		cfg.JWTIssuer = strings.TrimSpace(*env.JWTIssuer)
	}
	if env.AccessTokenTTL != nil {
		cfg.AccessTokenTTL = *env.AccessTokenTTL
	}
	if env.RefreshTokenTTL != nil {
		cfg.RefreshTokenTTL = *env.RefreshTokenTTL
	}
	if env.BcryptCost != nil {
		cfg.BcryptCost = *env.BcryptCost
	}
	if env.CORSOrigins != nil {
		if origins := ParseOrigins(*env.CORSOrigins); len(origins) > 0 {
			cfg.CORSAllowedOrigins = origins
		}
	}
	if env.RateLimitRPS != nil {
		cfg.RateLimitRPS = *env.RateLimitRPS
	}
	if env.RateLimitBurst != nil {
		cfg.RateLimitBurst = *env.RateLimitBurst
	}
	if env.LogLevel != nil && strings.TrimSpace(*env.LogLevel) != "" {
		cfg.LogLevel = strings.TrimSpace(*env.LogLevel)
	}
	if env.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *env.EnableRequestLogging
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.CORSOrigins != nil {
		if origins := ParseOrigins(*overrides.CORSOrigins); len(origins) > 0 {
			cfg.CORSAllowedOrigins = origins
		}
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}
}

// Validate checks a fully resolved configuration. A missing signing secret is
// reported as ErrMissingJWTSecret.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.JWTSecretKey) == "" {
		return ErrMissingJWTSecret
	}
	if cfg.AccessTokenTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TOKEN_EXPIRES must be > 0")
	}
	if cfg.RefreshTokenTTL <= 0 {
		return fmt.Errorf("JWT_REFRESH_TOKEN_EXPIRES must be > 0")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_LOG_ROUNDS must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("CORS origins cannot be empty")
	}
	return nil
}

// ParseOrigins splits a comma-separated origin list, dropping blanks.
func ParseOrigins(raw string) []string {
	return cleanOrigins(strings.Split(raw, ","))
}

func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		out = append(out, origin)
	}
	return out
}
