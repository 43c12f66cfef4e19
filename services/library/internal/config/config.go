package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DefaultLoginRateLimitPerMinute applies when loginRateLimitPerMinute is absent.
const DefaultLoginRateLimitPerMinute = 10

// SeedUser is an account created when the user table is empty.
type SeedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseDriver string `yaml:"databaseDriver"`
	DatabaseURL    string `yaml:"databaseURL"`

	JWTSigningKey       string            `yaml:"jwtSigningKey"`
	JWTPrivateKeyPath   string            `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath    string            `yaml:"jwtPublicKeyPath"`
	JWTKeyID            string            `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys map[string]string `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer           string            `yaml:"jwtIssuer"`
	JWTAudience         string            `yaml:"jwtAudience"`
	JWTLeeway           string            `yaml:"jwtLeeway"`
	SessionTTL          string            `yaml:"sessionTTL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	RabbitURL         string `yaml:"rabbitURL"`
	EventsExchange    string `yaml:"eventsExchange"`
	EventsRedisStream string `yaml:"eventsRedisStream"`

	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute *int     `yaml:"loginRateLimitPerMinute"`
	ExposeErrorDetail       bool     `yaml:"exposeErrorDetail"`

	SeedUsers []SeedUser `yaml:"seedUsers"`
}

// Load reads config from path (defaults to $LIBRARY_CONFIG, then config.yaml).
// A .env file in the working directory is loaded first when present.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("LIBRARY_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	if v := os.Getenv("LIBRARY_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LIBRARY_DATABASE_DRIVER"); v != "" {
		cfg.DatabaseDriver = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.JWTSigningKey = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitURL = v
	}
	if v := os.Getenv("LIBRARY_EVENTS_REDIS_STREAM"); v != "" {
		cfg.EventsRedisStream = v
	}
	if v := os.Getenv("LIBRARY_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("LIBRARY_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: LIBRARY_LOGIN_RATE_LIMIT_PER_MINUTE %q is not an integer", v)
		}
		cfg.LoginRateLimitPerMinute = &n
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverPostgres
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.LoginRateLimitPerMinute == nil {
		n := DefaultLoginRateLimitPerMinute
		cfg.LoginRateLimitPerMinute = &n
	}
	for i := range cfg.SeedUsers {
		cfg.SeedUsers[i].Username = strings.TrimSpace(cfg.SeedUsers[i].Username)
		cfg.SeedUsers[i].Role = strings.ToLower(strings.TrimSpace(cfg.SeedUsers[i].Role))
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: databaseDriver %q must be postgres, sqlite or memory", cfg.DatabaseDriver)
	}
	if cfg.JWTSigningKey == "" && cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtSigningKey or jwtPrivateKeyPath is required (set in config.yaml or JWT_SIGNING_KEY)")
	}
	if cfg.JWTSigningKey != "" && len(cfg.JWTSigningKey) < 32 {
		return errors.New("config: jwtSigningKey must be at least 32 bytes")
	}
	if _, err := cfg.JWTLeewayDuration(); err != nil {
		return err
	}
	if _, err := cfg.SessionTTLDuration(); err != nil {
		return err
	}
	if cfg.LoginRateLimit() < 0 {
		return errors.New("config: loginRateLimitPerMinute must not be negative")
	}
	for i, u := range cfg.SeedUsers {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("config: seedUsers[%d] needs username and password", i)
		}
		if u.Role != "admin" && u.Role != "user" {
			return fmt.Errorf("config: seedUsers[%d].role must be admin or user", i)
		}
	}
	return nil
}

// LoginRateLimit returns the login attempts allowed per client per minute.
// Zero disables throttling.
func (c FileConfig) LoginRateLimit() int {
	if c.LoginRateLimitPerMinute == nil {
		return DefaultLoginRateLimitPerMinute
	}
	return *c.LoginRateLimitPerMinute
}

// JWTLeewayDuration parses jwtLeeway; empty means the session store default.
func (c FileConfig) JWTLeewayDuration() (time.Duration, error) {
	return parseDuration("jwtLeeway", c.JWTLeeway)
}

// SessionTTLDuration parses sessionTTL; empty means the session store default.
func (c FileConfig) SessionTTLDuration() (time.Duration, error) {
	return parseDuration("sessionTTL", c.SessionTTL)
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: %s %q is not a valid duration", field, raw)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
