package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	UpstreamURL     string        `validate:"required,url"`
	UpstreamTimeout time.Duration `validate:"gte=0"`

	DefaultRouteColor string        `validate:"required,hexcolor"`
	SessionCookie     string        `validate:"required,max=64"`
	SessionTTL        time.Duration `validate:"gt=0"`
	MaxUploadBytes    int64         `validate:"gt=0"`
	CORSOrigins       []string      `validate:"dive,required"`

	RedisEnabled  bool
	RedisAddr     string `validate:"required_if=RedisEnabled true"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	RateLimitPerWindow int           `validate:"gt=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string      `validate:"dive,ip"`
}

// fileConfig mirrors Config for YAML files; durations are strings there.
type fileConfig struct {
	LogLevel           string   `yaml:"log_level"`
	HTTPAddr           string   `yaml:"http_addr"`
	ReadTimeout        string   `yaml:"read_timeout"`
	WriteTimeout       string   `yaml:"write_timeout"`
	ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	UpstreamURL        string   `yaml:"upstream_url"`
	UpstreamTimeout    string   `yaml:"upstream_timeout"`
	DefaultRouteColor  string   `yaml:"default_route_color"`
	SessionCookie      string   `yaml:"session_cookie"`
	SessionTTL         string   `yaml:"session_ttl"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RedisEnabled       *bool    `yaml:"redis_enabled"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            *int     `yaml:"redis_db"`
	RateLimitPerWindow int      `yaml:"rate_limit_per_window"`
	RateLimitWindow    string   `yaml:"rate_limit_window"`
	RateLimitWhitelist []string `yaml:"rate_limit_whitelist"`
}

// Load reads .env files, then the optional YAML file named by CONFIG_FILE,
// then environment variables, which win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel:        slog.LevelInfo,
		HTTPAddr:        ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    0,
		ShutdownTimeout: 30 * time.Second,

		DefaultRouteColor: "#3388ff",
		SessionCookie:     "gtfsviewer_session",
		SessionTTL:        12 * time.Hour,
		MaxUploadBytes:    200 << 20,

		RedisAddr: "localhost:6379",

		RateLimitPerWindow: 10,
		RateLimitWindow:    time.Minute,
	}
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getLogLevelEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.ReadTimeout = getDurationEnv("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getDurationEnv("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.UpstreamURL = getEnv("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.UpstreamTimeout = getDurationEnv("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)

	cfg.DefaultRouteColor = getEnv("DEFAULT_ROUTE_COLOR", cfg.DefaultRouteColor)
	cfg.SessionCookie = getEnv("SESSION_COOKIE", cfg.SessionCookie)
	cfg.SessionTTL = getDurationEnv("SESSION_TTL", cfg.SessionTTL)
	cfg.MaxUploadBytes = int64(getIntEnv("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	if origins := getCSVEnv("CORS_ORIGINS"); origins != nil {
		cfg.CORSOrigins = origins
	}

	cfg.RedisEnabled = getBoolEnv("REDIS_ENABLED", cfg.RedisEnabled)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getIntEnv("REDIS_DB", cfg.RedisDB)

	cfg.RateLimitPerWindow = getIntEnv("RATE_LIMIT_PER_WINDOW", cfg.RateLimitPerWindow)
	cfg.RateLimitWindow = getDurationEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	if wl := getCSVEnv("RATE_LIMIT_WHITELIST"); wl != nil {
		cfg.RateLimitWhitelist = wl
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel, cfg.LogLevel)
	}
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.UpstreamURL, fc.UpstreamURL)
	setString(&cfg.DefaultRouteColor, fc.DefaultRouteColor)
	setString(&cfg.SessionCookie, fc.SessionCookie)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setString(&cfg.RedisPassword, fc.RedisPassword)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"read_timeout", fc.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", fc.WriteTimeout, &cfg.WriteTimeout},
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"upstream_timeout", fc.UpstreamTimeout, &cfg.UpstreamTimeout},
		{"session_ttl", fc.SessionTTL, &cfg.SessionTTL},
		{"rate_limit_window", fc.RateLimitWindow, &cfg.RateLimitWindow},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, d.name, err)
		}
		*d.dst = v
	}

	if fc.MaxUploadBytes != 0 {
		cfg.MaxUploadBytes = fc.MaxUploadBytes
	}
	if fc.RateLimitPerWindow != 0 {
		cfg.RateLimitPerWindow = fc.RateLimitPerWindow
	}
	if fc.CORSOrigins != nil {
		cfg.CORSOrigins = fc.CORSOrigins
	}
	if fc.RateLimitWhitelist != nil {
		cfg.RateLimitWhitelist = fc.RateLimitWhitelist
	}
	if fc.RedisEnabled != nil {
		cfg.RedisEnabled = *fc.RedisEnabled
	}
	if fc.RedisDB != nil {
		cfg.RedisDB = *fc.RedisDB
	}
	return nil
}

// Validate checks cfg and reports every offending field at once.
func Validate(cfg *Config) error {
	v := validator.New()
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	return parseLogLevel(os.Getenv(key), defaultVal)
}

func parseLogLevel(v string, defaultVal slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
