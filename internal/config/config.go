package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// DefaultAdminSecret is only acceptable in the dev environment.
const DefaultAdminSecret = "dev-secret-change-me"

// Config holds every runtime setting. Values come from the defaults, then an
// optional TOML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Port                   string   `toml:"port"`
	Env                    string   `toml:"env"`
	LogLevel               string   `toml:"log_level"`
	DatabaseDSN            string   `toml:"database_dsn"`
	UploadDir              string   `toml:"upload_dir"`
	MaxUploadMB            int      `toml:"max_upload_mb"`
	StaticDir              string   `toml:"static_dir"`
	HistoryLimit           int      `toml:"history_limit"`
	RoomRetention          string   `toml:"room_retention"`
	AllowedOrigins         []string `toml:"allowed_origins"`
	MaxFrameBytes          int      `toml:"max_frame_bytes"`
	FrameRate              float64  `toml:"frame_rate"`
	FrameBurst             int      `toml:"frame_burst"`
	SendBuffer             int      `toml:"send_buffer"`
	HTTPRate               float64  `toml:"http_rate"`
	HTTPBurst              int      `toml:"http_burst"`
	HTTPLimiterTTLSeconds  int      `toml:"http_limiter_ttl_seconds"`
	AdminJWTSecret         string   `toml:"admin_jwt_secret"`
	AdminTokenTTLMinutes   int      `toml:"admin_token_ttl_minutes"`
	RoomPasswordCost       int      `toml:"room_password_cost"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:                   "8080",
		Env:                    "dev",
		LogLevel:               "info",
		DatabaseDSN:            "chat.db",
		UploadDir:              "uploads",
		MaxUploadMB:            1000,
		StaticDir:              "web",
		HistoryLimit:           50,
		RoomRetention:          "keep",
		MaxFrameBytes:          64 << 10,
		FrameRate:              20,
		FrameBurst:             40,
		SendBuffer:             256,
		HTTPRate:               20,
		HTTPBurst:              40,
		HTTPLimiterTTLSeconds:  600,
		AdminJWTSecret:         DefaultAdminSecret,
		AdminTokenTTLMinutes:   60,
		RoomPasswordCost:       10,
		ShutdownTimeoutSeconds: 10,
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getint keeps def when the variable is unset or not a number. Out of range
// values are passed through for Validate to reject.
func getint(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("ignoring non-numeric setting")
		return def
	}
	return n
}

func getfloat(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("ignoring non-numeric setting")
		return def
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds the configuration. It fails only when CONFIG_FILE is set and
// cannot be read or parsed.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getenv("APP_PORT", cfg.Port)
	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseDSN = getenv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.UploadDir = getenv("UPLOAD_DIR", cfg.UploadDir)
	cfg.MaxUploadMB = getint("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.StaticDir = getenv("STATIC_DIR", cfg.StaticDir)
	cfg.HistoryLimit = getint("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.RoomRetention = getenv("ROOM_RETENTION", cfg.RoomRetention)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.MaxFrameBytes = getint("MAX_FRAME_BYTES", cfg.MaxFrameBytes)
	cfg.FrameRate = getfloat("FRAME_RATE", cfg.FrameRate)
	cfg.FrameBurst = getint("FRAME_BURST", cfg.FrameBurst)
	cfg.SendBuffer = getint("SEND_BUFFER", cfg.SendBuffer)
	cfg.HTTPRate = getfloat("HTTP_RATE", cfg.HTTPRate)
	cfg.HTTPBurst = getint("HTTP_BURST", cfg.HTTPBurst)
	cfg.HTTPLimiterTTLSeconds = getint("HTTP_LIMITER_TTL_SECONDS", cfg.HTTPLimiterTTLSeconds)
	cfg.AdminJWTSecret = getenv("ADMIN_JWT_SECRET", cfg.AdminJWTSecret)
	cfg.AdminTokenTTLMinutes = getint("ADMIN_TOKEN_TTL_MINUTES", cfg.AdminTokenTTLMinutes)
	cfg.RoomPasswordCost = getint("ROOM_PASSWORD_COST", cfg.RoomPasswordCost)
	cfg.ShutdownTimeoutSeconds = getint("SHUTDOWN_TIMEOUT_SECONDS", cfg.ShutdownTimeoutSeconds)

	if cfg.Env == "dev" && len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return cfg, nil
}

// Validate reports every setting the server cannot run with.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Port == "" {
		errs = append(errs, errors.New("APP_PORT is required"))
	}
	if cfg.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if cfg.UploadDir == "" {
		errs = append(errs, errors.New("UPLOAD_DIR is required"))
	}
	switch cfg.RoomRetention {
	case "keep", "delete-empty":
	default:
		errs = append(errs, fmt.Errorf("ROOM_RETENTION must be keep or delete-empty, got %q", cfg.RoomRetention))
	}
	if cfg.HistoryLimit < 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must not be negative"))
	}
	if cfg.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if cfg.MaxFrameBytes <= 0 || cfg.FrameRate <= 0 || cfg.FrameBurst <= 0 || cfg.SendBuffer <= 0 {
		errs = append(errs, errors.New("MAX_FRAME_BYTES, FRAME_RATE, FRAME_BURST and SEND_BUFFER must be positive"))
	}
	if cfg.HTTPRate <= 0 || cfg.HTTPBurst <= 0 || cfg.HTTPLimiterTTLSeconds <= 0 {
		errs = append(errs, errors.New("HTTP_RATE, HTTP_BURST and HTTP_LIMITER_TTL_SECONDS must be positive"))
	}
	if cfg.AdminTokenTTLMinutes <= 0 {
		errs = append(errs, errors.New("ADMIN_TOKEN_TTL_MINUTES must be positive"))
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT_SECONDS must be positive"))
	}
	if cfg.RoomPasswordCost < 4 || cfg.RoomPasswordCost > 31 {
		errs = append(errs, fmt.Errorf("ROOM_PASSWORD_COST must be between 4 and 31, got %d", cfg.RoomPasswordCost))
	}
	if cfg.AdminJWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is required"))
	} else if cfg.Env != "dev" && cfg.AdminJWTSecret == DefaultAdminSecret {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET must be changed outside dev"))
	}
	return errors.Join(errs...)
}
