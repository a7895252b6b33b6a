package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFormat   string

	// Persistent session store.
	StorageBackend string // "file", "redis" or "memory"
	StorageDir     string
	RedisURL       string

	// Autosave policy.
	AutosaveDebounce time.Duration
	AutosaveSweep    time.Duration
	FlushTimeout     time.Duration

	// Finalization.
	FinalizeGrace time.Duration

	// Deadline fallback when the server provides no usable timing.
	FallbackDuration time.Duration

	// Mock exam service (cmd/mockexam only).
	ServerPort     string
	GinMode        string
	JWTSecret      string
	JWTExpiry      time.Duration
	BcryptCost     int
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible
// defaults. It loads .env if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	return &Config{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8000"),
		HTTPTimeout: getEnvMillis("HTTP_TIMEOUT_MS", 10000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "pretty"),

		StorageBackend: getEnv("STORAGE_BACKEND", "file"),
		StorageDir:     getEnv("STORAGE_DIR", "./.examclient"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),

		AutosaveDebounce: getEnvMillis("AUTOSAVE_DEBOUNCE_MS", 2000),
		AutosaveSweep:    getEnvMillis("AUTOSAVE_SWEEP_MS", 5000),
		FlushTimeout:     getEnvMillis("FLUSH_TIMEOUT_MS", 3000),

		FinalizeGrace: getEnvMillis("FINALIZE_GRACE_MS", 5000),

		FallbackDuration: time.Duration(getEnvInt("EXAM_FALLBACK_DURATION_MIN", 90)) * time.Minute,

		ServerPort:     getEnv("SERVER_PORT", "8000"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		JWTSecret:      getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:      time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 4)) * time.Hour,
		BcryptCost:     getEnvInt("BCRYPT_COST", 6),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

// parseOrigins splits a comma-separated origins string into a trimmed
// slice. Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
