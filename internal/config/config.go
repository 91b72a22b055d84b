// Package config centralizes how procflow reads environment variables and
// exposes them as strongly typed values.
package config

import (
	"crypto/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration shared by the API server, the
// worker, and the CLI.
type Config struct {
	Environment string
	Address     string

	// DatabaseURL empty means the in-memory store is used instead of Postgres.
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
	S3Region        string
	ArtifactBucket  string
	ProcessedBucket string
	ExportBucket    string

	MaxFileSize  int64
	AllowedTypes []string

	SigningSecret []byte
	SignedURLTTL  time.Duration

	JWTSecret []byte
	TokenTTL  time.Duration

	Workers      int
	EventWorkers int
}

const (
	defaultAddress      = ":8080"
	defaultMaxFileSize  = 25 << 20 // 25 MiB
	defaultAllowedTypes = "application/pdf,image/png,image/jpeg,text/plain"
	defaultSignedTTL    = 5 * time.Minute
	defaultTokenTTL     = 8 * time.Hour
	defaultWorkerCount  = 4
	defaultEventWorkers = 2
)

// Load reads configuration from a .env file (when present) and the process
// environment, falling back to defaults.
func Load() (*Config, error) {
	// Absence of a .env file is the normal case outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Environment:     readEnv("PROCFLOW_ENV", "development"),
		Address:         readEnv("PROCFLOW_ADDRESS", defaultAddress),
		DatabaseURL:     readEnv("PROCFLOW_DATABASE_URL", ""),
		RedisAddr:       readEnv("PROCFLOW_REDIS_ADDR", "localhost:6379"),
		RedisPassword:   readEnv("PROCFLOW_REDIS_PASSWORD", ""),
		RedisDB:         parseInt("PROCFLOW_REDIS_DB", 0),
		S3Endpoint:      readEnv("PROCFLOW_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:     readEnv("PROCFLOW_S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:     readEnv("PROCFLOW_S3_SECRET_KEY", "minioadmin"),
		S3UseSSL:        parseBool("PROCFLOW_S3_USE_SSL", false),
		S3Region:        readEnv("PROCFLOW_S3_REGION", "us-east-1"),
		ArtifactBucket:  readEnv("PROCFLOW_ARTIFACT_BUCKET", "procflow-artifacts"),
		ProcessedBucket: readEnv("PROCFLOW_PROCESSED_BUCKET", "procflow-processed"),
		ExportBucket:    readEnv("PROCFLOW_EXPORT_BUCKET", "procflow-exports"),
		MaxFileSize:     parseInt64("PROCFLOW_MAX_FILE_BYTES", defaultMaxFileSize),
		AllowedTypes:    parseList("PROCFLOW_ALLOWED_TYPES", defaultAllowedTypes),
		SigningSecret:   parseSecret("PROCFLOW_SIGNING_SECRET"),
		SignedURLTTL:    parseDuration("PROCFLOW_SIGNED_TTL", defaultSignedTTL),
		JWTSecret:       parseSecret("PROCFLOW_JWT_SECRET"),
		TokenTTL:        parseDuration("PROCFLOW_TOKEN_TTL", defaultTokenTTL),
		Workers:         parseInt("PROCFLOW_WORKERS", defaultWorkerCount),
		EventWorkers:    parseInt("PROCFLOW_EVENT_WORKERS", defaultEventWorkers),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.JWTSecret == nil {
		cfg.JWTSecret = randomSecret()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.EventWorkers <= 0 {
		cfg.EventWorkers = defaultEventWorkers
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to a
		// fixed development secret rather than crash.
		return []byte("procflow-dev-secret-000000000000")
	}
	return buf
}
