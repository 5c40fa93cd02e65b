package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	CORS        CORSConfig
	Audit       AuditConfig
	Worker      WorkerConfig
	Linker      LinkerConfig
	Attestation AttestationConfig
	Secrets     SecretsConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// AuditConfig holds engine defaults applied when a request omits options.
type AuditConfig struct {
	DefaultMethod   string
	DefaultCurrency string
}

// WorkerConfig holds queue and worker-pool configuration.
type WorkerConfig struct {
	PoolSize    int
	MaxRetries  int
	BackoffBase time.Duration
}

// LinkerConfig holds the amount/time-window heuristic tolerances. These are
// empirical defaults, not derived from any documented rule, so they are
// configurable rather than baked in.
type LinkerConfig struct {
	WindowHours  int
	TolerancePct int
}

// AttestationConfig holds the external anchor hand-off configuration.
type AttestationConfig struct {
	AnchorURL     string
	ValidityDays  int
	SweepSchedule string // cron spec for the retry/expiry sweep
}

// SecretsConfig holds the key used to encrypt exchange credentials at rest.
type SecretsConfig struct {
	FernetKey string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/tax_audit.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
		Audit: AuditConfig{
			DefaultMethod:   getEnv("AUDIT_DEFAULT_METHOD", "FIFO"),
			DefaultCurrency: getEnv("AUDIT_DEFAULT_CURRENCY", "USD"),
		},
		Worker: WorkerConfig{
			PoolSize:    getEnvInt("WORKER_POOL_SIZE", 4),
			MaxRetries:  getEnvInt("WORKER_MAX_RETRIES", 3),
			BackoffBase: time.Duration(getEnvInt("WORKER_BACKOFF_SECONDS", 2)) * time.Second,
		},
		Linker: LinkerConfig{
			WindowHours:  getEnvInt("LINKER_WINDOW_HOURS", 4),
			TolerancePct: getEnvInt("LINKER_TOLERANCE_PCT", 10),
		},
		Attestation: AttestationConfig{
			AnchorURL:     getEnv("ATTESTATION_ANCHOR_URL", ""),
			ValidityDays:  getEnvInt("ATTESTATION_VALIDITY_DAYS", 365),
			SweepSchedule: getEnv("ATTESTATION_SWEEP_SCHEDULE", "@every 15m"),
		},
		Secrets: SecretsConfig{
			FernetKey: getEnv("CREDENTIALS_FERNET_KEY", ""),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value.
// Unparseable values fall back to the default rather than failing startup.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
