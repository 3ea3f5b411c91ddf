package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GlobalConfig holds all runtime configuration, loaded from the environment.
type GlobalConfig struct {
	Host string
	Port string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	MaxConcurrentTasks   int
	TaskDispatchInterval time.Duration
	TaskTimeout          time.Duration
	TaskMaxRetries       int

	SessionCleanupInterval time.Duration
	PendingSessionMaxAge   time.Duration
	SessionFileDir         string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	RabbitURL string

	LLMBaseURL string
	LLMModel   string
}

// NewConfig loads configuration from environment variables. Secrets and
// database settings are required; tunables fall back to documented defaults.
func NewConfig() (*GlobalConfig, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST environment variable is required")
	}
	dbPort, err := envIntOr("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER environment variable is required")
	}
	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME environment variable is required")
	}

	accessTTLMinutes, err := envIntOr("ACCESS_TOKEN_TTL_MINUTES", 1440)
	if err != nil {
		return nil, err
	}
	refreshTTLMinutes, err := envIntOr("REFRESH_TOKEN_TTL_MINUTES", 10080)
	if err != nil {
		return nil, err
	}
	maxConcurrent, err := envIntOr("MAX_CONCURRENT_TASKS", 5)
	if err != nil {
		return nil, err
	}
	dispatchSeconds, err := envIntOr("TASK_DISPATCH_INTERVAL_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	taskTimeoutSeconds, err := envIntOr("TASK_TIMEOUT_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	taskMaxRetries, err := envIntOr("TASK_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	cleanupSeconds, err := envIntOr("SESSION_CLEANUP_INTERVAL_SECONDS", 1800)
	if err != nil {
		return nil, err
	}
	pendingMaxAgeMinutes, err := envIntOr("PENDING_SESSION_MAX_AGE_MINUTES", 10)
	if err != nil {
		return nil, err
	}

	return &GlobalConfig{
		Host: envOr("HOST", "0.0.0.0"),
		Port: envOr("PORT", "8000"),

		JWTSecret:       jwtSecret,
		AccessTokenTTL:  time.Duration(accessTTLMinutes) * time.Minute,
		RefreshTokenTTL: time.Duration(refreshTTLMinutes) * time.Minute,

		MaxConcurrentTasks:   maxConcurrent,
		TaskDispatchInterval: time.Duration(dispatchSeconds) * time.Second,
		TaskTimeout:          time.Duration(taskTimeoutSeconds) * time.Second,
		TaskMaxRetries:       taskMaxRetries,

		SessionCleanupInterval: time.Duration(cleanupSeconds) * time.Second,
		PendingSessionMaxAge:   time.Duration(pendingMaxAgeMinutes) * time.Minute,
		SessionFileDir:         envOr("SESSION_FILE_DIR", "sessions"),

		DBHost:     dbHost,
		DBPort:     dbPort,
		DBUser:     dbUser,
		DBPassword: dbPassword,
		DBName:     dbName,

		RabbitURL: os.Getenv("RABBITMQ_URL"),

		LLMBaseURL: envOr("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:   envOr("LLM_MODEL", "llama3"),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}
