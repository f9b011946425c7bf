package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	// DatabaseURL may be empty, in which case state lives in memory only.
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	CORSAllowedOrigins []string
	NATSURL            string
	PolicyFile         string

	R2 R2Config

	ViewerOutboxSize int
	PresenceInterval time.Duration
	NotifyQueueSize  int
	RateLimitRPS     float64
	RateLimitBurst   int
	ShutdownTimeout  time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	LoadDotEnv()

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecretKey:       jwtKey,
		ServerPort:         port,
		CORSAllowedOrigins: listEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		NATSURL:            os.Getenv("NATS_URL"),
		PolicyFile:         os.Getenv("SCHEDULER_POLICY_FILE"),
		R2: R2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
	}

	if cfg.ViewerOutboxSize, err = intEnv("VIEWER_OUTBOX_SIZE", 64); err != nil {
		return nil, err
	}
	if cfg.NotifyQueueSize, err = intEnv("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.PresenceInterval, err = durationEnv("PRESENCE_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.RateLimitRPS = 5
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if cfg.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS environment variable: %w", err)
		}
	}
	if cfg.ViewerOutboxSize <= 0 {
		return nil, fmt.Errorf("VIEWER_OUTBOX_SIZE must be positive, got %d", cfg.ViewerOutboxSize)
	}

	return cfg, nil
}

// LoadDotEnv loads a .env file when present. A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return n, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return d, nil
}

func listEnv(name string, def []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
