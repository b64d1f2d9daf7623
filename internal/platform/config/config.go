package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	DatabaseURL    string
	MinLoanAmount  int64
	OperatorJWTKey string
	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For is honoured.
	TrustedProxies []string

	Mono      MonoConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

// MonoConfig holds credentials and endpoints for the Mono Prove API and its webhooks.
type MonoConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	// WebhookAuthMode is "hmac" (x-mono-signature) or "secret" (mono-webhook-secret).
	WebhookAuthMode string
	RedirectURL     string
	Timeout         time.Duration
	// TieBreak is "last_delivered_wins" or "first_terminal_wins".
	TieBreak string
}

// RedisConfig configures the optional Redis connection used for rate limiting.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional lifecycle event stream.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// RateLimitConfig bounds POST /verify per client IP.
type RateLimitConfig struct {
	InitiateLimit  int
	InitiateWindow time.Duration
}

const (
	defaultMinLoanAmount = 1000
	defaultMonoBaseURL   = "https://api.withmono.com"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           getEnv("PROVEPOC_ADDR", ":3003"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MinLoanAmount:  getInt64("MIN_LOAN_AMOUNT", defaultMinLoanAmount),
		OperatorJWTKey: os.Getenv("OPERATOR_JWT_SIGNING_KEY"),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		Mono: MonoConfig{
			BaseURL:         strings.TrimRight(getEnv("MONO_BASE_URL", defaultMonoBaseURL), "/"),
			SecretKey:       os.Getenv("MONO_SECRET_KEY"),
			WebhookSecret:   os.Getenv("MONO_WEBHOOK_SECRET"),
			WebhookAuthMode: strings.ToLower(getEnv("MONO_WEBHOOK_AUTH_MODE", "hmac")),
			RedirectURL:     getEnv("MONO_REDIRECT_URL", "http://localhost:5500"),
			Timeout:         getDuration("MONO_TIMEOUT", 15*time.Second),
			TieBreak:        strings.ToLower(getEnv("TERMINAL_TIE_BREAK", "last_delivered_wins")),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:    getEnv("KAFKA_TOPIC", "provepoc.verifications"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "provepoc"),
		},
		RateLimit: RateLimitConfig{
			InitiateLimit:  getInt("INITIATE_RATE_LIMIT", 10),
			InitiateWindow: getDuration("INITIATE_RATE_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
