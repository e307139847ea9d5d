package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewTenancyConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	PublicDir        string
	AuthCookieSecure bool

	Telemetry TelemetryConfig
	Backend   BackendConfig
	Session   SessionConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// BackendConfig points at the POS REST API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	TTL               time.Duration
	TokenExpiryMargin time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// TelemetryConfig carries the logging, tracing and metrics switches.
type TelemetryConfig struct {
	LogLevel       string
	LogFormat      string
	OtelEnabled    bool
	OtelEndpoint   string
	OtelProtocol   string
	SamplingRatio  float64
	MetricsEnabled bool
}

type RateLimitConfig struct {
	Enabled    bool
	LoginRate  float64
	LoginBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "kasira"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		PublicDir:        getenv("PUBLIC_DIR", "./public"),
		AuthCookieSecure: authCookieSecure,
		Telemetry:        loadTelemetry(),
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(getenv("BACKEND_BASE_URL", "http://localhost:3000")), "/"),
			Timeout: getenvDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			TTL:               getenvDuration("SESSION_TTL", 7*24*time.Hour),
			TokenExpiryMargin: getenvDuration("TOKEN_EXPIRY_MARGIN", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("LOGIN_RATE_LIMIT_ENABLED", true),
			LoginRate:  getenvFloat("LOGIN_RATE_LIMIT_RATE", 0.2),
			LoginBurst: getenvInt("LOGIN_RATE_LIMIT_BURST", 5),
		},
	}

	return cfg
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:    getenvBool("OTEL_ENABLED", false),
		OtelEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OtelProtocol:   strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		MetricsEnabled: getenvBool("METRICS_ENABLED", true),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
