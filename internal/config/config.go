package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// OperationClass describes one paid operation category: its rate limit,
// window size and credit cost.
type OperationClass struct {
	Limit  int
	Window time.Duration
	Cost   int64
}

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GatewayBaseURL  string
	GatewaySecret   string
	CreditUnitPrice int64
	Currency        string

	OperationClasses map[string]OperationClass

	PolicyVocabularyPath string

	SweepInterval   time.Duration
	SweepLookback   time.Duration
	SweepPendingAge time.Duration
	SweepBatchSize  int

	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	return Config{
		AppName:     getenv("APP_SERVICE", "lumina"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "lumina"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		GatewayBaseURL:  strings.TrimRight(getenv("PAYMENT_GATEWAY_URL", "https://api.paystack.co"), "/"),
		GatewaySecret:   strings.TrimSpace(getenv("PAYMENT_GATEWAY_SECRET", "")),
		CreditUnitPrice: getenvInt64("CREDIT_UNIT_PRICE", 100),
		Currency:        getenv("CURRENCY", "USD"),

		OperationClasses: parseOperationClasses(getenv(
			"OPERATION_CLASSES",
			"generation=10/1m/5,edit=20/1m/2",
		)),

		PolicyVocabularyPath: strings.TrimSpace(getenv("POLICY_VOCABULARY_PATH", "")),

		SweepInterval:   getenvDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepLookback:   getenvDuration("SWEEP_LOOKBACK", 24*time.Hour),
		SweepPendingAge: getenvDuration("SWEEP_PENDING_AGE", 10*time.Minute),
		SweepBatchSize:  getenvInt("SWEEP_BATCH_SIZE", 100),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
	}
}

// Class returns the configuration for an operation class and whether it is known.
func (c Config) Class(name string) (OperationClass, bool) {
	oc, ok := c.OperationClasses[strings.ToLower(strings.TrimSpace(name))]
	return oc, ok
}

// parseOperationClasses parses "name=limit/window/cost" pairs separated by commas,
// e.g. "generation=10/1m/5,edit=20/1m/2".
func parseOperationClasses(raw string) map[string]OperationClass {
	out := make(map[string]OperationClass)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, spec, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		parts := strings.Split(spec, "/")
		if len(parts) != 3 {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || limit <= 0 {
			continue
		}
		window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
		if err != nil || window <= 0 {
			continue
		}
		cost, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil || cost < 0 {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(name))] = OperationClass{
			Limit:  limit,
			Window: window,
			Cost:   cost,
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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

var Module = fx.Module("config",
	fx.Provide(Load),
)
