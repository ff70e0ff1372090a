package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	HTTPAddr string

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
	DBConnMaxIdleTime int

	// LockBackend selects the account locker implementation: memory or redis.
	LockBackend        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	AccountLockTimeout time.Duration
	AccountLockTTL     time.Duration

	PluginName    string
	PluginTimeout time.Duration
	PluginWorkers int

	JanitorInterval  time.Duration
	JanitorThreshold time.Duration
	JanitorBatchSize int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "paycore"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paycore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		LockBackend:        strings.ToLower(getenv("LOCK_BACKEND", "memory")),
		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		RedisDB:            getenvInt("REDIS_DB", 0),
		AccountLockTimeout: getenvDuration("ACCOUNT_LOCK_TIMEOUT", 10*time.Second),
		AccountLockTTL:     getenvDuration("ACCOUNT_LOCK_TTL", 60*time.Second),

		PluginName:    getenv("PAYMENT_PLUGIN", "noop"),
		PluginTimeout: getenvDuration("PAYMENT_PLUGIN_TIMEOUT", 30*time.Second),
		PluginWorkers: getenvInt("PAYMENT_PLUGIN_WORKERS", 10),

		JanitorInterval:  getenvDuration("JANITOR_INTERVAL", time.Minute),
		JanitorThreshold: getenvDuration("JANITOR_THRESHOLD", 15*time.Minute),
		JanitorBatchSize: getenvInt("JANITOR_BATCH_SIZE", 100),
	}
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
