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
	HTTPAddr    string

	OTLPEndpoint string

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
	DBAutoMigrate     bool

	BusinessDay BusinessDayConfig
	RateLimit   RateLimitConfig
	Scheduler   SchedulerConfig
}

type BusinessDayConfig struct {
	BoundaryHour int
	Timezone     string
}

type RateLimitConfig struct {
	Enabled        bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ChatRate       float64
	ChatBurst      int
	MessageLockTTL time.Duration
}

type SchedulerConfig struct {
	Enabled             bool
	RunInterval         time.Duration
	JobTimeout          time.Duration
	ReconcileLookback   int
	CloseDayCron        string
	EnabledJobs         []string
	LeaderLockEnabled   bool
	LeaderLockRedisAddr string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "staybook"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "staybook"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		BusinessDay: BusinessDayConfig{
			BoundaryHour: int(getenvInt64("BUSINESS_DAY_BOUNDARY_HOUR", 12)),
			Timezone:     getenv("BUSINESS_TIMEZONE", "Asia/Jakarta"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:      getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword:  getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:        int(getenvInt64("RATE_LIMIT_REDIS_DB", 0)),
			ChatRate:       getenvFloat("RATE_LIMIT_CHAT_RATE", 5),
			ChatBurst:      int(getenvInt64("RATE_LIMIT_CHAT_BURST", 20)),
			MessageLockTTL: getenvDuration("RATE_LIMIT_MESSAGE_LOCK_TTL", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:         getenvDuration("SCHEDULER_INTERVAL", 15*time.Minute),
			JobTimeout:          getenvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
			ReconcileLookback:   int(getenvInt64("SCHEDULER_RECONCILE_LOOKBACK_DAYS", 2)),
			CloseDayCron:        strings.TrimSpace(getenv("SCHEDULER_CLOSE_DAY_CRON", "")),
			EnabledJobs:         parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
			LeaderLockEnabled:   getenvBool("SCHEDULER_LEADER_LOCK_ENABLED", false),
			LeaderLockRedisAddr: getenv("SCHEDULER_LEADER_LOCK_REDIS_ADDR", "localhost:6379"),
		},
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
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
