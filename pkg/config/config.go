package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server needs from the environment.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MySQL is optional; when Host is empty the play-history ledger is disabled.
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	// Kafka is optional; when Brokers is empty events are dropped.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string
	FrontendURL         string

	AllowedOrigins []string

	// CooldownWindow throttles repeat audience submissions while the
	// previous submission is still active. SessionTTL bounds admin logins.
	CooldownWindow        time.Duration
	SessionTTL            time.Duration
	SkipThreshold         int
	SearchRateLimit       int // requests per SearchRateWindow
	SearchRateWindow      time.Duration
	CatalogRequestsPerSec float64
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MySQLHost:     os.Getenv("MYSQL_HOST"),
		MySQLPort:     getEnv("MYSQL_PORT", "3306"),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: os.Getenv("MYSQL_PASSWORD"),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "crowdqueue"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "crowdqueue-events"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "crowdqueue"),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:  os.Getenv("SPOTIFY_REDIRECT_URI"),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		CooldownWindow:        getEnvDuration("QUEUE_COOLDOWN_WINDOW", 5*time.Minute),
		SessionTTL:            getEnvDuration("ADMIN_SESSION_TTL", 12*time.Hour),
		SkipThreshold:         getEnvInt("SKIP_THRESHOLD", 5),
		SearchRateLimit:       getEnvInt("SEARCH_RATE_LIMIT", 60),
		SearchRateWindow:      getEnvDuration("SEARCH_RATE_WINDOW", time.Minute),
		CatalogRequestsPerSec: getEnvFloat("CATALOG_REQUESTS_PER_SEC", 10),
	}
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// MySQLEnabled reports whether a play-history database was configured.
func (c *Config) MySQLEnabled() bool {
	return c.MySQLHost != ""
}

// KafkaEnabled reports whether an event broker was configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
