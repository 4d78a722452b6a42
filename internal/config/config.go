package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DatabaseURL string
	// Upper bound on open PostgreSQL connections; zero keeps the store default.
	DBMaxOpenConns int
	JWTSecret      string
	TokenTTL       time.Duration
	CORSOrigin     string
	LogLevel       string
	BcryptCost     int
	// Sign-up and login attempts allowed per client per minute. Zero disables the limit.
	AuthRatePerMinute int
	// Redis - optional; the token deny-list falls back to the entity store when empty
	RedisURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, fills in variables that are not already set.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:              getenv("API_ADDR", ":5000"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		DBMaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 0),
		JWTSecret:         getenv("TASKBOARD_JWT_SECRET", "taskboard-dev-secret"),
		TokenTTL:          time.Duration(getenvInt("TASKBOARD_TOKEN_TTL_SECONDS", 3600)) * time.Second,
		CORSOrigin:        getenv("TASKBOARD_CORS_ORIGIN", "*"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		BcryptCost:        getenvInt("TASKBOARD_BCRYPT_COST", 12),
		AuthRatePerMinute: getenvInt("TASKBOARD_AUTH_RATE_PER_MINUTE", 30),
		RedisURL:          getenv("REDIS_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
