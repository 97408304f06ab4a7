package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMongo    = "mongo"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Storage
	StorageType   string
	DatabaseURL   string
	MigrationsDir string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string

	// Redis (optional, enables cross-instance broadcast)
	RedisURL string

	// Teacher auth
	JWTSecret           string
	TeacherPasscodeHash string

	// Polling
	SweepInterval              time.Duration
	ChatHistoryLimit           int
	DefaultPollDurationSeconds int

	// Frontend
	FrontendURL string
	StaticDir   string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                       getEnvOrDefault("PORT", "8080"),
		Env:                        getEnvOrDefault("ENV", "development"),
		StorageType:                getEnvOrDefault("STORAGE_TYPE", StorageMemory),
		DatabaseURL:                getEnvOrDefault("DATABASE_URL", ""),
		MigrationsDir:              getEnvOrDefault("MIGRATIONS_DIR", ""),
		SQLitePath:                 getEnvOrDefault("SQLITE_PATH", "./livepoll.db"),
		MongoURI:                   getEnvOrDefault("MONGO_URI", ""),
		MongoDatabase:              getEnvOrDefault("MONGO_DATABASE", "livepoll"),
		RedisURL:                   getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:                  mustGetEnv("JWT_SECRET"),
		TeacherPasscodeHash:        getEnvOrDefault("TEACHER_PASSCODE_HASH", ""),
		SweepInterval:              time.Duration(getEnvAsIntOrDefault("SWEEP_INTERVAL_SECONDS", 2)) * time.Second,
		ChatHistoryLimit:           getEnvAsIntOrDefault("CHAT_HISTORY_LIMIT", 50),
		DefaultPollDurationSeconds: getEnvAsIntOrDefault("DEFAULT_POLL_DURATION_SECONDS", 60),
		FrontendURL:                getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
		StaticDir:                  getEnvOrDefault("STATIC_DIR", ""),
	}

	return cfg
}

// Validate checks the settings required by the selected storage backend.
func (c *Config) Validate() error {
	switch c.StorageType {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_TYPE=%s", StoragePostgres)
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_TYPE=%s", StorageSQLite)
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_TYPE=%s", StorageMongo)
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q (want memory, postgres, sqlite or mongo)", c.StorageType)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	return nil
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
