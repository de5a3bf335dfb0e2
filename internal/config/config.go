package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string
	Env  string

	// Database
	DBDriver   string // postgres | sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Auth
	JWTSecret     string
	JWTExpiresIn  string // minutes
	AdminEmail    string
	AdminPassword string
	AdminFullName string

	LogLevel string

	// Presence
	OfflineThreshold time.Duration
	SweepInterval    time.Duration
	SweepItemTimeout time.Duration

	// Realtime fan-out across instances; empty RedisAddr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	CORSAllowedOrigins []string
}

func Load() *Config {
	return &Config{
		Port:               getenv("PORT", "8080"),
		Env:                getenv("APP_ENV", "development"),
		DBDriver:           strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DBHost:             getenv("DB_HOST", "localhost"),
		DBPort:             getenv("DB_PORT", "5432"),
		DBUser:             getenv("DB_USER", "postgres"),
		DBPassword:         getenv("DB_PASSWORD", "postgres"),
		DBName:             getenv("DB_NAME", "complab_db"),
		DBSSLMode:          getenv("DB_SSLMODE", "disable"),
		SQLitePath:         getenv("SQLITE_PATH", "complab.db"),
		JWTSecret:          getenv("JWT_SECRET", "supersecret_change_me"),
		JWTExpiresIn:       getenv("JWT_EXPIRES_IN", "60"),
		AdminEmail:         getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:      getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName:      getenv("ADMIN_FULL_NAME", "Administrator"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		OfflineThreshold:   getduration("OFFLINE_THRESHOLD", 5*time.Minute),
		SweepInterval:      getduration("SWEEP_INTERVAL", time.Minute),
		SweepItemTimeout:   getduration("SWEEP_ITEM_TIMEOUT", 10*time.Second),
		RedisAddr:          getenv("REDIS_ADDR", ""),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		RedisDB:            getint("REDIS_DB", 0),
		RedisChannel:       getenv("REDIS_CHANNEL", "complab.events"),
		CORSAllowedOrigins: getlist("CORS_ALLOWED_ORIGINS"),
	}
}

// AccessTTL returns the JWT lifetime, falling back to one hour.
func (c *Config) AccessTTL() time.Duration {
	mins, err := strconv.Atoi(strings.TrimSpace(c.JWTExpiresIn))
	if err != nil || mins <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(mins) * time.Minute
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getint(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getlist(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
