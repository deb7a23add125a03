package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB       DBConfig
	JWT      JWTConfig
	Server   ServerConfig
	Registry RegistryConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
}

// RegistryConfig points at the national patient registry. ClientID/Secret are
// optional; when present the client authenticates with OAuth2 client
// credentials against TokenURL.
type RegistryConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "famcare"),
			Password: getEnv("DB_PASSWORD", "famcare_secret"),
			Name:     getEnv("DB_NAME", "famcare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Registry: RegistryConfig{
			BaseURL:      getEnv("REGISTRY_BASE_URL", "http://localhost:9090"),
			TokenURL:     getEnv("REGISTRY_TOKEN_URL", ""),
			ClientID:     getEnv("REGISTRY_CLIENT_ID", ""),
			ClientSecret: getEnv("REGISTRY_CLIENT_SECRET", ""),
			Timeout:      getEnvAsDuration("REGISTRY_TIMEOUT", 5*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
