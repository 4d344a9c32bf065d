package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envFileVar = "VIVENZA_ENV_FILE"

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	DatabasePath      string
	JWTSecret         string
	CORSOrigins       string
	MaxUploadSize     int64
	FileStoragePath   string
	PublicFilesPrefix string
	IntegrationAPIKey string
	Locale            string
	StoryReapSchedule string
	StoryRetention    time.Duration
}

// Load reads the configuration from the environment. Values from the env file
// named by VIVENZA_ENV_FILE (or ./.env) fill in keys that are not already set.
func Load() *Config {
	loadEnvFile()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/vivenza.db"),
		JWTSecret:         getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		CORSOrigins:       getEnv("CORS_ORIGINS", "*"),
		MaxUploadSize:     parseInt64(getEnv("MAX_UPLOAD_SIZE", "10485760")), // 10MB default
		FileStoragePath:   getEnv("FILE_STORAGE_PATH", "./data/uploads"),
		PublicFilesPrefix: getEnv("PUBLIC_FILES_PREFIX", "/api/files"),
		IntegrationAPIKey: getEnv("INTEGRATION_API_KEY", ""),
		Locale:            getEnv("LOCALE", "pt-BR"),
		StoryReapSchedule: getEnv("STORY_REAP_SCHEDULE", ""),
		StoryRetention:    parseDuration(getEnv("STORY_RETENTION", "168h"), 7*24*time.Hour),
	}
}

func loadEnvFile() {
	if path, ok := os.LookupEnv(envFileVar); ok && path != "" {
		_ = godotenv.Load(path)
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseInt64(s string) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 10485760 // 10MB default
	}
	return val
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
