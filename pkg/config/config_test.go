package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configKeys = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL", "DATABASE_PATH", "JWT_SECRET", "CORS_ORIGINS", "MAX_UPLOAD_SIZE",
	"FILE_STORAGE_PATH", "PUBLIC_FILES_PREFIX", "INTEGRATION_API_KEY", "LOCALE",
	"STORY_REAP_SCHEDULE", "STORY_RETENTION",
}

func writeEnvFile(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	return path
}

func unsetAll(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { _ = os.Setenv(key, value) })
		}
		_ = os.Unsetenv(key)
	}
	// godotenv.Load sets process env vars; drop them again after the test.
	t.Cleanup(func() {
		for _, key := range keys {
			_ = os.Unsetenv(key)
		}
	})
}

func TestLoadReadsExplicitEnvFile(t *testing.T) {
	unsetAll(t, configKeys...)

	envPath := writeEnvFile(t, t.TempDir(), `
PORT=9090
ENVIRONMENT=production
LOG_LEVEL=debug
DATABASE_PATH=/var/lib/vivenza/vivenza.db
JWT_SECRET=super-secret
CORS_ORIGINS=https://example.com
MAX_UPLOAD_SIZE=2048
FILE_STORAGE_PATH=/var/lib/vivenza/uploads
PUBLIC_FILES_PREFIX=/files
INTEGRATION_API_KEY=integration-key
LOCALE=en
STORY_REAP_SCHEDULE=@every 1h
STORY_RETENTION=48h
`)
	t.Setenv("VIVENZA_ENV_FILE", envPath)

	cfg := Load()

	if cfg.Port != "9090" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "9090")
	}
	if !cfg.IsProduction() {
		t.Fatalf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.DatabasePath != "/var/lib/vivenza/vivenza.db" {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.FileStoragePath != "/var/lib/vivenza/uploads" {
		t.Fatalf("FileStoragePath = %q", cfg.FileStoragePath)
	}
	if cfg.PublicFilesPrefix != "/files" {
		t.Fatalf("PublicFilesPrefix = %q", cfg.PublicFilesPrefix)
	}
	if cfg.JWTSecret != "super-secret" {
		t.Fatalf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.CORSOrigins != "https://example.com" {
		t.Fatalf("CORSOrigins = %q", cfg.CORSOrigins)
	}
	if cfg.MaxUploadSize != 2048 {
		t.Fatalf("MaxUploadSize = %d, want 2048", cfg.MaxUploadSize)
	}
	if cfg.IntegrationAPIKey != "integration-key" {
		t.Fatalf("IntegrationAPIKey = %q", cfg.IntegrationAPIKey)
	}
	if cfg.Locale != "en" {
		t.Fatalf("Locale = %q", cfg.Locale)
	}
	if cfg.StoryReapSchedule != "@every 1h" {
		t.Fatalf("StoryReapSchedule = %q", cfg.StoryReapSchedule)
	}
	if cfg.StoryRetention != 48*time.Hour {
		t.Fatalf("StoryRetention = %s, want 48h", cfg.StoryRetention)
	}
}

func TestLoadEnvVarOverridesEnvFile(t *testing.T) {
	unsetAll(t, "PORT", "DATABASE_PATH", "FILE_STORAGE_PATH", "JWT_SECRET")

	envPath := writeEnvFile(t, t.TempDir(), `
PORT=9090
DATABASE_PATH=/var/lib/vivenza/vivenza.db
FILE_STORAGE_PATH=/var/lib/vivenza/uploads
JWT_SECRET=file-secret
`)
	t.Setenv("VIVENZA_ENV_FILE", envPath)
	t.Setenv("DATABASE_PATH", "/override.db")
	t.Setenv("PORT", "7777")

	cfg := Load()

	if cfg.Port != "7777" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "7777")
	}
	if cfg.DatabasePath != "/override.db" {
		t.Fatalf("DatabasePath = %q, want %q", cfg.DatabasePath, "/override.db")
	}
	if cfg.FileStoragePath != "/var/lib/vivenza/uploads" {
		t.Fatalf("FileStoragePath = %q", cfg.FileStoragePath)
	}
	if cfg.JWTSecret != "file-secret" {
		t.Fatalf("JWTSecret = %q", cfg.JWTSecret)
	}
}

func TestLoadFallsBackToDefaultsWhenNoEnvFile(t *testing.T) {
	unsetAll(t, append([]string{"VIVENZA_ENV_FILE"}, configKeys...)...)
	t.Chdir(t.TempDir())

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabasePath != "./data/vivenza.db" {
		t.Fatalf("DatabasePath = %q, want default", cfg.DatabasePath)
	}
	if cfg.FileStoragePath != "./data/uploads" {
		t.Fatalf("FileStoragePath = %q, want default", cfg.FileStoragePath)
	}
	if cfg.IntegrationAPIKey != "" {
		t.Fatalf("IntegrationAPIKey = %q, want empty", cfg.IntegrationAPIKey)
	}
	if cfg.StoryRetention != 7*24*time.Hour {
		t.Fatalf("StoryRetention = %s, want 168h", cfg.StoryRetention)
	}
}

func TestParseDurationRejectsNegative(t *testing.T) {
	if got := parseDuration("-1h", time.Minute); got != time.Minute {
		t.Fatalf("parseDuration(-1h) = %s, want fallback", got)
	}
	if got := parseDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("parseDuration(nonsense) = %s, want fallback", got)
	}
}
