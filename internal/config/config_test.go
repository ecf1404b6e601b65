package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	// Сохраняем оригинальные значения
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	// Устанавливаем новые
	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllIMEnvVars очищает все переменные окружения IM_* для чистого теста.
func clearAllIMEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"IM_PORT",
		"IM_DB_HOST", "IM_DB_PORT", "IM_DB_NAME", "IM_DB_USER",
		"IM_DB_PASSWORD", "IM_DB_SSLMODE",
		"IM_DB_MAX_CONNS", "IM_DB_MIN_CONNS",
		"IM_STORAGE_BACKEND", "IM_DATA_DIR", "IM_GCS_BUCKET",
		"IM_PUBLIC_BASE_URL",
		"IM_MAX_FILE_SIZE", "IM_SESSION_TTL", "IM_SWEEP_INTERVAL",
		"IM_STORAGE_TIMEOUT", "IM_STORAGE_RETRY_MAX", "IM_STORAGE_RETRY_DELAY",
		"IM_MIGRATE_CONCURRENCY", "IM_CACHE_SIZE", "IM_CACHE_TTL",
		"IM_LOG_LEVEL", "IM_LOG_FORMAT",
		"IM_SHUTDOWN_TIMEOUT",
		"IM_HTTP_READ_TIMEOUT", "IM_HTTP_WRITE_TIMEOUT", "IM_HTTP_IDLE_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// requiredEnvVars возвращает минимальный набор обязательных переменных.
func requiredEnvVars() map[string]string {
	return map[string]string{
		"IM_DB_HOST":         "localhost",
		"IM_DB_NAME":         "images",
		"IM_DB_USER":         "images",
		"IM_DB_PASSWORD":     "secret",
		"IM_DATA_DIR":        "/tmp/images",
		"IM_PUBLIC_BASE_URL": "https://img.arendadom.ru",
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	cleanupVars := setEnvVars(t, requiredEnvVars())
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port: ожидалось 8080, получено %d", cfg.Port)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort: ожидалось 5432, получено %d", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode: ожидалось 'disable', получено %q", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns: ожидалось 10, получено %d", cfg.DBMaxConns)
	}
	if cfg.DBMinConns != 2 {
		t.Errorf("DBMinConns: ожидалось 2, получено %d", cfg.DBMinConns)
	}
	if cfg.StorageBackend != BackendDisk {
		t.Errorf("StorageBackend: ожидалось 'disk', получено %q", cfg.StorageBackend)
	}
	if cfg.MaxFileSize != 10485760 {
		t.Errorf("MaxFileSize: ожидалось 10485760, получено %d", cfg.MaxFileSize)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL: ожидалось 2h, получено %v", cfg.SessionTTL)
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Errorf("SweepInterval: ожидалось 10m, получено %v", cfg.SweepInterval)
	}
	if cfg.StorageTimeout != 30*time.Second {
		t.Errorf("StorageTimeout: ожидалось 30s, получено %v", cfg.StorageTimeout)
	}
	if cfg.StorageRetryMax != 3 {
		t.Errorf("StorageRetryMax: ожидалось 3, получено %d", cfg.StorageRetryMax)
	}
	if cfg.StorageRetryDelay != 200*time.Millisecond {
		t.Errorf("StorageRetryDelay: ожидалось 200ms, получено %v", cfg.StorageRetryDelay)
	}
	if cfg.MigrateConcurrency != 4 {
		t.Errorf("MigrateConcurrency: ожидалось 4, получено %d", cfg.MigrateConcurrency)
	}
	if cfg.CacheSize != 1024 {
		t.Errorf("CacheSize: ожидалось 1024, получено %d", cfg.CacheSize)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL: ожидалось 5m, получено %v", cfg.CacheTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось INFO, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось 'json', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
	if cfg.HTTPReadTimeout != 60*time.Second {
		t.Errorf("HTTPReadTimeout: ожидалось 60s, получено %v", cfg.HTTPReadTimeout)
	}
	if cfg.HTTPWriteTimeout != 60*time.Second {
		t.Errorf("HTTPWriteTimeout: ожидалось 60s, получено %v", cfg.HTTPWriteTimeout)
	}
	if cfg.HTTPIdleTimeout != 120*time.Second {
		t.Errorf("HTTPIdleTimeout: ожидалось 120s, получено %v", cfg.HTTPIdleTimeout)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["IM_PORT"] = "9090"
	vars["IM_DB_PORT"] = "5433"
	vars["IM_DB_SSLMODE"] = "require"
	vars["IM_DB_MAX_CONNS"] = "20"
	vars["IM_DB_MIN_CONNS"] = "5"
	vars["IM_MAX_FILE_SIZE"] = "5242880"
	vars["IM_SESSION_TTL"] = "1h"
	vars["IM_SWEEP_INTERVAL"] = "5m"
	vars["IM_STORAGE_TIMEOUT"] = "10s"
	vars["IM_STORAGE_RETRY_MAX"] = "5"
	vars["IM_STORAGE_RETRY_DELAY"] = "100ms"
	vars["IM_MIGRATE_CONCURRENCY"] = "8"
	vars["IM_CACHE_SIZE"] = "256"
	vars["IM_CACHE_TTL"] = "1m"
	vars["IM_LOG_LEVEL"] = "debug"
	vars["IM_LOG_FORMAT"] = "text"
	vars["IM_SHUTDOWN_TIMEOUT"] = "10s"

	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port: ожидалось 9090, получено %d", cfg.Port)
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort: ожидалось 5433, получено %d", cfg.DBPort)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode: ожидалось 'require', получено %q", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("DBMaxConns: ожидалось 20, получено %d", cfg.DBMaxConns)
	}
	if cfg.DBMinConns != 5 {
		t.Errorf("DBMinConns: ожидалось 5, получено %d", cfg.DBMinConns)
	}
	if cfg.MaxFileSize != 5242880 {
		t.Errorf("MaxFileSize: ожидалось 5242880, получено %d", cfg.MaxFileSize)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL: ожидалось 1h, получено %v", cfg.SessionTTL)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval: ожидалось 5m, получено %v", cfg.SweepInterval)
	}
	if cfg.StorageRetryMax != 5 {
		t.Errorf("StorageRetryMax: ожидалось 5, получено %d", cfg.StorageRetryMax)
	}
	if cfg.StorageRetryDelay != 100*time.Millisecond {
		t.Errorf("StorageRetryDelay: ожидалось 100ms, получено %v", cfg.StorageRetryDelay)
	}
	if cfg.MigrateConcurrency != 8 {
		t.Errorf("MigrateConcurrency: ожидалось 8, получено %d", cfg.MigrateConcurrency)
	}
	if cfg.CacheSize != 256 {
		t.Errorf("CacheSize: ожидалось 256, получено %d", cfg.CacheSize)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: ожидалось DEBUG, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat: ожидалось 'text', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 10s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequiredVars(t *testing.T) {
	requiredKeys := []string{
		"IM_DB_HOST", "IM_DB_NAME", "IM_DB_USER", "IM_DB_PASSWORD",
		"IM_DATA_DIR", "IM_PUBLIC_BASE_URL",
	}

	for _, missing := range requiredKeys {
		t.Run(missing, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			delete(vars, missing)
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_GCSBackend(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	delete(vars, "IM_DATA_DIR")
	vars["IM_STORAGE_BACKEND"] = "gcs"
	vars["IM_GCS_BUCKET"] = "arendadom-images"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.StorageBackend != BackendGCS {
		t.Errorf("StorageBackend: ожидалось 'gcs', получено %q", cfg.StorageBackend)
	}
	if cfg.GCSBucket != "arendadom-images" {
		t.Errorf("GCSBucket: ожидалось 'arendadom-images', получено %q", cfg.GCSBucket)
	}
}

func TestLoad_GCSBackendRequiresBucket(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["IM_STORAGE_BACKEND"] = "gcs"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка: gcs без IM_GCS_BUCKET")
	}
}

func TestLoad_InvalidStorageBackend(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["IM_STORAGE_BACKEND"] = "s3"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного IM_STORAGE_BACKEND")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ноль", "0"},
		{"выше диапазона", "70000"},
		{"не число", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["IM_PORT"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для IM_PORT=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidDBPool(t *testing.T) {
	tests := []struct {
		name string
		max  string
		min  string
	}{
		{"нулевой максимум", "0", "0"},
		{"минимум больше максимума", "5", "10"},
		{"не число", "abc", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["IM_DB_MAX_CONNS"] = tt.max
			vars["IM_DB_MIN_CONNS"] = tt.min
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для IM_DB_MAX_CONNS=%s IM_DB_MIN_CONNS=%s", tt.max, tt.min)
			}
		})
	}
}

func TestLoad_InvalidPublicBaseURL(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"без схемы", "img.arendadom.ru"},
		{"относительный путь", "/images"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["IM_PUBLIC_BASE_URL"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для IM_PUBLIC_BASE_URL=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidMaxFileSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"не число", "abc"},
		{"нулевое", "0"},
		{"отрицательное", "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["IM_MAX_FILE_SIZE"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для IM_MAX_FILE_SIZE=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	durationVars := []string{
		"IM_SESSION_TTL", "IM_SWEEP_INTERVAL",
		"IM_STORAGE_TIMEOUT", "IM_STORAGE_RETRY_DELAY",
		"IM_CACHE_TTL", "IM_SHUTDOWN_TIMEOUT",
		"IM_HTTP_READ_TIMEOUT", "IM_HTTP_WRITE_TIMEOUT", "IM_HTTP_IDLE_TIMEOUT",
	}

	for _, varName := range durationVars {
		t.Run(varName, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars[varName] = "not-a-duration"
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для невалидного %s", varName)
			}
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["IM_LOG_LEVEL"] = "invalid"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного IM_LOG_LEVEL")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	cleanup := clearAllIMEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["IM_LOG_FORMAT"] = "yaml"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного IM_LOG_FORMAT")
	}
}

func TestLoad_ValidLogLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cleanup := clearAllIMEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["IM_LOG_LEVEL"] = tt.input
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if cfg.LogLevel != tt.expected {
				t.Errorf("LogLevel: ожидалось %v, получено %v", tt.expected, cfg.LogLevel)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.local",
		DBPort:     5433,
		DBName:     "images",
		DBUser:     "svc",
		DBPassword: "secret",
		DBSSLMode:  "disable",
	}
	want := "host=db.local port=5433 dbname=images user=svc password=secret sslmode=disable"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DSN: ожидалось %q, получено %q", want, got)
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Fatal("SetupLogger вернул nil")
			}
		})
	}
}
