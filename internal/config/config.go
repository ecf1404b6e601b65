// Пакет config — загрузка и валидация конфигурации модуля изображений
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бекенды объектного хранилища.
const (
	BackendDisk = "disk"
	BackendGCS  = "gcs"
)

// Config содержит все параметры конфигурации модуля изображений.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Пользователь PostgreSQL
	DBUser string
	// Пароль PostgreSQL
	DBPassword string
	// Режим SSL подключения к PostgreSQL
	DBSSLMode string
	// Максимальное число соединений пула PostgreSQL
	DBMaxConns int
	// Минимальное число поддерживаемых соединений пула
	DBMinConns int

	// Бекенд объектного хранилища: disk или gcs
	StorageBackend string
	// Путь к директории данных (бекенд disk)
	DataDir string
	// Имя бакета GCS (бекенд gcs)
	GCSBucket string
	// Публичный базовый URL для ссылок на изображения
	PublicBaseURL string

	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// TTL временной сессии загрузки
	SessionTTL time.Duration
	// Интервал очистки осиротевших временных изображений
	SweepInterval time.Duration

	// Таймаут одной операции объектного хранилища
	StorageTimeout time.Duration
	// Максимальное количество попыток записи в хранилище
	StorageRetryMax int
	// Базовая задержка между попытками записи
	StorageRetryDelay time.Duration

	// Количество параллельно мигрируемых изображений
	MigrateConcurrency int

	// Ёмкость LRU-кеша фасада чтения
	CacheSize int
	// TTL записи кеша фасада чтения
	CacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера.
	// Должен быть меньше K8s terminationGracePeriodSeconds.
	ShutdownTimeout time.Duration
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// IM_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("IM_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("IM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("IM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// IM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("IM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// IM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("IM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("IM_DB_PORT: %w", err)
	}

	// IM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("IM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// IM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("IM_DB_USER")
	if err != nil {
		return nil, err
	}

	// IM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("IM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// IM_DB_SSLMODE — режим SSL (по умолчанию disable, TLS внутри кластера не используется)
	cfg.DBSSLMode = getEnvDefault("IM_DB_SSLMODE", "disable")

	// IM_DB_MAX_CONNS — максимум соединений пула (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("IM_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("IM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("IM_DB_MAX_CONNS должен быть не меньше 1, получено %d", cfg.DBMaxConns)
	}

	// IM_DB_MIN_CONNS — минимум поддерживаемых соединений (по умолчанию 2)
	cfg.DBMinConns, err = getEnvInt("IM_DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("IM_DB_MIN_CONNS: %w", err)
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("IM_DB_MIN_CONNS должен быть в диапазоне 0..IM_DB_MAX_CONNS, получено %d", cfg.DBMinConns)
	}

	// IM_STORAGE_BACKEND — бекенд хранилища (по умолчанию disk)
	cfg.StorageBackend = getEnvDefault("IM_STORAGE_BACKEND", BackendDisk)
	switch cfg.StorageBackend {
	case BackendDisk:
		// IM_DATA_DIR обязателен для дискового бекенда
		cfg.DataDir, err = getEnvRequired("IM_DATA_DIR")
		if err != nil {
			return nil, err
		}
	case BackendGCS:
		// IM_GCS_BUCKET обязателен для GCS
		cfg.GCSBucket, err = getEnvRequired("IM_GCS_BUCKET")
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("IM_STORAGE_BACKEND: недопустимое значение %q, допустимые: disk, gcs", cfg.StorageBackend)
	}

	// IM_PUBLIC_BASE_URL — обязательный, абсолютный URL
	cfg.PublicBaseURL, err = getEnvRequired("IM_PUBLIC_BASE_URL")
	if err != nil {
		return nil, err
	}
	if u, parseErr := url.Parse(cfg.PublicBaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("IM_PUBLIC_BASE_URL: значение %q не является абсолютным URL", cfg.PublicBaseURL)
	}

	// IM_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MB)
	cfg.MaxFileSize, err = getEnvInt64("IM_MAX_FILE_SIZE", 10485760)
	if err != nil {
		return nil, fmt.Errorf("IM_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("IM_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// IM_SESSION_TTL — TTL сессии загрузки (по умолчанию 2h)
	cfg.SessionTTL, err = getEnvDuration("IM_SESSION_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IM_SESSION_TTL: %w", err)
	}

	// IM_SWEEP_INTERVAL — интервал очистки (по умолчанию 10m)
	cfg.SweepInterval, err = getEnvDuration("IM_SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_SWEEP_INTERVAL: %w", err)
	}

	// IM_STORAGE_TIMEOUT — таймаут операции хранилища (по умолчанию 30s)
	cfg.StorageTimeout, err = getEnvDuration("IM_STORAGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_STORAGE_TIMEOUT: %w", err)
	}

	// IM_STORAGE_RETRY_MAX — количество попыток записи (по умолчанию 3)
	cfg.StorageRetryMax, err = getEnvInt("IM_STORAGE_RETRY_MAX", 3)
	if err != nil {
		return nil, fmt.Errorf("IM_STORAGE_RETRY_MAX: %w", err)
	}
	if cfg.StorageRetryMax < 1 {
		return nil, fmt.Errorf("IM_STORAGE_RETRY_MAX: значение должно быть >= 1")
	}

	// IM_STORAGE_RETRY_DELAY — базовая задержка ретраев (по умолчанию 200ms)
	cfg.StorageRetryDelay, err = getEnvDuration("IM_STORAGE_RETRY_DELAY", 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("IM_STORAGE_RETRY_DELAY: %w", err)
	}

	// IM_MIGRATE_CONCURRENCY — параллелизм миграции (по умолчанию 4)
	cfg.MigrateConcurrency, err = getEnvInt("IM_MIGRATE_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("IM_MIGRATE_CONCURRENCY: %w", err)
	}
	if cfg.MigrateConcurrency < 1 {
		return nil, fmt.Errorf("IM_MIGRATE_CONCURRENCY: значение должно быть >= 1")
	}

	// IM_CACHE_SIZE — ёмкость кеша фасада чтения (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("IM_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("IM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("IM_CACHE_SIZE: значение должно быть >= 1")
	}

	// IM_CACHE_TTL — TTL записи кеша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("IM_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_CACHE_TTL: %w", err)
	}

	// IM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IM_LOG_LEVEL: %w", err)
	}

	// IM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("IM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// IM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("IM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// IM_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 60s,
	// c запасом на загрузку пакета файлов)
	cfg.HTTPReadTimeout, err = getEnvDuration("IM_HTTP_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_HTTP_READ_TIMEOUT: %w", err)
	}

	// IM_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 60s)
	cfg.HTTPWriteTimeout, err = getEnvDuration("IM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// IM_HTTP_IDLE_TIMEOUT — таймаут keep-alive (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("IM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 10m, 2h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
