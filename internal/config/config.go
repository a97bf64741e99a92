// Пакет config — загрузка и валидация конфигурации галереи
// из переменных окружения (и необязательного файла .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultSecret — ключ HMAC по умолчанию. Годится только для разработки.
const DefaultSecret = "mysecretthing"

// Допустимые окружения.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config содержит все параметры конфигурации галереи.
// Значения фиксируются при старте и не перечитываются.
type Config struct {
	// Окружение: development, production, test
	Env string
	// Адрес и порт HTTP-сервера
	Host string
	Port int
	// Ключ HMAC для вычисления идентификатора фотографии
	Secret string

	// Корневая директория данных окружения (data/<env>)
	DataDir string
	// Путь к JSON-файлу записей (db.json)
	DBPath string
	// Директория хранения изображений
	PhotoDir string
	// Директория резервных копий db.json
	BackupDir string
	// Директория WAL загрузок
	WALDir string
	// Директория собранного клиента (index.html)
	ClientDir string

	// Максимальный размер изображения в байтах
	MaxFileSize int64
	// Допустимые MIME-типы изображений
	AllowedMIMETypes []string
	// Таймаут скачивания одного изображения
	FetchTimeout time.Duration
	// Разрешить скачивание с loopback/частных адресов
	AllowPrivateHosts bool

	// Задержка перед записью резервной копии
	BackupDelay time.Duration
	// Окно объединения резервных копий (метка времени округляется вниз)
	BackupWindow time.Duration

	// Интервал фоновой сверки (0 — отключена)
	ReconcileInterval time.Duration
	// Файлы моложе этого возраста не считаются сиротами
	OrphanGrace time.Duration

	// Лимит POST /api/photos в минуту на IP (0 — без лимита)
	RateLimit int

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown (HTTP + сброс резервных копий)
	ShutdownTimeout time.Duration
}

// Addr возвращает адрес для net.Listen.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
// Перед чтением подгружается .env из текущей директории, если он есть;
// уже заданные переменные окружения имеют приоритет.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// GALLERY_ENV — окружение (по умолчанию development)
	cfg.Env = getEnvDefault("GALLERY_ENV", EnvDevelopment)
	switch cfg.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return nil, fmt.Errorf("GALLERY_ENV: недопустимое значение %q, допустимые: development, production, test", cfg.Env)
	}

	cfg.Host = getEnvDefault("GALLERY_HOST", "0.0.0.0")

	port, err := getEnvInt("GALLERY_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("GALLERY_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	cfg.Secret = getEnvDefault("GALLERY_SECRET", DefaultSecret)

	// Пути к данным выводятся из GALLERY_DATA_DIR, если не заданы явно
	cfg.DataDir = getEnvDefault("GALLERY_DATA_DIR", filepath.Join("data", cfg.Env))
	cfg.DBPath = getEnvDefault("GALLERY_DB_PATH", filepath.Join(cfg.DataDir, "db.json"))
	cfg.PhotoDir = getEnvDefault("GALLERY_PHOTO_DIR", filepath.Join(cfg.DataDir, "photos"))
	cfg.WALDir = getEnvDefault("GALLERY_WAL_DIR", filepath.Join(cfg.DataDir, "wal"))
	cfg.BackupDir = getEnvDefault("GALLERY_BACKUP_DIR", "tmp")
	cfg.ClientDir = getEnvDefault("GALLERY_CLIENT_DIR", "public")

	// GALLERY_MAX_FILE_SIZE — максимальный размер изображения (по умолчанию 5 МБ)
	cfg.MaxFileSize, err = getEnvInt64("GALLERY_MAX_FILE_SIZE", 5242880)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("GALLERY_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.AllowedMIMETypes = getEnvList("GALLERY_ALLOWED_MIME_TYPES", []string{"image/png", "image/jpeg", "image/gif"})
	for _, mt := range cfg.AllowedMIMETypes {
		if !strings.HasPrefix(mt, "image/") {
			return nil, fmt.Errorf("GALLERY_ALLOWED_MIME_TYPES: %q не является типом изображения", mt)
		}
	}

	cfg.FetchTimeout, err = getEnvDuration("GALLERY_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_FETCH_TIMEOUT: %w", err)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("GALLERY_FETCH_TIMEOUT: значение должно быть положительным")
	}

	cfg.AllowPrivateHosts, err = getEnvBool("GALLERY_ALLOW_PRIVATE_HOSTS", false)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_ALLOW_PRIVATE_HOSTS: %w", err)
	}

	cfg.BackupDelay, err = getEnvDuration("GALLERY_BACKUP_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_BACKUP_DELAY: %w", err)
	}

	cfg.BackupWindow, err = getEnvDuration("GALLERY_BACKUP_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_BACKUP_WINDOW: %w", err)
	}
	if cfg.BackupWindow <= 0 {
		return nil, fmt.Errorf("GALLERY_BACKUP_WINDOW: значение должно быть положительным")
	}

	// GALLERY_RECONCILE_INTERVAL — интервал сверки (по умолчанию 6h, 0 — отключена)
	cfg.ReconcileInterval, err = getEnvDuration("GALLERY_RECONCILE_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_RECONCILE_INTERVAL: %w", err)
	}

	cfg.OrphanGrace, err = getEnvDuration("GALLERY_ORPHAN_GRACE", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_ORPHAN_GRACE: %w", err)
	}

	cfg.RateLimit, err = getEnvInt("GALLERY_RATE_LIMIT", 60)
	if err != nil {
		return nil, fmt.Errorf("GALLERY_RATE_LIMIT: %w", err)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("GALLERY_RATE_LIMIT: значение не может быть отрицательным")
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
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

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// getEnvList возвращает список значений, разделённых запятыми.
// Пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var result []string
	for _, part := range strings.Split(val, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
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
