// Пакет config — загрузка и валидация конфигурации Data Audit System
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Data Audit System.
// Загружается один раз при старте и передаётся компонентам по ссылке —
// никакого глобального изменяемого состояния.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 10m — streaming больших файлов)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Файловый сервер ---

	// Корень файлового сервера; граница, за которую архиватор не выходит
	FileServerRoot string
	// Порог неактивности в днях: файл — кандидат на архивирование,
	// если now - last_accessed > RetentionDays (по умолчанию 180)
	RetentionDays int

	// --- Холодное хранилище (S3) ---

	// Бакет архива
	ArchiveBucket string
	// Endpoint S3 API (по умолчанию s3.amazonaws.com)
	S3Endpoint string
	// Регион S3
	S3Region string
	// Ключи доступа; пустые значения — использовать IAM-роль (EC2/Lambda)
	S3AccessKeyID     string
	S3SecretAccessKey string
	// TLS к S3 endpoint (по умолчанию true)
	S3UseSSL bool
	// Класс хранения архивных объектов (GLACIER, DEEP_ARCHIVE)
	S3StorageClass string
	// Таймаут одной операции холодного хранилища (upload/stat/restore/download)
	ColdOpTimeout time.Duration
	// Сколько дней восстановленная копия остаётся доступной (1-30, по умолчанию 5)
	RestoreDays int
	// Директория промежуточного скачивания восстановленных объектов
	StagingDir string

	// --- SharePoint / Microsoft Graph ---

	// Идентификатор сайта в формате hostname,site-id,web-id
	SharePointSiteID  string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	// Таймаут HTTP-запросов к Graph API (по умолчанию 30s)
	GraphTimeout time.Duration

	// --- Аутентификация операторов ---

	// Статические учётные данные администратора (если AD не настроен)
	AdminUsername string
	AdminPassword string
	// Active Directory / LDAP; пустой ADServer — проверка по статическим данным
	ADServer           string
	ADPort             int
	ADUseSSL           bool
	ADBaseDN           string
	ADAllowedGroupDN   string
	LDAPSkipCertVerify bool

	// --- Кэш записей (Retrieval Gateway) ---

	// Размер LRU-кэша записей
	CacheSize int
	// TTL записи в кэше
	CacheTTL time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DA_PORT — порт HTTP-сервера (по умолчанию 5000)
	cfg.Port, err = getEnvInt("DA_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("DA_PORT: %w", err)
	}

	// DA_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("DA_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("DA_LOG_LEVEL: %w", err)
	}

	// DA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DA_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("DA_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DA_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("DA_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DA_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("DA_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DA_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("DA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DA_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("DA_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DA_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DA_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("DA_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("DA_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("DA_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DA_DB_SSL_MODE", "disable")

	// --- Файловый сервер ---

	cfg.FileServerRoot = getEnvDefault("DA_FILE_SERVER_ROOT", "")
	cfg.RetentionDays, err = getEnvInt("DA_RETENTION_DAYS", 180)
	if err != nil {
		return nil, fmt.Errorf("DA_RETENTION_DAYS: %w", err)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("DA_RETENTION_DAYS: значение должно быть > 0")
	}

	// --- Холодное хранилище ---

	cfg.ArchiveBucket = getEnvDefault("DA_ARCHIVE_BUCKET", "")
	cfg.S3Endpoint = getEnvDefault("DA_S3_ENDPOINT", "s3.amazonaws.com")
	cfg.S3Region = getEnvDefault("DA_S3_REGION", "")
	cfg.S3AccessKeyID = getEnvDefault("DA_S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvDefault("DA_S3_SECRET_ACCESS_KEY", "")
	cfg.S3UseSSL, err = getEnvBool("DA_S3_USE_SSL", true)
	if err != nil {
		return nil, fmt.Errorf("DA_S3_USE_SSL: %w", err)
	}
	cfg.S3StorageClass = getEnvDefault("DA_S3_STORAGE_CLASS", "DEEP_ARCHIVE")
	if cfg.S3StorageClass != "GLACIER" && cfg.S3StorageClass != "DEEP_ARCHIVE" {
		return nil, fmt.Errorf("DA_S3_STORAGE_CLASS: недопустимый класс %q, допустимые: GLACIER, DEEP_ARCHIVE", cfg.S3StorageClass)
	}
	cfg.ColdOpTimeout, err = getEnvDuration("DA_COLD_OP_TIMEOUT", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DA_COLD_OP_TIMEOUT: %w", err)
	}
	cfg.RestoreDays, err = getEnvInt("DA_RESTORE_DAYS", 5)
	if err != nil {
		return nil, fmt.Errorf("DA_RESTORE_DAYS: %w", err)
	}
	if cfg.RestoreDays < 1 || cfg.RestoreDays > 30 {
		return nil, fmt.Errorf("DA_RESTORE_DAYS: значение должно быть в диапазоне 1-30")
	}
	cfg.StagingDir = getEnvDefault("DA_STAGING_DIR", filepath.Join(os.TempDir(), "data-audit-staging"))

	// --- SharePoint / Graph ---

	cfg.SharePointSiteID = getEnvDefault("DA_SP_SITE_ID", "")
	cfg.GraphTenantID = getEnvDefault("DA_GRAPH_TENANT_ID", "")
	cfg.GraphClientID = getEnvDefault("DA_GRAPH_CLIENT_ID", "")
	cfg.GraphClientSecret = getEnvDefault("DA_GRAPH_CLIENT_SECRET", "")
	cfg.GraphTimeout, err = getEnvDuration("DA_GRAPH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DA_GRAPH_TIMEOUT: %w", err)
	}

	// --- Аутентификация ---

	cfg.AdminUsername = getEnvDefault("DA_ADMIN_USERNAME", "")
	cfg.AdminPassword = getEnvDefault("DA_ADMIN_PASSWORD", "")
	cfg.ADServer = getEnvDefault("DA_AD_SERVER", "")
	cfg.ADPort, err = getEnvInt("DA_AD_PORT", 636)
	if err != nil {
		return nil, fmt.Errorf("DA_AD_PORT: %w", err)
	}
	cfg.ADUseSSL, err = getEnvBool("DA_AD_USE_SSL", true)
	if err != nil {
		return nil, fmt.Errorf("DA_AD_USE_SSL: %w", err)
	}
	cfg.ADBaseDN = getEnvDefault("DA_AD_BASE_DN", "")
	cfg.ADAllowedGroupDN = getEnvDefault("DA_AD_ALLOWED_GROUP_DN", "")
	cfg.LDAPSkipCertVerify, err = getEnvBool("DA_LDAP_SKIP_CERT_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("DA_LDAP_SKIP_CERT_VERIFY: %w", err)
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("DA_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DA_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("DA_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DA_CACHE_TTL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Retention возвращает порог неактивности как time.Duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// RequireFileServer проверяет параметры сканирования файлового сервера.
func (c *Config) RequireFileServer() error {
	if c.FileServerRoot == "" {
		return fmt.Errorf("DA_FILE_SERVER_ROOT: обязательная переменная окружения не задана")
	}
	return nil
}

// RequireS3 проверяет параметры холодного хранилища.
func (c *Config) RequireS3() error {
	if c.ArchiveBucket == "" {
		return fmt.Errorf("DA_ARCHIVE_BUCKET: обязательная переменная окружения не задана")
	}
	return nil
}

// RequireGraph проверяет параметры SharePoint/Graph.
func (c *Config) RequireGraph() error {
	missing := []string{}
	if c.SharePointSiteID == "" {
		missing = append(missing, "DA_SP_SITE_ID")
	}
	if c.GraphTenantID == "" {
		missing = append(missing, "DA_GRAPH_TENANT_ID")
	}
	if c.GraphClientID == "" {
		missing = append(missing, "DA_GRAPH_CLIENT_ID")
	}
	if c.GraphClientSecret == "" {
		missing = append(missing, "DA_GRAPH_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("не заданы обязательные переменные SharePoint: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireAuth проверяет, что настроен хотя бы один способ проверки
// учётных данных оператора: AD-сервер или статическая пара логин/пароль.
func (c *Config) RequireAuth() error {
	if c.ADServer != "" {
		if c.ADBaseDN == "" {
			return fmt.Errorf("DA_AD_BASE_DN: обязательна при заданном DA_AD_SERVER")
		}
		return nil
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return fmt.Errorf("не заданы DA_ADMIN_USERNAME/DA_ADMIN_PASSWORD (или DA_AD_SERVER для проверки через AD)")
	}
	return nil
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

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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
