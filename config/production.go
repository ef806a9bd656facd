// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Security     SecurityConfig     `json:"security"`
	JWT          JWTConfig          `json:"jwt"`
	Vault        VaultConfig        `json:"vault"`
	Platforms    PlatformsConfig    `json:"platforms"`
	Sync         SyncConfig         `json:"sync"`
	Notification NotificationConfig `json:"notification"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Cache        CacheConfig        `json:"cache"`
	Deployment   DeploymentConfig   `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnablePprof       bool          `json:"enable_pprof"`
	EnableMetrics     bool          `json:"enable_metrics"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
	CompressionLevel  int           `json:"compression_level"`
}

type SecurityConfig struct {
	// TLS/HTTPS
	TLSEnabled    bool   `json:"tls_enabled"`
	TLSCertFile   string `json:"tls_cert_file"`
	TLSKeyFile    string `json:"tls_key_file"`
	TLSMinVersion string `json:"tls_min_version"`

	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	// CredentialSealKey is the 32-byte hex key used to seal inline
	// integration credentials at rest.
	CredentialSealKey string `json:"credential_seal_key"`
}

type JWTConfig struct {
	SecretKey      string        `json:"secret_key"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	Issuer         string        `json:"issuer"`
	Audience       string        `json:"audience"`
	Algorithm      string        `json:"algorithm"`
}

// VaultConfig configures the secret store used for integration credentials
type VaultConfig struct {
	Address   string        `json:"address"`
	Token     string        `json:"token"`
	MountPath string        `json:"mount_path"`
	Timeout   time.Duration `json:"timeout"`
}

// PlatformsConfig holds the per-platform API client settings
type PlatformsConfig struct {
	Meta      PlatformAPIConfig `json:"meta"`
	GoogleAds PlatformAPIConfig `json:"google_ads"`
	TikTok    PlatformAPIConfig `json:"tiktok"`
}

type PlatformAPIConfig struct {
	BaseURL     string        `json:"base_url"`
	Timeout     time.Duration `json:"timeout"`
	MaxAttempts int           `json:"max_attempts"`
}

// SyncConfig controls the metric synchronization engine
type SyncConfig struct {
	// Interval between scheduled runs per platform.
	Interval time.Duration `json:"interval"`
	// MaxConcurrent caps integrations processed in parallel within a run.
	MaxConcurrent int `json:"max_concurrent"`
	// RoutineLookbackDays is the window of the routine metric sync.
	RoutineLookbackDays int `json:"routine_lookback_days"`
	// InsightsLookbackDays is the window of the Meta insights import.
	InsightsLookbackDays int `json:"insights_lookback_days"`
	// SummaryCacheTTL is how long the last run summary stays in redis.
	SummaryCacheTTL time.Duration `json:"summary_cache_ttl"`
	// LockTTL bounds the per-platform scheduler lock.
	LockTTL time.Duration `json:"lock_ttl"`
}

// NotificationConfig configures the sink notified after insight imports
type NotificationConfig struct {
	Enabled    bool          `json:"enabled"`
	WebhookURL string        `json:"webhook_url"`
	Timeout    time.Duration `json:"timeout"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // json, text
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	// Sync Logs
	EnableSyncLog bool   `json:"enable_sync_log"`
	SyncLogPath   string `json:"sync_log_path"`
}

type MetricsConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path"`
	EnablePprof bool   `json:"enable_pprof"`

	// Custom Metrics
	CollectDBMetrics   bool `json:"collect_db_metrics"`
	CollectSyncMetrics bool `json:"collect_sync_metrics"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			EnablePprof:       getEnvBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics:     getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
			CompressionLevel:  getEnvInt("SERVER_COMPRESSION_LEVEL", 6),
		},
		Security: SecurityConfig{
			TLSEnabled:        getEnvBool("TLS_ENABLED", true),
			TLSCertFile:       getEnvString("TLS_CERT_FILE", "/etc/ssl/certs/traffic-api.crt"),
			TLSKeyFile:        getEnvString("TLS_KEY_FILE", "/etc/ssl/private/traffic-api.key"),
			TLSMinVersion:     getEnvString("TLS_MIN_VERSION", "1.3"),
			AllowedOrigins:    getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://app.trafficlab.io", "https://api.trafficlab.io"}),
			AllowedMethods:    getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:    getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}),
			AllowCredentials:  getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:        getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:   getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			CredentialSealKey: getEnvString("CREDENTIAL_SEAL_KEY", ""),
		},
		JWT: JWTConfig{
			SecretKey:      getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL: getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnvString("JWT_ISSUER", "traffic-api"),
			Audience:       getEnvString("JWT_AUDIENCE", "traffic-dashboard"),
			Algorithm:      getEnvString("JWT_ALGORITHM", "HS256"),
		},
		Vault: VaultConfig{
			Address:   getEnvString("VAULT_ADDR", "http://localhost:8200"),
			Token:     getEnvString("VAULT_TOKEN", ""),
			MountPath: getEnvString("VAULT_MOUNT_PATH", "integrations"),
			Timeout:   getEnvDuration("VAULT_TIMEOUT", 10*time.Second),
		},
		Platforms: PlatformsConfig{
			Meta: PlatformAPIConfig{
				BaseURL:     getEnvString("META_BASE_URL", "https://graph.facebook.com/v19.0"),
				Timeout:     getEnvDuration("META_TIMEOUT", 30*time.Second),
				MaxAttempts: getEnvInt("META_MAX_ATTEMPTS", 3),
			},
			GoogleAds: PlatformAPIConfig{
				BaseURL:     getEnvString("GOOGLE_ADS_BASE_URL", "https://googleads.googleapis.com/v16"),
				Timeout:     getEnvDuration("GOOGLE_ADS_TIMEOUT", 30*time.Second),
				MaxAttempts: getEnvInt("GOOGLE_ADS_MAX_ATTEMPTS", 3),
			},
			TikTok: PlatformAPIConfig{
				BaseURL:     getEnvString("TIKTOK_BASE_URL", "https://business-api.tiktok.com/open_api/v1.3"),
				Timeout:     getEnvDuration("TIKTOK_TIMEOUT", 30*time.Second),
				MaxAttempts: getEnvInt("TIKTOK_MAX_ATTEMPTS", 3),
			},
		},
		Sync: SyncConfig{
			Interval:             getEnvDuration("SYNC_INTERVAL", 6*time.Hour),
			MaxConcurrent:        getEnvInt("SYNC_MAX_CONCURRENT", 4),
			RoutineLookbackDays:  getEnvInt("SYNC_ROUTINE_LOOKBACK_DAYS", 7),
			InsightsLookbackDays: getEnvInt("SYNC_INSIGHTS_LOOKBACK_DAYS", 30),
			SummaryCacheTTL:      getEnvDuration("SYNC_SUMMARY_CACHE_TTL", 24*time.Hour),
			LockTTL:              getEnvDuration("SYNC_LOCK_TTL", 30*time.Minute),
		},
		Notification: NotificationConfig{
			Enabled:    getEnvBool("NOTIFICATION_ENABLED", false),
			WebhookURL: getEnvString("NOTIFICATION_WEBHOOK_URL", ""),
			Timeout:    getEnvDuration("NOTIFICATION_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:         getEnvString("LOG_LEVEL", "info"),
			Format:        getEnvString("LOG_FORMAT", "json"),
			Output:        getEnvString("LOG_OUTPUT", "file"),
			FilePath:      getEnvString("LOG_FILE_PATH", "/var/log/traffic-api/app.log"),
			MaxSize:       getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:    getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:        getEnvInt("LOG_MAX_AGE", 30),
			Compress:      getEnvBool("LOG_COMPRESS", true),
			EnableSyncLog: getEnvBool("LOG_ENABLE_SYNC", true),
			SyncLogPath:   getEnvString("LOG_SYNC_PATH", "/var/log/traffic-api/sync.log"),
		},
		Metrics: MetricsConfig{
			Enabled:            getEnvBool("METRICS_ENABLED", true),
			Path:               getEnvString("METRICS_PATH", "/metrics"),
			EnablePprof:        getEnvBool("METRICS_ENABLE_PPROF", false),
			CollectDBMetrics:   getEnvBool("METRICS_COLLECT_DB", true),
			CollectSyncMetrics: getEnvBool("METRICS_COLLECT_SYNC", true),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "traffic:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errors = append(errors, "JWT_AUDIENCE is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if cfg.Server.IdleTimeout <= 0 {
		errors = append(errors, "SERVER_IDLE_TIMEOUT must be positive")
	}

	// Validate credential sealing key
	if cfg.Security.CredentialSealKey == "" {
		errors = append(errors, "CREDENTIAL_SEAL_KEY is required")
	} else if len(cfg.Security.CredentialSealKey) != 64 {
		errors = append(errors, "CREDENTIAL_SEAL_KEY must be 64 hex characters (32 bytes)")
	}

	// Validate TLS configuration if enabled
	if cfg.Security.TLSEnabled {
		if cfg.Security.TLSCertFile == "" {
			errors = append(errors, "TLS_CERT_FILE is required when TLS is enabled")
		}
		if cfg.Security.TLSKeyFile == "" {
			errors = append(errors, "TLS_KEY_FILE is required when TLS is enabled")
		}
	}

	// Validate sync configuration
	if cfg.Sync.Interval <= 0 {
		errors = append(errors, "SYNC_INTERVAL must be positive")
	}
	if cfg.Sync.MaxConcurrent < 1 || cfg.Sync.MaxConcurrent > 8 {
		errors = append(errors, "SYNC_MAX_CONCURRENT must be between 1 and 8")
	}
	if cfg.Sync.RoutineLookbackDays <= 0 {
		errors = append(errors, "SYNC_ROUTINE_LOOKBACK_DAYS must be positive")
	}
	if cfg.Sync.InsightsLookbackDays <= 0 {
		errors = append(errors, "SYNC_INSIGHTS_LOOKBACK_DAYS must be positive")
	}

	// Validate notification configuration if enabled
	if cfg.Notification.Enabled && cfg.Notification.WebhookURL == "" {
		errors = append(errors, "NOTIFICATION_WEBHOOK_URL is required when notifications are enabled")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
