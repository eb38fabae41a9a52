package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port      int    `mapstructure:"port"`
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// EngineConfig 描述外部排版引擎的访问方式。
type EngineConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Timeout returns the per-request engine timeout.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// EditorConfig 控制编辑会话的去抖窗口与默认语言。
type EditorConfig struct {
	PreviewDebounceMS  int    `mapstructure:"preview_debounce_ms"`
	AutoSizeDebounceMS int    `mapstructure:"autosize_debounce_ms"`
	DefaultLang        string `mapstructure:"default_lang"`
}

// PreviewDebounce returns the live preview debounce window.
func (e EditorConfig) PreviewDebounce() time.Duration {
	return time.Duration(e.PreviewDebounceMS) * time.Millisecond
}

// AutoSizeDebounce returns the auto-size debounce window.
func (e EditorConfig) AutoSizeDebounce() time.Duration {
	return time.Duration(e.AutoSizeDebounceMS) * time.Millisecond
}

// LimitsConfig 描述按账号类型的保存上限与导入频控。
type LimitsConfig struct {
	MaxResumesPerGuest int `mapstructure:"max_resumes_per_guest"`
	MaxResumesPerUser  int `mapstructure:"max_resumes_per_user"`
	ImportsPerHour     int `mapstructure:"imports_per_hour"`
}

// AuthConfig carries the public key used to validate tokens issued by the
// external auth service.
type AuthConfig struct {
	PublicKeyPEM string `mapstructure:"public_key_pem"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cvforge")
	v.SetDefault("database.user", "cvforge")
	v.SetDefault("database.password", "cvforge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "resumes")
	v.SetDefault("engine.base_url", "http://localhost:8000")
	v.SetDefault("engine.timeout_ms", 15000)
	v.SetDefault("editor.preview_debounce_ms", 1000)
	v.SetDefault("editor.autosize_debounce_ms", 1000)
	v.SetDefault("editor.default_lang", "fr")
	v.SetDefault("limits.max_resumes_per_guest", 1)
	v.SetDefault("limits.max_resumes_per_user", 3)
	v.SetDefault("limits.imports_per_hour", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                     "API_PORT",
		"api.clamd_addr":               "CLAMD_ADDR",
		"database.host":                "DATABASE_HOST",
		"database.port":                "DATABASE_PORT",
		"database.name":                "POSTGRES_DB",
		"database.user":                "POSTGRES_USER",
		"database.password":            "POSTGRES_PASSWORD",
		"database.sslmode":             "DATABASE_SSLMODE",
		"redis.host":                   "REDIS_HOST",
		"redis.port":                   "REDIS_PORT",
		"minio.endpoint":               "MINIO_ENDPOINT",
		"minio.access_key_id":          "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":      "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                "MINIO_USE_SSL",
		"minio.bucket":                 "MINIO_BUCKET",
		"engine.base_url":              "ENGINE_BASE_URL",
		"engine.timeout_ms":            "ENGINE_TIMEOUT_MS",
		"editor.preview_debounce_ms":   "PREVIEW_DEBOUNCE_MS",
		"editor.autosize_debounce_ms":  "AUTOSIZE_DEBOUNCE_MS",
		"editor.default_lang":          "DEFAULT_LANG",
		"limits.max_resumes_per_guest": "MAX_RESUMES_PER_GUEST",
		"limits.max_resumes_per_user":  "MAX_RESUMES_PER_USER",
		"limits.imports_per_hour":      "IMPORTS_PER_HOUR",
		"auth.public_key_pem":          "AUTH_PUBLIC_KEY_PEM",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Engine.BaseURL == "" {
		return errors.New("engine base url is required")
	}
	if cfg.Engine.TimeoutMS <= 0 {
		return errors.New("engine timeout must be positive")
	}
	if cfg.Editor.PreviewDebounceMS <= 0 {
		return errors.New("preview debounce must be positive")
	}
	if cfg.Editor.AutoSizeDebounceMS <= 0 {
		return errors.New("autosize debounce must be positive")
	}
	if len(cfg.Editor.DefaultLang) != 2 {
		return errors.New("default lang must be a two-letter code")
	}
	if cfg.Limits.MaxResumesPerGuest <= 0 || cfg.Limits.MaxResumesPerUser <= 0 {
		return errors.New("resume limits must be positive")
	}
	return nil
}
