package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	StoreBackendMemory   = "memory"
	StoreBackendBolt     = "bolt"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"

	CredentialSchemePlain  = "plain"
	CredentialSchemeBcrypt = "bcrypt"

	AvatarBackendNone = "none"
	AvatarBackendDisk = "disk"
	AvatarBackendS3   = "s3"
)

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	CorsAllowedOrigins []string `toml:"cors_allowed_origins"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// durable store
	StoreBackend string `toml:"store_backend"`
	StoreCacheMB int    `toml:"store_cache_mb"`
	BoltPath     string `toml:"bolt_path"`
	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`
	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// sessions
	CredentialScheme        string `toml:"credential_scheme"`
	PasswordHashCost        int    `toml:"password_hash_cost"`
	ProfileTokenTTLHours    int    `toml:"profile_token_ttl_hours"`
	ProfileIdleTTLHours     int    `toml:"profile_idle_ttl_hours"`
	ProfileCleanIntervalMin int    `toml:"profile_clean_interval_min"`
	LoginRateLimitPerMin    int    `toml:"login_rate_limit_per_min"`
	RateLimitingEnabled     bool   `toml:"rate_limiting_enabled"`

	// avatars
	AvatarBackend       string `toml:"avatar_backend"`
	AvatarMaxSizeKB     int64  `toml:"avatar_max_size_kb"`
	AvatarDiskPath      string `toml:"avatar_disk_path"`
	AvatarPublicBaseURL string `toml:"avatar_public_base_url"`
	// S3 compatible storage
	S3Region       string `toml:"s3_region"`
	S3BaseEndpoint string `toml:"s3_base_endpoint"`
	S3Bucket       string `toml:"s3_bucket"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}

	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] missing", env)
	}

	cfg.Environment = strings.ToLower(env)
	return cfg, nil
}

// Load reads the TOML file at path and returns the config for env, with defaults applied.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return configFromToml(&t, env)
}

// Parse is Load for in-memory TOML content.
func Parse(env, content string) (*Config, error) {
	var t Toml
	if _, err := toml.Decode(content, &t); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return configFromToml(&t, env)
}

func configFromToml(t *Toml, env string) (*Config, error) {
	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
	if c.StoreBackend == "" {
		c.StoreBackend = StoreBackendMemory
	}
	if c.BoltPath == "" {
		c.BoltPath = "./healthtracker.db"
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
	if c.PostgresPort == "" {
		c.PostgresPort = "5432"
	}
	if c.CredentialScheme == "" {
		c.CredentialScheme = CredentialSchemeBcrypt
	}
	if c.PasswordHashCost == 0 {
		c.PasswordHashCost = 12
	}
	if c.ProfileTokenTTLHours == 0 {
		c.ProfileTokenTTLHours = 24 * 365
	}
	if c.ProfileIdleTTLHours == 0 {
		c.ProfileIdleTTLHours = 8
	}
	if c.ProfileCleanIntervalMin == 0 {
		c.ProfileCleanIntervalMin = 10
	}
	if c.LoginRateLimitPerMin == 0 {
		c.LoginRateLimitPerMin = 15
	}
	if c.AvatarBackend == "" {
		c.AvatarBackend = AvatarBackendNone
	}
	if c.AvatarDiskPath == "" {
		c.AvatarDiskPath = "./avatars"
	}
	if c.AvatarMaxSizeKB == 0 {
		c.AvatarMaxSizeKB = 5 * 1024
	}
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendBolt:
	case StoreBackendRedis:
		if c.RedisHost == "" {
			return fmt.Errorf("store backend %s requires redis_host", c.StoreBackend)
		}
	case StoreBackendPostgres:
		if c.PostgresHost == "" || c.PostgresDBName == "" {
			return fmt.Errorf("store backend %s requires postgres_host and postgres_db_name", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}

	switch c.CredentialScheme {
	case CredentialSchemePlain, CredentialSchemeBcrypt:
	default:
		return fmt.Errorf("unknown credential scheme: %s", c.CredentialScheme)
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"profile_token_ttl_hours", int64(c.ProfileTokenTTLHours)},
		{"profile_idle_ttl_hours", int64(c.ProfileIdleTTLHours)},
		{"profile_clean_interval_min", int64(c.ProfileCleanIntervalMin)},
		{"login_rate_limit_per_min", int64(c.LoginRateLimitPerMin)},
		{"avatar_max_size_kb", c.AvatarMaxSizeKB},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.StoreCacheMB < 0 {
		return fmt.Errorf("store_cache_mb must not be negative, got %d", c.StoreCacheMB)
	}

	if c.RateLimitingEnabled && c.RedisHost == "" {
		return fmt.Errorf("rate limiting requires redis_host")
	}

	switch c.AvatarBackend {
	case AvatarBackendNone, AvatarBackendDisk:
	case AvatarBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("avatar backend %s requires s3_bucket", c.AvatarBackend)
		}
	default:
		return fmt.Errorf("unknown avatar backend: %s", c.AvatarBackend)
	}

	return nil
}
