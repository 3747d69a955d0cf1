package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/cdp-activation/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Data       DataConfig       `yaml:"data"`
	Segments   SegmentsConfig   `yaml:"segments"`
	Activation ActivationConfig `yaml:"activation"`
	Meta       MetaConfig       `yaml:"meta"`
	Google     GoogleConfig     `yaml:"google"`
	TikTok     TikTokConfig     `yaml:"tiktok"`
	Export     ExportConfig     `yaml:"export"`
	Redis      RedisConfig      `yaml:"redis"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	AWS        AWSConfig        `yaml:"aws"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host        string   `yaml:"host" env:"CDP_HOST"`
	Port        int      `yaml:"port" env:"CDP_PORT"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Data sources for the record store.
const (
	SourceDir       = "dir"
	SourceS3        = "s3"
	SourcePostgres  = "postgres"
	SourceSnowflake = "snowflake"
)

// DataConfig selects where customer, transaction and event records come from.
type DataConfig struct {
	Source   string `yaml:"source" env:"CDP_DATA_SOURCE"`
	Dir      string `yaml:"dir" env:"CDP_DATA_DIR"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	DSN      string `yaml:"dsn" env:"DATABASE_URL"`

	CustomersTable    string `yaml:"customers_table"`
	TransactionsTable string `yaml:"transactions_table"`
	EventsTable       string `yaml:"events_table"`

	// Timezone is the IANA zone of timestamps without an offset; empty is UTC.
	Timezone string `yaml:"timezone" env:"CDP_DATA_TIMEZONE"`
}

// SegmentsConfig points at an optional definitions file merged over the
// built-in catalog.
type SegmentsConfig struct {
	DefinitionsPath string `yaml:"definitions_path" env:"CDP_SEGMENTS_PATH"`
	Workers         int    `yaml:"workers"`
}

// ActivationConfig holds pipeline-wide upload settings.
type ActivationConfig struct {
	DryRun               bool     `yaml:"dry_run" env:"CDP_DRY_RUN"`
	RetryCount           int      `yaml:"retry_count"`
	RetryDelayMs         int      `yaml:"retry_delay_ms"`
	MaxDelayMs           int      `yaml:"max_delay_ms"`
	TimeoutSeconds       int      `yaml:"timeout_seconds" env:"CDP_UPLOAD_TIMEOUT_SECONDS"`
	CountryCode          string   `yaml:"country_code"`
	HashAlgorithm        string   `yaml:"hash_algorithm"`
	Consent              string   `yaml:"consent" env:"CDP_CONSENT"`
	AudienceNameTemplate string   `yaml:"audience_name_template"`
	Platforms            []string `yaml:"platforms"`
	LockTTLSeconds       int      `yaml:"lock_ttl_seconds"`
}

// RetryDelay is the base backoff delay.
func (c ActivationConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// MaxDelay caps a single backoff wait.
func (c ActivationConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// Timeout bounds one whole segment upload to one platform.
func (c ActivationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LockTTL is how long a platform upload lock is held at most.
func (c ActivationConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// MetaConfig holds Meta Marketing API credentials
type MetaConfig struct {
	AppID       string `yaml:"app_id" env:"META_APP_ID"`
	AppSecret   string `yaml:"app_secret" env:"META_APP_SECRET"`
	AccessToken string `yaml:"access_token" env:"META_ACCESS_TOKEN"`
	AdAccountID string `yaml:"ad_account_id" env:"META_AD_ACCOUNT_ID"`
	APIVersion  string `yaml:"api_version"`
	BaseURL     string `yaml:"base_url"`
}

// IsValid reports whether real API calls can be made.
func (c MetaConfig) IsValid() bool {
	return c.AccessToken != "" && c.AdAccountID != ""
}

// GoogleConfig holds Google Ads API credentials
type GoogleConfig struct {
	DeveloperToken  string `yaml:"developer_token" env:"GOOGLE_DEVELOPER_TOKEN"`
	ClientID        string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret    string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	RefreshToken    string `yaml:"refresh_token" env:"GOOGLE_REFRESH_TOKEN"`
	CustomerID      string `yaml:"customer_id" env:"GOOGLE_CUSTOMER_ID"`
	LoginCustomerID string `yaml:"login_customer_id" env:"GOOGLE_LOGIN_CUSTOMER_ID"`
	APIVersion      string `yaml:"api_version"`
	BaseURL         string `yaml:"base_url"`
	TokenURL        string `yaml:"token_url"`
}

// IsValid reports whether real API calls can be made.
func (c GoogleConfig) IsValid() bool {
	return c.DeveloperToken != "" && c.ClientID != "" && c.ClientSecret != "" &&
		c.RefreshToken != "" && c.CustomerID != ""
}

// TikTokConfig holds TikTok Business API credentials
type TikTokConfig struct {
	AccessToken  string `yaml:"access_token" env:"TIKTOK_ACCESS_TOKEN"`
	AdvertiserID string `yaml:"advertiser_id" env:"TIKTOK_ADVERTISER_ID"`
	AppID        string `yaml:"app_id" env:"TIKTOK_APP_ID"`
	Secret       string `yaml:"secret" env:"TIKTOK_SECRET"`
	BaseURL      string `yaml:"base_url"`
}

// IsValid reports whether real API calls can be made.
func (c TikTokConfig) IsValid() bool {
	return c.AccessToken != "" && c.AdvertiserID != ""
}

// ExportConfig selects where audience CSV files are written. A non-empty
// S3Bucket wins over Dir.
type ExportConfig struct {
	Dir      string `yaml:"dir" env:"CDP_EXPORT_DIR"`
	S3Bucket string `yaml:"s3_bucket" env:"CDP_EXPORT_BUCKET"`
	S3Prefix string `yaml:"s3_prefix"`
}

// RedisConfig enables distributed upload locks when URL is set.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// LedgerConfig enables the DynamoDB activation history when Table is set.
type LedgerConfig struct {
	Table   string `yaml:"table" env:"CDP_LEDGER_TABLE"`
	TTLDays int    `yaml:"ttl_days"`
}

// AWSConfig holds shared AWS client settings.
type AWSConfig struct {
	Region          string `yaml:"region" env:"AWS_REGION"`
	Profile         string `yaml:"profile" env:"AWS_PROFILE"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level     string `yaml:"level" env:"CDP_LOG_LEVEL"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// TracingConfig enables OpenTelemetry spans written to stdout.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"CDP_TRACING_ENABLED"`
	ServiceName string `yaml:"service_name"`
}

// Platform names accepted by PlatformReady.
const (
	PlatformMeta   = "meta"
	PlatformGoogle = "google"
	PlatformTikTok = "tiktok"
)

// PlatformReady reports whether a platform has valid credentials.
func (c *Config) PlatformReady(platform string) (bool, error) {
	switch strings.ToLower(platform) {
	case PlatformMeta:
		return c.Meta.IsValid(), nil
	case PlatformGoogle:
		return c.Google.IsValid(), nil
	case PlatformTikTok:
		return c.TikTok.IsValid(), nil
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownPlatform, platform)
	}
}

// ValidatePlatform returns an error unless platform is known and has valid
// credentials.
func (c *Config) ValidatePlatform(platform string) error {
	ok, err := c.PlatformReady(platform)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s credentials are not configured", platform)
	}
	return nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads .env (if present), then the YAML file (if present), then
// applies environment variable overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	// unset variables leave file values in place
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Data.Source == "" {
		cfg.Data.Source = SourceDir
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}

	if cfg.Activation.RetryCount == 0 {
		cfg.Activation.RetryCount = 3
	}
	if cfg.Activation.RetryDelayMs == 0 {
		cfg.Activation.RetryDelayMs = 1000
	}
	if cfg.Activation.MaxDelayMs == 0 {
		cfg.Activation.MaxDelayMs = 30000
	}
	if cfg.Activation.TimeoutSeconds == 0 {
		cfg.Activation.TimeoutSeconds = 300
	}
	if cfg.Activation.CountryCode == "" {
		cfg.Activation.CountryCode = "90"
	}
	if cfg.Activation.HashAlgorithm == "" {
		cfg.Activation.HashAlgorithm = "sha256"
	}
	if cfg.Activation.AudienceNameTemplate == "" {
		cfg.Activation.AudienceNameTemplate = "CDP_{{ segment }}_{{ unix }}"
	}
	if len(cfg.Activation.Platforms) == 0 {
		cfg.Activation.Platforms = []string{PlatformMeta, PlatformGoogle, PlatformTikTok}
	}
	if cfg.Activation.LockTTLSeconds == 0 {
		cfg.Activation.LockTTLSeconds = 600
	}

	if cfg.Meta.APIVersion == "" {
		cfg.Meta.APIVersion = "v18.0"
	}
	if cfg.Meta.BaseURL == "" {
		cfg.Meta.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Google.APIVersion == "" {
		cfg.Google.APIVersion = "v16"
	}
	if cfg.Google.BaseURL == "" {
		cfg.Google.BaseURL = "https://googleads.googleapis.com"
	}
	if cfg.Google.TokenURL == "" {
		cfg.Google.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.TikTok.BaseURL == "" {
		cfg.TikTok.BaseURL = "https://business-api.tiktok.com/open_api/v1.3"
	}

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}
	if cfg.Ledger.TTLDays == 0 {
		cfg.Ledger.TTLDays = 90
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.RedactPII == nil {
		redact := true
		cfg.Logging.RedactPII = &redact
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "cdp-activation"
	}
}
