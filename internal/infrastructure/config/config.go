package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Payment   PaymentConfig
	Sync      SyncConfig
	CRM       CRMConfig
	Admin     AdminConfig
	Archive   ArchiveConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	SlowQueryThresh time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// Fulfillment modes
const (
	FulfillmentModeTransaction = "transaction"
	FulfillmentModeProcedure   = "procedure"
)

// PaymentConfig holds payment-gateway webhook settings
type PaymentConfig struct {
	MerchantKey        string
	Salt               string
	FulfillmentTimeout time.Duration
	FulfillmentMode    string // transaction or procedure
	DedupEnabled       bool
	DedupTTL           time.Duration
}

// Enqueue policies for CRM sync events
const (
	EnqueuePolicyFireAndForget = "fire_and_forget"
	EnqueuePolicyStrict        = "strict"
)

// SyncConfig holds CRM sync queue and worker settings
type SyncConfig struct {
	WorkerEnabled     bool
	PollInterval      time.Duration
	BatchSize         int
	Concurrency       int
	CallTimeout       time.Duration
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	MaxAttempts       int
	StaleClaimTimeout time.Duration
	EnqueuePolicy     string
}

// CRMConfig holds the external CRM client settings
type CRMConfig struct {
	AccountsURL       string
	APIBaseURL        string
	ClientID          string
	ClientSecret      string
	RefreshToken      string
	RequestsPerSecond float64
	Burst             int
}

// AdminConfig holds the admin console guard settings
type AdminConfig struct {
	AuthEnabled  bool
	JWTSecret    string
	Issuer       string
	RequiredRole string

	// RateLimitPerMinute caps admin console requests per client IP; 0 disables it
	RateLimitPerMinute int
}

// ArchiveConfig holds the S3-compatible bucket that receives archived sync logs
type ArchiveConfig struct {
	Bucket       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
	Retention    time.Duration
	BatchSize    int
}

// NotifyConfig holds customer notification settings. When AMQPURL is set,
// confirmed orders are also published to Exchange for the delivery services.
type NotifyConfig struct {
	Channels   []string
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string // OTEL Collector endpoint (e.g., "localhost:4317")
	ExportInterval    time.Duration
	ServiceName       string
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	SamplingRatio     float64 // trace sampling, 0..1
	ExportLogs        bool    // tee zap logs to the collector
	ProfilingEnabled  bool
	PyroscopeAddress  string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with STORE_ prefix (e.g., STORE_PAYMENT_SALT)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("STORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans cannot be told apart from "unset" after GetBool, so they default here.
	v.SetDefault("payment.dedup_enabled", true)
	v.SetDefault("sync.worker_enabled", true)
	v.SetDefault("admin.auth_enabled", true)
	v.SetDefault("admin.rate_limit_per_minute", 120)
	v.SetDefault("archive.use_path_style", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			SlowQueryThresh: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Payment: PaymentConfig{
			MerchantKey:        v.GetString("payment.merchant_key"),
			Salt:               v.GetString("payment.salt"),
			FulfillmentTimeout: v.GetDuration("payment.fulfillment_timeout"),
			FulfillmentMode:    v.GetString("payment.fulfillment_mode"),
			DedupEnabled:       v.GetBool("payment.dedup_enabled"),
			DedupTTL:           v.GetDuration("payment.dedup_ttl"),
		},
		Sync: SyncConfig{
			WorkerEnabled:     v.GetBool("sync.worker_enabled"),
			PollInterval:      v.GetDuration("sync.poll_interval"),
			BatchSize:         v.GetInt("sync.batch_size"),
			Concurrency:       v.GetInt("sync.concurrency"),
			CallTimeout:       v.GetDuration("sync.call_timeout"),
			BaseBackoff:       v.GetDuration("sync.base_backoff"),
			MaxBackoff:        v.GetDuration("sync.max_backoff"),
			MaxAttempts:       v.GetInt("sync.max_attempts"),
			StaleClaimTimeout: v.GetDuration("sync.stale_claim_timeout"),
			EnqueuePolicy:     v.GetString("sync.enqueue_policy"),
		},
		CRM: CRMConfig{
			AccountsURL:       v.GetString("crm.accounts_url"),
			APIBaseURL:        v.GetString("crm.api_base_url"),
			ClientID:          v.GetString("crm.client_id"),
			ClientSecret:      v.GetString("crm.client_secret"),
			RefreshToken:      v.GetString("crm.refresh_token"),
			RequestsPerSecond: v.GetFloat64("crm.requests_per_second"),
			Burst:             v.GetInt("crm.burst"),
		},
		Admin: AdminConfig{
			AuthEnabled:  v.GetBool("admin.auth_enabled"),
			JWTSecret:    v.GetString("admin.jwt_secret"),
			Issuer:       v.GetString("admin.issuer"),
			RequiredRole: v.GetString("admin.required_role"),

			RateLimitPerMinute: v.GetInt("admin.rate_limit_per_minute"),
		},
		Archive: ArchiveConfig{
			Bucket:       v.GetString("archive.bucket"),
			Endpoint:     v.GetString("archive.endpoint"),
			Region:       v.GetString("archive.region"),
			AccessKey:    v.GetString("archive.access_key"),
			SecretKey:    v.GetString("archive.secret_key"),
			UseSSL:       v.GetBool("archive.use_ssl"),
			UsePathStyle: v.GetBool("archive.use_path_style"),
			Prefix:       v.GetString("archive.prefix"),
			Retention:    v.GetDuration("archive.retention"),
			BatchSize:    v.GetInt("archive.batch_size"),
		},
		Notify: NotifyConfig{
			Channels:   v.GetStringSlice("notify.channels"),
			AMQPURL:    v.GetString("notify.amqp_url"),
			Exchange:   v.GetString("notify.exchange"),
			RoutingKey: v.GetString("notify.routing_key"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ExportLogs:        v.GetBool("telemetry.export_logs"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storefront"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.SlowQueryThresh == 0 {
		cfg.Database.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// No CORS origin default: cross-origin requests stay disabled until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Payment.FulfillmentTimeout == 0 {
		cfg.Payment.FulfillmentTimeout = 10 * time.Second
	}
	if cfg.Payment.FulfillmentMode == "" {
		cfg.Payment.FulfillmentMode = FulfillmentModeTransaction
	}
	if cfg.Payment.DedupTTL == 0 {
		cfg.Payment.DedupTTL = 24 * time.Hour
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = time.Minute
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 25
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 4
	}
	if cfg.Sync.CallTimeout == 0 {
		cfg.Sync.CallTimeout = 15 * time.Second
	}
	if cfg.Sync.BaseBackoff == 0 {
		cfg.Sync.BaseBackoff = time.Minute
	}
	if cfg.Sync.MaxBackoff == 0 {
		cfg.Sync.MaxBackoff = time.Hour
	}
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = 5
	}
	if cfg.Sync.StaleClaimTimeout == 0 {
		cfg.Sync.StaleClaimTimeout = 10 * time.Minute
	}
	if cfg.Sync.EnqueuePolicy == "" {
		cfg.Sync.EnqueuePolicy = EnqueuePolicyFireAndForget
	}
	if cfg.CRM.AccountsURL == "" {
		cfg.CRM.AccountsURL = "https://accounts.zoho.in"
	}
	if cfg.CRM.APIBaseURL == "" {
		cfg.CRM.APIBaseURL = "https://www.zohoapis.in"
	}
	if cfg.CRM.RequestsPerSecond == 0 {
		cfg.CRM.RequestsPerSecond = 5
	}
	if cfg.CRM.Burst == 0 {
		cfg.CRM.Burst = 5
	}
	if cfg.Admin.Issuer == "" {
		cfg.Admin.Issuer = "storefront"
	}
	if cfg.Admin.RequiredRole == "" {
		cfg.Admin.RequiredRole = "admin"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "crm-sync"
	}
	if cfg.Archive.Retention == 0 {
		cfg.Archive.Retention = 30 * 24 * time.Hour
	}
	if cfg.Archive.BatchSize == 0 {
		cfg.Archive.BatchSize = 500
	}
	if len(cfg.Notify.Channels) == 0 {
		cfg.Notify.Channels = []string{"email"}
	}
	if cfg.Notify.Exchange == "" {
		cfg.Notify.Exchange = "storefront.orders"
	}
	if cfg.Notify.RoutingKey == "" {
		cfg.Notify.RoutingKey = "order.confirmed"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "storefront-backend"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Payment.FulfillmentMode {
	case FulfillmentModeTransaction, FulfillmentModeProcedure:
	default:
		return fmt.Errorf("payment.fulfillment_mode must be %q or %q, got %q",
			FulfillmentModeTransaction, FulfillmentModeProcedure, c.Payment.FulfillmentMode)
	}
	switch c.Sync.EnqueuePolicy {
	case EnqueuePolicyFireAndForget, EnqueuePolicyStrict:
	default:
		return fmt.Errorf("sync.enqueue_policy must be %q or %q, got %q",
			EnqueuePolicyFireAndForget, EnqueuePolicyStrict, c.Sync.EnqueuePolicy)
	}
	if c.Sync.MaxBackoff < c.Sync.BaseBackoff {
		return fmt.Errorf("sync.max_backoff (%s) cannot be less than sync.base_backoff (%s)",
			c.Sync.MaxBackoff, c.Sync.BaseBackoff)
	}
	if c.Sync.Concurrency < 1 || c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.concurrency and sync.batch_size must be positive")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1], got %v", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Payment.MerchantKey == "" || c.Payment.Salt == "" {
			return fmt.Errorf("payment.merchant_key and payment.salt are required in production")
		}
		if c.Admin.AuthEnabled && len(c.Admin.JWTSecret) < 32 {
			return fmt.Errorf("admin.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
