package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the authcore service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	PublicURL string          `mapstructure:"public_url"`
	CSRF      CSRFConfig      `mapstructure:"csrf"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// CSRFConfig controls CSRF protection middleware.
type CSRFConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	CookieName  string   `mapstructure:"cookie_name"`
	ExemptPaths []string `mapstructure:"exempt_paths"`
}

// RateLimitConfig bounds requests per client and route. Zero requests disables the limiter.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	Session SessionSettings `mapstructure:"session"`
	OTP     OTPSettings     `mapstructure:"otp"`
	OAuth   OAuthSettings   `mapstructure:"oauth"`
}

// SessionSettings configures session tokens and the cookie carrying them.
type SessionSettings struct {
	Secret       string        `mapstructure:"secret"`
	Issuer       string        `mapstructure:"issuer"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieDomain string        `mapstructure:"cookie_domain"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// OTPSettings configures one-time passcodes and their delivery.
type OTPSettings struct {
	Length          int           `mapstructure:"length"`
	TTL             time.Duration `mapstructure:"ttl"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RequestLimit    int           `mapstructure:"request_limit"`
	RequestWindow   time.Duration `mapstructure:"request_window"`
	AsyncDelivery   bool          `mapstructure:"async_delivery"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	DeliveryRate    float64       `mapstructure:"delivery_rate"`
	DeliveryBurst   int           `mapstructure:"delivery_burst"`
}

// OAuthSettings configures provider logins.
type OAuthSettings struct {
	LinkPolicy string         `mapstructure:"link_policy"`
	StateTTL   time.Duration  `mapstructure:"state_ttl"`
	SuccessURL string         `mapstructure:"success_url"`
	FailureURL string         `mapstructure:"failure_url"`
	Providers  OAuthProviders `mapstructure:"providers"`
}

// OAuthProviders holds per-provider settings.
type OAuthProviders struct {
	GitHub ProviderSettings `mapstructure:"github"`
	GitLab ProviderSettings `mapstructure:"gitlab"`
	Google ProviderSettings `mapstructure:"google"`
}

// ProviderSettings configures a single OAuth client registration.
type ProviderSettings struct {
	Enabled      bool     `mapstructure:"enabled"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
	Issuer       string   `mapstructure:"issuer"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	APIURL       string   `mapstructure:"api_url"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	AppName    string     `mapstructure:"app_name"`
	OTPSubject string     `mapstructure:"otp_subject"`
	SMTP       SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig holds cron schedules for background cleanup.
type MaintenanceConfig struct {
	OTPSchedule   string `mapstructure:"otp_schedule"`
	CacheSchedule string `mapstructure:"cache_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.csrf.enabled", false)
	v.SetDefault("server.csrf.cookie_name", "authcore_csrf")
	v.SetDefault("server.csrf.exempt_paths", []string{})
	v.SetDefault("server.rate_limit.requests", 100)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/authcore.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.session.secret", "")
	v.SetDefault("auth.session.issuer", "authcore")
	v.SetDefault("auth.session.ttl", "24h")
	v.SetDefault("auth.session.cookie_name", "authcore_session")
	v.SetDefault("auth.session.cookie_domain", "")
	v.SetDefault("auth.session.cookie_secure", true)

	v.SetDefault("auth.otp.length", 6)
	v.SetDefault("auth.otp.ttl", "10m")
	v.SetDefault("auth.otp.max_attempts", 5)
	v.SetDefault("auth.otp.request_limit", 5)
	v.SetDefault("auth.otp.request_window", "15m")
	v.SetDefault("auth.otp.async_delivery", true)
	v.SetDefault("auth.otp.delivery_timeout", "30s")
	v.SetDefault("auth.otp.delivery_rate", 0)
	v.SetDefault("auth.otp.delivery_burst", 1)

	v.SetDefault("auth.oauth.link_policy", "first_provider_wins")
	v.SetDefault("auth.oauth.state_ttl", "10m")
	v.SetDefault("auth.oauth.success_url", "/")
	v.SetDefault("auth.oauth.failure_url", "/login")
	for _, name := range []string{"github", "gitlab", "google"} {
		prefix := "auth.oauth.providers." + name + "."
		v.SetDefault(prefix+"enabled", false)
		v.SetDefault(prefix+"client_id", "")
		v.SetDefault(prefix+"client_secret", "")
		v.SetDefault(prefix+"redirect_url", "")
		v.SetDefault(prefix+"scopes", []string{})
		v.SetDefault(prefix+"issuer", "")
		v.SetDefault(prefix+"auth_url", "")
		v.SetDefault(prefix+"token_url", "")
		v.SetDefault(prefix+"api_url", "")
	}

	v.SetDefault("email.app_name", "AuthCore")
	v.SetDefault("email.otp_subject", "")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.otp_schedule", "@every 5m")
	v.SetDefault("maintenance.cache_schedule", "@every 15m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
