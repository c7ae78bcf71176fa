package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Paystack      PaystackConfig      `mapstructure:"paystack"`
	Credo         CredoConfig         `mapstructure:"credo"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// StorageConfig selects where payment records live.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory or postgres
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectRetries  uint          `mapstructure:"connect_retries"`
}

type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// PaymentConfig holds processor selection and processing behaviour.
type PaymentConfig struct {
	Processor               string        `mapstructure:"processor"`
	UseCallback             bool          `mapstructure:"use_callback"`
	Live                    bool          `mapstructure:"live"`
	Timezone                string        `mapstructure:"timezone"`
	GatewayTimeout          time.Duration `mapstructure:"gateway_timeout"`
	CallbackURL             string        `mapstructure:"callback_url"`
	DefaultAmount           float64       `mapstructure:"default_amount"`
	ReferenceLength         int           `mapstructure:"reference_length"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	ReconcileAfter          time.Duration `mapstructure:"reconcile_after"`
	ReconcileInterval       time.Duration `mapstructure:"reconcile_interval"`
	ReconcileBatch          int           `mapstructure:"reconcile_batch"`
	ReconcileConcurrency    int           `mapstructure:"reconcile_concurrency"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type PaystackConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type CredoConfig struct {
	PublicKey    string `mapstructure:"public_key"`
	SecretKey    string `mapstructure:"secret_key"`
	ServiceCode  string `mapstructure:"service_code"`
	WebhookToken string `mapstructure:"webhook_token"`
	BusinessCode string `mapstructure:"business_code"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables, e.g. PAYGATE_PAYSTACK_SECRET_KEY
	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paygate")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be memory or postgres, got %q", c.Storage.Driver))
	}

	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	if strings.TrimSpace(c.Payment.Processor) == "" {
		errs = append(errs, fmt.Errorf("payment.processor is required"))
	}
	if c.Payment.GatewayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("payment.gateway_timeout must be positive"))
	}
	if _, err := time.LoadLocation(c.Payment.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("payment.timezone %q is not a valid IANA zone", c.Payment.Timezone))
	}
	if c.Payment.DefaultAmount < 0 {
		errs = append(errs, fmt.Errorf("payment.default_amount must not be negative"))
	}
	if c.Payment.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.lock_ttl must be positive"))
	}
	if c.Payment.UseCallback && c.Payment.CallbackURL == "" {
		errs = append(errs, fmt.Errorf("payment.callback_url is required when payment.use_callback is set"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Storage.Driver == "postgres" && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if !c.Payment.Live {
			errs = append(errs, fmt.Errorf("payment.live must be enabled in production"))
		}
	}

	return errors.Join(errs...)
}

// Location returns the zone normalized payment timestamps are expressed in.
func (c *PaymentConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Storage defaults
	v.SetDefault("storage.driver", "memory")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paygate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "paygate")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Payment defaults
	v.SetDefault("payment.processor", "paystack")
	v.SetDefault("payment.use_callback", false)
	v.SetDefault("payment.live", false)
	v.SetDefault("payment.timezone", "UTC")
	v.SetDefault("payment.gateway_timeout", "15s")
	v.SetDefault("payment.callback_url", "")
	v.SetDefault("payment.default_amount", 400)
	v.SetDefault("payment.reference_length", 8)
	v.SetDefault("payment.lock_ttl", "30s")
	v.SetDefault("payment.reconcile_after", "15m")
	v.SetDefault("payment.reconcile_interval", "5m")
	v.SetDefault("payment.reconcile_batch", 50)
	v.SetDefault("payment.reconcile_concurrency", 4)
	v.SetDefault("payment.circuit_breaker_threshold", 5)
	v.SetDefault("payment.circuit_breaker_timeout", "30s")

	// Gateway credentials have no defaults; they are bound so env overrides apply
	for _, key := range []string{
		"paystack.secret_key",
		"credo.public_key",
		"credo.secret_key",
		"credo.service_code",
		"credo.webhook_token",
		"credo.business_code",
	} {
		v.SetDefault(key, "")
	}

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "paygate-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
