// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Ledger        LedgerConfig       `mapstructure:"ledger"`
	Polling       PollingConfig      `mapstructure:"polling"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Wallet        WalletConfig       `mapstructure:"wallet"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LedgerConfig contains ledger endpoint and contract configuration
type LedgerConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	BackupEndpoints []string      `mapstructure:"backup_endpoints"`
	ContractAddress string        `mapstructure:"contract_address"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	CallMethod      string        `mapstructure:"call_method"`
	SendMethod      string        `mapstructure:"send_method"`
	ReceiptMethod   string        `mapstructure:"receipt_method"`
}

// PollingConfig contains receipt polling budgets
type PollingConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ShortAttempts int           `mapstructure:"short_attempts"`
	LongAttempts  int           `mapstructure:"long_attempts"`
}

// CacheConfig contains read model cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // memory, redis
	StaleTime     time.Duration `mapstructure:"stale_time"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// StorageConfig contains transaction journal database configuration
type StorageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// WalletConfig contains the acting wallet's signing key
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// NotificationConfig contains outcome notification configuration
type NotificationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Channels       []string      `mapstructure:"channels"` // log, webhook
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from an optional .env file, a YAML file and environment variables
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CONTENT_REWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variable names shared with the web client
	_ = v.BindEnv("ledger.contract_address", "CONTENT_REWARDS_LEDGER_CONTRACT_ADDRESS", "NEXT_PUBLIC_CONTRACT_ADDRESS", "CONTRACT_ADDRESS")
	_ = v.BindEnv("ledger.endpoint", "CONTENT_REWARDS_LEDGER_ENDPOINT", "NEXT_PUBLIC_STUDIO_URL", "LEDGER_ENDPOINT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.Ledger.ContractAddress = strings.TrimSpace(config.Ledger.ContractAddress)

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "content-rewards")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Ledger defaults
	v.SetDefault("ledger.endpoint", "https://studio.genlayer.com/api")
	v.SetDefault("ledger.contract_address", "")
	v.SetDefault("ledger.request_timeout", "30s")
	v.SetDefault("ledger.retry_attempts", 3)
	v.SetDefault("ledger.retry_delay", "2s")
	v.SetDefault("ledger.call_method", "gen_call")
	v.SetDefault("ledger.send_method", "gen_sendTransaction")
	v.SetDefault("ledger.receipt_method", "gen_getTransactionReceipt")

	// Polling defaults: ~120s for create/close, ~300s for submissions awaiting validation
	v.SetDefault("polling.interval", "5s")
	v.SetDefault("polling.short_attempts", 24)
	v.SetDefault("polling.long_attempts", 60)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.stale_time", "2s")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "content-rewards")

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/journal.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.channels", []string{"log"})
	v.SetDefault("notifications.webhook_timeout", "10s")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// ContractConfigured reports whether a contract address has been provided.
// An absent address is a "not configured" state, not a load failure.
func (c *Config) ContractConfigured() bool {
	return c.Ledger.ContractAddress != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger endpoint is required")
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.Polling.ShortAttempts <= 0 || c.Polling.LongAttempts <= 0 {
		return fmt.Errorf("polling attempts must be positive")
	}
	if c.Cache.StaleTime < 0 {
		return fmt.Errorf("cache stale time must not be negative")
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Storage.Enabled && c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	return nil
}
