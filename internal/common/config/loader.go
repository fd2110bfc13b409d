package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Merge environment-specific overrides, ignore if not found.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-dispatch"
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = ":9464"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Queue.SendTopic == "" {
		cfg.Queue.SendTopic = "notifications.send"
	}
	if cfg.Queue.RetryTopic == "" {
		cfg.Queue.RetryTopic = "notifications.send.retry"
	}
	if cfg.Queue.DlqTopic == "" {
		cfg.Queue.DlqTopic = "notifications.send.dlq"
	}
	if cfg.Queue.EventsTopic == "" {
		cfg.Queue.EventsTopic = "notifications.events"
	}
	if cfg.Queue.SendPartitions == 0 {
		cfg.Queue.SendPartitions = 3
	}
	if cfg.Queue.RetryPartitions == 0 {
		cfg.Queue.RetryPartitions = 3
	}
	if cfg.Queue.EventPartitions == 0 {
		cfg.Queue.EventPartitions = 3
	}

	if cfg.Dispatch.WorkerConcurrency == 0 {
		cfg.Dispatch.WorkerConcurrency = 3
	}
	if cfg.Dispatch.SendTimeout == 0 {
		cfg.Dispatch.SendTimeout = 30000
	}
	if cfg.Dispatch.DefaultMaxRetries == 0 {
		cfg.Dispatch.DefaultMaxRetries = 5
	}
	if cfg.Dispatch.RetryDelayLevel1 == 0 {
		cfg.Dispatch.RetryDelayLevel1 = 5_000
	}
	if cfg.Dispatch.RetryDelayLevel2 == 0 {
		cfg.Dispatch.RetryDelayLevel2 = 30_000
	}
	if cfg.Dispatch.RetryDelayLevel3 == 0 {
		cfg.Dispatch.RetryDelayLevel3 = 120_000
	}
	if cfg.Dispatch.RetryDelayLevel4 == 0 {
		cfg.Dispatch.RetryDelayLevel4 = 600_000
	}
	if cfg.Dispatch.RetryDelayLevel5 == 0 {
		cfg.Dispatch.RetryDelayLevel5 = 1_800_000
	}
	if cfg.Dispatch.RetryHoldCap == 0 {
		cfg.Dispatch.RetryHoldCap = 5_000
	}

	if cfg.Senders.Email.Provider == "" {
		cfg.Senders.Email.Provider = "smtp"
	}
	if cfg.Senders.Email.SMTP.Port == 0 {
		cfg.Senders.Email.SMTP.Port = 587
	}
	if cfg.Senders.Push.Timeout == 0 {
		cfg.Senders.Push.Timeout = 10000
	}
	if cfg.Senders.InApp.MaxSize == 0 {
		cfg.Senders.InApp.MaxSize = 500
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "notification-events"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Senders.Email.Enabled {
		switch cfg.Senders.Email.Provider {
		case "smtp":
			if cfg.Senders.Email.SMTP.Host == "" {
				return fmt.Errorf("senders.email.smtp.host is required when the smtp provider is enabled")
			}
		case "ses":
			if cfg.Senders.AWS.Region == "" {
				return fmt.Errorf("senders.aws.region is required when the ses provider is enabled")
			}
		default:
			return fmt.Errorf("senders.email.provider must be smtp or ses, got %q", cfg.Senders.Email.Provider)
		}
		if cfg.Senders.Email.From == "" {
			return fmt.Errorf("senders.email.from is required when email is enabled")
		}
	}

	if cfg.Audit.ArchiverEnabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when the audit archiver is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
