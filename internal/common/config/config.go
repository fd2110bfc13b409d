package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Senders  SendersConfig  `mapstructure:"senders"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// QueueConfig describes the partitioned stream topics carried over Redis.
type QueueConfig struct {
	SendTopic       string `mapstructure:"send_topic"`
	RetryTopic      string `mapstructure:"retry_topic"`
	DlqTopic        string `mapstructure:"dlq_topic"`
	EventsTopic     string `mapstructure:"events_topic"`
	SendPartitions  int    `mapstructure:"send_partitions"`
	RetryPartitions int    `mapstructure:"retry_partitions"`
	EventPartitions int    `mapstructure:"event_partitions"`
}

// DispatchConfig holds settings for the sending worker and retry scheduler.
type DispatchConfig struct {
	WorkerConcurrency int `mapstructure:"worker_concurrency"`
	SendTimeout       int `mapstructure:"send_timeout"` // milliseconds
	DefaultMaxRetries int `mapstructure:"default_max_retries"`

	// Backoff delay levels, selected by retryCount (milliseconds).
	RetryDelayLevel1 int `mapstructure:"retry_delay_level1"`
	RetryDelayLevel2 int `mapstructure:"retry_delay_level2"`
	RetryDelayLevel3 int `mapstructure:"retry_delay_level3"`
	RetryDelayLevel4 int `mapstructure:"retry_delay_level4"`
	RetryDelayLevel5 int `mapstructure:"retry_delay_level5"`

	// Maximum single hold inside the retry scheduler (milliseconds).
	RetryHoldCap int `mapstructure:"retry_hold_cap"`
}

// SendersConfig holds per-channel provider settings.
type SendersConfig struct {
	Email struct {
		Enabled  bool   `mapstructure:"enabled"`
		Provider string `mapstructure:"provider"` // "smtp" or "ses"
		From     string `mapstructure:"from"`
		FromName string `mapstructure:"from_name"`
		SMTP     struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
			UseTLS   bool   `mapstructure:"use_tls"`
		} `mapstructure:"smtp"`
	} `mapstructure:"email"`

	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`

	Push struct {
		Enabled    bool   `mapstructure:"enabled"`
		GatewayURL string `mapstructure:"gateway_url"`
		APIKey     string `mapstructure:"api_key"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"push"`

	InApp struct {
		Enabled bool `mapstructure:"enabled"`
		MaxSize int  `mapstructure:"max_size"` // per-recipient inbox cap
	} `mapstructure:"in_app"`

	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// AuditConfig holds settings for the audit event archiver.
type AuditConfig struct {
	ArchiverEnabled bool `mapstructure:"archiver_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
