package store

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode            string `yaml:"mode"`
	Exchange        string `yaml:"exchange"`
	Product         string `yaml:"product"`
	PreferencesPath string `yaml:"preferences_path"`
	JournalDir      string `yaml:"journal_dir"`
	Snapshot        struct {
		Backend        string `yaml:"backend"`
		Path           string `yaml:"path"`
		RetryAttempts  int    `yaml:"retry_attempts"`
		RetryInitialMs int    `yaml:"retry_initial_ms"`
	} `yaml:"snapshot"`
	Ledger struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		DSNEnv  string `yaml:"dsn_env"`
	} `yaml:"ledger"`
	Recovery struct {
		StalenessHours int `yaml:"staleness_hours"`
	} `yaml:"recovery"`
	Notify struct {
		QueueSize int  `yaml:"queue_size"`
		Telegram  bool `yaml:"telegram"`
	} `yaml:"notify"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Paper struct {
		TickMs    int     `yaml:"tick_ms"`
		SeedPrice float64 `yaml:"seed_price"`
		Seed      int64   `yaml:"seed"`
	} `yaml:"paper"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Exchange != "NSE" && c.Exchange != "BSE" {
		return fmt.Errorf("invalid exchange '%s': must be 'NSE' or 'BSE'", c.Exchange)
	}
	if c.Product != "MIS" && c.Product != "CNC" {
		return fmt.Errorf("invalid product '%s': must be 'MIS' or 'CNC'", c.Product)
	}
	if c.Snapshot.Backend != "json" && c.Snapshot.Backend != "sqlite" {
		return fmt.Errorf("snapshot.backend must be 'json' or 'sqlite', got '%s'", c.Snapshot.Backend)
	}
	if c.Snapshot.RetryAttempts < 1 || c.Snapshot.RetryAttempts > 10 {
		return fmt.Errorf("snapshot.retry_attempts must be between 1-10, got %d", c.Snapshot.RetryAttempts)
	}
	if c.Ledger.Backend != "csv" && c.Ledger.Backend != "postgres" {
		return fmt.Errorf("ledger.backend must be 'csv' or 'postgres', got '%s'", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "postgres" && c.Ledger.DSNEnv == "" {
		return fmt.Errorf("ledger.dsn_env is required for the postgres ledger")
	}
	if c.Recovery.StalenessHours <= 0 {
		return fmt.Errorf("recovery.staleness_hours must be positive, got %d", c.Recovery.StalenessHours)
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be positive, got %d", c.Notify.QueueSize)
	}
	return nil
}

// StalenessBound is the maximum age of a recovered trade.
func (c *Config) StalenessBound() time.Duration {
	return time.Duration(c.Recovery.StalenessHours) * time.Hour
}

// SnapshotRetryInitial is the first backoff interval for snapshot writes.
func (c *Config) SnapshotRetryInitial() time.Duration {
	return time.Duration(c.Snapshot.RetryInitialMs) * time.Millisecond
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	c.Mode = strings.ToUpper(c.Mode)
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Product == "" {
		c.Product = "MIS"
	}
	if c.PreferencesPath == "" {
		c.PreferencesPath = "user_preferences.json"
	}
	if c.JournalDir == "" {
		c.JournalDir = "logs"
	}
	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = "json"
	}
	if c.Snapshot.Path == "" {
		if c.Snapshot.Backend == "sqlite" {
			c.Snapshot.Path = "active_trades.db"
		} else {
			c.Snapshot.Path = "active_trades.json"
		}
	}
	if c.Snapshot.RetryAttempts == 0 {
		c.Snapshot.RetryAttempts = 3
	}
	if c.Snapshot.RetryInitialMs == 0 {
		c.Snapshot.RetryInitialMs = 50
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "csv"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "trade_log.csv"
	}
	if c.Recovery.StalenessHours == 0 {
		c.Recovery.StalenessHours = 24
	}
	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = 64
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Paper.TickMs == 0 {
		c.Paper.TickMs = 1000
	}
	if c.Paper.SeedPrice == 0 {
		c.Paper.SeedPrice = 100
	}
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}
