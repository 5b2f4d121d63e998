// Package config loads and atomically persists the engine configuration
// file (config/config_v4.json) with the precedence chain: defaults <
// config file < environment (HHWATCH_*) < explicit runtime overrides.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig controls the embedded store.
type DatabaseConfig struct {
	Path           string        `mapstructure:"path" json:"path"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout" json:"busy_timeout"`
	WAL            bool          `mapstructure:"wal" json:"wal"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// TaskDispatcherConfig controls the Dispatcher worker pool.
type TaskDispatcherConfig struct {
	MaxWorkers        int  `mapstructure:"max_workers" json:"max_workers"`
	ChunkSize         int  `mapstructure:"chunk_size" json:"chunk_size"`
	DefaultTimeoutSec int  `mapstructure:"default_timeout_sec" json:"default_timeout_sec"`
	FrequencyHours    int  `mapstructure:"frequency_hours" json:"frequency_hours"`
	Frozen            bool `mapstructure:"frozen" json:"frozen"`
}

// LoggingConfig controls the log pipeline.
type LoggingConfig struct {
	Level           string `mapstructure:"level" json:"level"`
	FilePath        string `mapstructure:"file_path" json:"file_path"`
	RotationSizeMB  int    `mapstructure:"rotation_size_mb" json:"rotation_size_mb"`
	RotationBackups int    `mapstructure:"rotation_backups" json:"rotation_backups"`
	Console         bool   `mapstructure:"console" json:"console"`
	DBEnabled       bool   `mapstructure:"db_enabled" json:"db_enabled"`
	Format          string `mapstructure:"format" json:"format"`
}

// APIConfig controls the upstream HTTP client.
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url" json:"base_url"`
	UserAgent  string `mapstructure:"user_agent" json:"user_agent"`
	MaxRetries int    `mapstructure:"max_retries" json:"max_retries"`
}

// SystemMonitoringConfig controls the system_health sampler.
type SystemMonitoringConfig struct {
	IntervalSec  int `mapstructure:"interval_sec" json:"interval_sec"`
	CPUThreshold int `mapstructure:"cpu_threshold" json:"cpu_threshold"`
	MemThreshold int `mapstructure:"mem_threshold" json:"mem_threshold"`
	DiskThreshold int `mapstructure:"disk_threshold" json:"disk_threshold"`
}

// WebInterfaceConfig controls the control-surface HTTP server.
type WebInterfaceConfig struct {
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	AutoStart bool   `mapstructure:"auto_start" json:"auto_start"`
}

// TelegramConfig is carried only as an external-collaborator config block;
// delivery itself is out of scope for this core.
type TelegramConfig struct {
	Token   string `mapstructure:"token" json:"token"`
	ChatID  string `mapstructure:"chat_id" json:"chat_id"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// HostConfig describes a downstream stub host (sync_host2, analyze_host3).
type HostConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	Connection string `mapstructure:"connection" json:"connection"`
}

// CleanupConfig controls the cleanup job.
type CleanupConfig struct {
	Days int `mapstructure:"days" json:"days"`
}

// Config is the root engine configuration, config/config_v4.json.
type Config struct {
	Database         DatabaseConfig         `mapstructure:"database" json:"database"`
	TaskDispatcher   TaskDispatcherConfig   `mapstructure:"task_dispatcher" json:"task_dispatcher"`
	Logging          LoggingConfig          `mapstructure:"logging" json:"logging"`
	API              APIConfig              `mapstructure:"api" json:"api"`
	SystemMonitoring SystemMonitoringConfig `mapstructure:"system_monitoring" json:"system_monitoring"`
	WebInterface     WebInterfaceConfig     `mapstructure:"web_interface" json:"web_interface"`
	Telegram         TelegramConfig         `mapstructure:"telegram" json:"telegram"`
	Cleanup          CleanupConfig          `mapstructure:"cleanup" json:"cleanup"`
	Hosts            map[string]HostConfig  `mapstructure:"hosts" json:"hosts"`
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Path:        "data/hh_v4.sqlite3",
			BusyTimeout: 30 * time.Second,
			WAL:         true,
			ReadTimeout: 30 * time.Second,
		},
		TaskDispatcher: TaskDispatcherConfig{
			MaxWorkers:        3,
			ChunkSize:         500,
			DefaultTimeoutSec: 1800,
			FrequencyHours:    1,
			Frozen:            false,
		},
		Logging: LoggingConfig{
			Level:           "info",
			FilePath:        "logs/hhwatch.log",
			RotationSizeMB:  100,
			RotationBackups: 3,
			Console:         true,
			DBEnabled:       true,
			Format:          "json",
		},
		API: APIConfig{
			BaseURL:    "https://api.hh.ru",
			UserAgent:  "hhwatch/1.0",
			MaxRetries: 4,
		},
		SystemMonitoring: SystemMonitoringConfig{
			IntervalSec:   300,
			CPUThreshold:  80,
			MemThreshold:  85,
			DiskThreshold: 90,
		},
		WebInterface: WebInterfaceConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			AutoStart: false,
		},
		Cleanup: CleanupConfig{Days: 30},
		Hosts:   map[string]HostConfig{},
	}
}

const envPrefix = "HHWATCH"

var (
	mu      sync.Mutex
	current *Config
	path    string
)

// Load resolves the config at the given path with precedence
// defaults < file < environment < overrides (applied in that order, last
// wins), and caches the result for Get.
func Load(ctx context.Context, configPath string, overrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaults()
	setViperDefaults(v, def)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	// v.Set writes viper's override layer, which ranks above environment;
	// MergeConfigMap would only merge into the config-file layer.
	for _, o := range overrides {
		for k, val := range o {
			v.Set(k, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Hosts == nil {
		cfg.Hosts = map[string]HostConfig{}
	}

	mu.Lock()
	current = &cfg
	path = configPath
	mu.Unlock()

	return &cfg, nil
}

// Get returns the most recently loaded config, or nil if Load hasn't run.
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()
	return current
}

func setViperDefaults(v *viper.Viper, def Config) {
	b, _ := json.Marshal(def)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	for k, val := range m {
		v.SetDefault(k, val)
	}
}

// Write atomically persists cfg to configPath, first copying the existing
// file (if any) to a sibling backup named
// "<configPath>.bak.<YYYYMMDDHHMMSS>". The write itself uses a temp file +
// rename so a crash mid-write never corrupts the live config.
func Write(configPath string, cfg *Config, now time.Time) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".bak." + now.UTC().Format("20060102150405")
		existing, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("config: read existing for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, existing, 0o644); err != nil {
			return fmt.Errorf("config: write backup: %w", err)
		}
	}

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "config_v4.json.tmp.*")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, configPath); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// Path returns the path the current config was loaded from.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return path
}
