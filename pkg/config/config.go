package config

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix of environment variables overriding the config file
const EnvPrefix = "VISIBILITY"

// DockerConfig holds the container log source configuration
type DockerConfig struct {
	Enabled            bool     `json:"enabled" mapstructure:"enabled"`
	FilterLabels       []string `json:"filter_labels" mapstructure:"filter_labels"`
	AllContainers      bool     `json:"all_containers" mapstructure:"all_containers"`
	MaxStreams         int      `json:"max_streams" mapstructure:"max_streams"`
	TailBufferSize     int      `json:"tail_buffer_size" mapstructure:"tail_buffer_size"`
	SinceWindowSeconds int      `json:"since_window_seconds" mapstructure:"since_window_seconds"`
	DropOnFull         bool     `json:"drop_on_full" mapstructure:"drop_on_full"`
}

// RedisConfig holds the redis control channel configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Address  string `json:"address" mapstructure:"address"`
	Password string `json:"-" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	Channel  string `json:"channel" mapstructure:"channel"`
	Key      string `json:"key" mapstructure:"key"`
}

// AppConfig holds application configuration
type AppConfig struct {
	LogLevel      string        `json:"log_level" mapstructure:"log_level"`
	LogFormat     string        `json:"log_format" mapstructure:"log_format"`
	MetricsAddr   string        `json:"metrics_addr" mapstructure:"metrics_addr"`
	Policy        filter.Policy `json:"policy" mapstructure:"policy"`
	ForceChannels []string      `json:"force_channels" mapstructure:"force_channels"`
	Docker        DockerConfig  `json:"docker" mapstructure:"docker"`
	Redis         RedisConfig   `json:"redis" mapstructure:"redis"`
	ConfigPath    string        `json:"-" mapstructure:"-"` // Path to config file, not stored in the file
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("policy.default", filter.ModeShowAll)
	v.SetDefault("policy.show", []string{})
	v.SetDefault("policy.hide", []string{})
	v.SetDefault("force_channels", []string{})
	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.filter_labels", []string{})
	v.SetDefault("docker.all_containers", false)
	v.SetDefault("docker.max_streams", 50)
	v.SetDefault("docker.tail_buffer_size", 1000)
	v.SetDefault("docker.since_window_seconds", 10)
	v.SetDefault("docker.drop_on_full", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "visibility_updates")
	v.SetDefault("redis.key", "visibility_policy")
}

// LoadConfig loads configuration from a JSON or YAML file, with environment
// overrides (VISIBILITY_LOG_LEVEL, VISIBILITY_POLICY_DEFAULT, ...). An empty
// path loads defaults and environment only.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var c AppConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	c.ConfigPath = path

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that all config values are valid
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q: must be one of json, console", c.LogFormat)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	if c.Docker.Enabled && c.Docker.MaxStreams <= 0 {
		return fmt.Errorf("invalid docker.max_streams %d: must be positive", c.Docker.MaxStreams)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	return nil
}

// WatchConfig watches the config file and calls callback with every valid
// new version until ctx is done. The directory is watched so that editors
// replacing the file are noticed too.
func WatchConfig(ctx context.Context, path string, logger *zap.Logger, callback func(*AppConfig)) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("Watch fail", zap.Error(err))
		return
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		logger.Warn("Watch fail", zap.String("path", path), zap.Error(err))
		return
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			c, err := LoadConfig(path)
			if err != nil {
				logger.Warn("Ignoring invalid config change", zap.String("path", path), zap.Error(err))
				continue
			}
			callback(c)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// GetSinceWindow returns the since window as a time.Duration
func (c *AppConfig) GetSinceWindow() time.Duration {
	return time.Duration(c.Docker.SinceWindowSeconds) * time.Second
}

// String returns a string representation of the config
func (c *AppConfig) String() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return fmt.Sprintf("Config: %s", string(b))
}
