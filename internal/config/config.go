package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/mdindex/internal/reindex"
	"github.com/jackzampolin/mdindex/internal/store"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default().With("component", "config"),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	if err := setDefaults(cm.v, DefaultConfig()); err != nil {
		return err
	}

	// Environment variables with MDINDEX_ prefix, e.g.
	// MDINDEX_METADATA_MANAGER_INDEXING_ENABLED=true
	cm.v.SetEnvPrefix("MDINDEX")
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.mdindex")
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf of cfg as a default, so a config file
// that sets part of a section keeps the defaults of the rest.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	d := viper.New()
	d.SetConfigType("yaml")
	if err := d.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to read defaults: %w", err)
	}
	for _, key := range d.AllKeys() {
		v.SetDefault(key, d.Get(key))
	}
	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the path of the loaded config file, empty when
// running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("ignoring unreadable config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToSchedulerSettings converts the metadata manager section to scheduler
// settings.
func (c *Config) ToSchedulerSettings() (reindex.Settings, error) {
	mm := c.MetadataManager
	poll, err := parseDuration(mm.PollInterval)
	if err != nil {
		return reindex.Settings{}, fmt.Errorf("poll_interval: %w", err)
	}
	watchdog, err := parseDuration(mm.WatchdogTimeout)
	if err != nil {
		return reindex.Settings{}, fmt.Errorf("watchdog_timeout: %w", err)
	}

	return reindex.Settings{
		Enabled:                mm.IndexingEnabled,
		UseExtractor:           mm.UseMetadataExtractor,
		MaxTasks:               max(mm.MaxReindexingTasks, 0),
		HistorySize:            mm.HistorySize,
		PendingListSize:        mm.PendingAuListSize,
		PrioritizeNew:          mm.PrioritizeNewAus,
		PriorityMap:            mm.IndexPriorityAuidMap,
		BatchSize:              mm.MaxPendingBatchSize,
		DisableCrawlReschedule: mm.DisableCrawlReschedule,
		RetryFailed:            mm.RetryFailedIndexing,
		StepSize:               mm.StepSize,
		WatchdogTimeout:        watchdog,
		PollInterval:           poll,
	}, nil
}

// ToStoreConfig converts the database section to a store configuration.
// ${ENV_VAR} references in the DSN are resolved.
func (c *Config) ToStoreConfig(logger *slog.Logger) store.Config {
	return store.Config{
		Driver: c.Database.Driver,
		DSN:    ResolveEnvVars(c.Database.DSN),
		Logger: logger,
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# mdindex configuration
# The database dsn may use ${ENV_VAR} syntax to reference environment variables
# indexPriorityAuidMap entries are "<regexp>,<priority>"; below 0 skips an AU,
# -20000 or below also aborts its running task

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
