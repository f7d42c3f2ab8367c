package config

// Config holds mdindex configuration.
// Stored at: ~/.mdindex/config.yaml
type Config struct {
	MetadataManager MetadataManagerCfg `mapstructure:"metadata_manager" yaml:"metadata_manager"`
	Database        DatabaseCfg        `mapstructure:"database" yaml:"database"`
	Content         ContentCfg         `mapstructure:"content" yaml:"content"`
	Server          ServerCfg          `mapstructure:"server" yaml:"server"`
}

// MetadataManagerCfg configures reindexing. Option names follow the
// metadata manager parameters they replace.
type MetadataManagerCfg struct {
	IndexingEnabled        bool     `mapstructure:"indexing_enabled" yaml:"indexing_enabled"`
	UseMetadataExtractor   bool     `mapstructure:"use_metadata_extractor" yaml:"use_metadata_extractor"`
	MaxReindexingTasks     int      `mapstructure:"maxReindexingTasks" yaml:"maxReindexingTasks"`
	HistorySize            int      `mapstructure:"historySize" yaml:"historySize"`
	PendingAuListSize      int      `mapstructure:"pendingAuListSize" yaml:"pendingAuListSize"`
	PrioritizeNewAus       bool     `mapstructure:"prioritizeIndexingNewAus" yaml:"prioritizeIndexingNewAus"`
	IndexPriorityAuidMap   []string `mapstructure:"indexPriorityAuidMap" yaml:"indexPriorityAuidMap"` // "<regexp>,<priority>"
	MaxPendingBatchSize    int      `mapstructure:"maxPendingToReindexAuBatchSize" yaml:"maxPendingToReindexAuBatchSize"`
	DisableCrawlReschedule bool     `mapstructure:"disableCrawlRescheduleTask" yaml:"disableCrawlRescheduleTask"`
	RetryFailedIndexing    bool     `mapstructure:"retry_failed_indexing" yaml:"retry_failed_indexing"`
	PollInterval           string   `mapstructure:"poll_interval" yaml:"poll_interval"`       // e.g. "30s"
	WatchdogTimeout        string   `mapstructure:"watchdog_timeout" yaml:"watchdog_timeout"` // "0" disables
	StepSize               int      `mapstructure:"step_size" yaml:"step_size"`               // records per task step
}

// DatabaseCfg selects the metadata database.
type DatabaseCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // supports ${ENV_VAR} syntax
}

// ContentCfg locates the AU directory.
type ContentCfg struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MetadataManager: MetadataManagerCfg{
			IndexingEnabled:      false,
			UseMetadataExtractor: true,
			MaxReindexingTasks:   1,
			HistorySize:          200,
			PendingAuListSize:    200,
			PrioritizeNewAus:     true,
			IndexPriorityAuidMap: []string{},
			MaxPendingBatchSize:  1000,
			RetryFailedIndexing:  true,
			PollInterval:         "30s",
			WatchdogTimeout:      "6h",
			StepSize:             10,
		},
		Database: DatabaseCfg{
			Driver: "sqlite",
			DSN:    "mdindex.db",
		},
		Content: ContentCfg{
			Dir:   "aus",
			Watch: true,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8480",
		},
	}
}
