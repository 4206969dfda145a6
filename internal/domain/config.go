package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Rule documents and artifact locations
	Quality QualityConfig `mapstructure:"quality"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Alert      AlertConfig      `mapstructure:"alert"`
	Watch      WatchConfig      `mapstructure:"watch"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
}

// QualityConfig locates the rule documents and the derived artifacts.
type QualityConfig struct {
	SchemaFile     string `mapstructure:"schema_file"`
	RulesFile      string `mapstructure:"rules_file"`
	ThresholdsFile string `mapstructure:"thresholds_file"`

	// Artifacts are written here regardless of the report store backend.
	ArtifactDir   string `mapstructure:"artifact_dir"`
	AlertFile     string `mapstructure:"alert_file"`
	DashboardFile string `mapstructure:"dashboard_file"`
}

// AlertConfig is passed to the alert aggregator at construction.
type AlertConfig struct {
	// Recipient is printed in the artifact header. Empty omits the line.
	Recipient string `mapstructure:"recipient"`

	// Topic receives the artifact when an event bus is configured.
	Topic string `mapstructure:"topic"`
}

// WatchConfig drives the scheduled aggregation loop.
type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig returns the configuration used when no file or environment
// override is present: file-backed store under ./data/quality, no event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Quality: QualityConfig{
			SchemaFile:     "./config/data_schemas.json",
			RulesFile:      "./config/business_rules.yaml",
			ThresholdsFile: "./config/quality_thresholds.yaml",
			ArtifactDir:    "./data/quality",
			AlertFile:      "quality_alert.txt",
			DashboardFile:  "dashboard.html",
		},
		Repository: RepositoryConfig{
			Driver:     "file",
			QualityDir: "./data/quality",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     30 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "none",
			ChannelBufferSize: 100,
		},
		Alert: AlertConfig{
			Topic: TopicAlert,
		},
		Watch: WatchConfig{
			Schedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}
