package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_REPOSITORY_DRIVER.
const EnvPrefix = "KESTREL"

// Load builds the application configuration from domain.DefaultConfig, an
// optional config file (YAML, JSON or TOML by extension) and KESTREL_*
// environment variables, in increasing order of precedence.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if os.Getenv(EnvPrefix+"_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// registerDefaults makes every key known to viper so that AutomaticEnv
// overrides are picked up by Unmarshal.
func registerDefaults(v *viper.Viper, cfg *domain.Config) {
	defaults := map[string]any{
		"server.host":          cfg.Server.Host,
		"server.port":          cfg.Server.Port,
		"server.read_timeout":  cfg.Server.ReadTimeout,
		"server.write_timeout": cfg.Server.WriteTimeout,

		"quality.schema_file":     cfg.Quality.SchemaFile,
		"quality.rules_file":      cfg.Quality.RulesFile,
		"quality.thresholds_file": cfg.Quality.ThresholdsFile,
		"quality.artifact_dir":    cfg.Quality.ArtifactDir,
		"quality.alert_file":      cfg.Quality.AlertFile,
		"quality.dashboard_file":  cfg.Quality.DashboardFile,

		"repository.driver":            cfg.Repository.Driver,
		"repository.quality_dir":       cfg.Repository.QualityDir,
		"repository.sqlite_path":       cfg.Repository.SQLitePath,
		"repository.postgres_host":     cfg.Repository.PostgresHost,
		"repository.postgres_port":     cfg.Repository.PostgresPort,
		"repository.postgres_user":     cfg.Repository.PostgresUser,
		"repository.postgres_password": cfg.Repository.PostgresPassword,
		"repository.postgres_db":       cfg.Repository.PostgresDB,
		"repository.postgres_sslmode":  cfg.Repository.PostgresSSLMode,
		"repository.badger_path":       cfg.Repository.BadgerPath,
		"repository.badger_in_memory":  cfg.Repository.BadgerInMemory,
		"repository.redis_addr":        cfg.Repository.RedisAddr,
		"repository.redis_password":    cfg.Repository.RedisPassword,
		"repository.redis_db":          cfg.Repository.RedisDB,
		"repository.redis_key":         cfg.Repository.RedisKey,
		"repository.max_open_conns":    cfg.Repository.MaxOpenConns,
		"repository.max_idle_conns":    cfg.Repository.MaxIdleConns,
		"repository.conn_max_lifetime": cfg.Repository.ConnMaxLifetime,

		"cache.type":             cfg.Cache.Type,
		"cache.local_max_size":   cfg.Cache.LocalMaxSize,
		"cache.local_ttl":        cfg.Cache.LocalTTL,
		"cache.redis_addr":       cfg.Cache.RedisAddr,
		"cache.redis_password":   cfg.Cache.RedisPassword,
		"cache.redis_db":         cfg.Cache.RedisDB,
		"cache.enable_two_phase": cfg.Cache.EnableTwoPhase,

		"event_bus.type":                cfg.EventBus.Type,
		"event_bus.channel_buffer_size": cfg.EventBus.ChannelBufferSize,
		"event_bus.nats_url":            cfg.EventBus.NATSUrl,
		"event_bus.nats_token":          cfg.EventBus.NATSToken,
		"event_bus.nats_max_reconnects": cfg.EventBus.NATSMaxReconnects,
		"event_bus.nats_reconnect_wait": cfg.EventBus.NATSReconnectWait,

		"alert.recipient": cfg.Alert.Recipient,
		"alert.topic":     cfg.Alert.Topic,

		"watch.schedule": cfg.Watch.Schedule,

		"logging.level":  cfg.Logging.Level,
		"logging.format": cfg.Logging.Format,

		"tracing.enabled":      cfg.Tracing.Enabled,
		"tracing.service_name": cfg.Tracing.ServiceName,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
