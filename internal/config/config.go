package config

import (
	"errors"
	"time"

	"github.com/ElasticProvisioner/attribution/internal/store"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Path     string `envconfig:"DB_PATH" default:"attribution.db"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"attribution"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string `envconfig:"ATTRIBUTION_ADDRESS" default:":8000"`
	MetricsAddress string `envconfig:"ATTRIBUTION_METRICS_ADDRESS" default:":8080"`
	LogLevel       string `envconfig:"ATTRIBUTION_LOG_LEVEL" default:"info"`

	// AllowedRoot is the only directory tree the service will read logs
	// from. Required; startup fails without it.
	AllowedRoot string `envconfig:"ATTRIBUTION_ALLOWED_ROOT" default:""`

	// AnalyzerCommand is the attribution command run on a cache miss; the
	// log path is appended as the last argument.
	AnalyzerCommand []string      `envconfig:"ATTRIBUTION_ANALYZER_COMMAND" default:""`
	AnalyzerTimeout time.Duration `envconfig:"ATTRIBUTION_ANALYZER_TIMEOUT" default:"300s"`

	CacheGracePeriod time.Duration `envconfig:"ATTRIBUTION_CACHE_GRACE_PERIOD" default:"600s"`
	CacheMaxFileAge  time.Duration `envconfig:"ATTRIBUTION_CACHE_MAX_FILE_AGE" default:"336h"`

	// PersistCache controls ledger persistence. When disabled the cache
	// is purely in-memory and empty after every restart.
	PersistCache bool `envconfig:"ATTRIBUTION_PERSIST_CACHE" default:"true"`

	Kafka kafkaConfig
}

type kafkaConfig struct {
	Brokers []string `envconfig:"ATTRIBUTION_KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"ATTRIBUTION_KAFKA_TOPIC" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// Validate checks the unrecoverable configuration errors, the only kind
// allowed to halt startup.
func (c *Config) Validate() error {
	if c.Service.AllowedRoot == "" {
		return errors.New("ATTRIBUTION_ALLOWED_ROOT must be set")
	}
	return nil
}

func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:     c.Database.Type,
		Path:     c.Database.Path,
		Hostname: c.Database.Hostname,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
		User:     c.Database.User,
		Password: c.Database.Password,
	}
}
