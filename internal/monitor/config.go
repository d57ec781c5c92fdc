package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

const (
	// DefaultPollInterval is the default interval between two scheduler polls.
	DefaultPollInterval = 30 * time.Second
	// DefaultRetention is how long submitted and unresolved jobs are kept
	// before pruning.
	DefaultRetention = 24 * time.Hour
	// DefaultResolveAttempts bounds the metadata lookups for a job that
	// left the queue before it is written off as unresolved.
	DefaultResolveAttempts = 5
	// DefaultServiceURL is the default address of the attribution service.
	DefaultServiceURL = "http://localhost:8000"
)

// Duration wraps time.Duration so config files can say "30s" or "24h".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	// PollInterval is the interval between two scheduler polls
	PollInterval Duration `json:"poll-interval,omitempty"`
	// Partitions restricts polling to these partitions; empty means all
	Partitions []string `json:"partitions,omitempty"`
	// User restricts polling to jobs of this user
	User string `json:"user,omitempty"`
	// JobNamePattern restricts polling to jobs whose name matches this pattern
	JobNamePattern string `json:"job-name-pattern,omitempty"`

	// ServiceURL is the base URL of the attribution service logs are submitted to
	ServiceURL string `json:"service-url,omitempty"`

	// DBPath is the sqlite file holding the durable job records
	DBPath string `json:"db-path,omitempty"`
	// Retention is how long submitted and unresolved jobs are kept
	Retention Duration `json:"retention,omitempty"`
	// ResolveAttempts bounds metadata lookups for departed jobs
	ResolveAttempts int `json:"resolve-attempts,omitempty"`

	// ListenAddress is the address of the monitor's status endpoint
	ListenAddress string `json:"listen-address,omitempty"`
	// LogLevel is the level of logging: "debug", "info", "warn" or "error"
	LogLevel string `json:"log-level,omitempty"`
}

func NewDefault() *Config {
	return &Config{
		PollInterval:    Duration{Duration: DefaultPollInterval},
		ServiceURL:      DefaultServiceURL,
		DBPath:          "monitor.db",
		Retention:       Duration{Duration: DefaultRetention},
		ResolveAttempts: DefaultResolveAttempts,
		ListenAddress:   ":3333",
		LogLevel:        "info",
	}
}

// ParseConfigFile reads the config file and unmarshals it into the Config struct
func (cfg *Config) ParseConfigFile(cfgFile string) error {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshalling config file: %w", err)
	}
	return nil
}

func (cfg *Config) Validate() error {
	if cfg.ServiceURL == "" {
		return fmt.Errorf("service-url is required")
	}
	if cfg.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if cfg.ResolveAttempts <= 0 {
		return fmt.Errorf("resolve-attempts must be positive")
	}
	return nil
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
