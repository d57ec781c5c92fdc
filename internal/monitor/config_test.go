package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	contents := `poll-interval: 1m
partitions:
  - gpu
  - batch
user: svc-monitor
service-url: http://attribution:8000
retention: 48h
resolve-attempts: 10
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(contents), 0o600))

	cfg := NewDefault()
	require.NoError(t, cfg.ParseConfigFile(cfgFile))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Minute, cfg.PollInterval.Duration)
	assert.Equal(t, []string{"gpu", "batch"}, cfg.Partitions)
	assert.Equal(t, "svc-monitor", cfg.User)
	assert.Equal(t, "http://attribution:8000", cfg.ServiceURL)
	assert.Equal(t, 48*time.Hour, cfg.Retention.Duration)
	assert.Equal(t, 10, cfg.ResolveAttempts)

	// untouched fields keep their defaults
	assert.Equal(t, "monitor.db", cfg.DBPath)
	assert.Equal(t, ":3333", cfg.ListenAddress)
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefault()
	cfg.ServiceURL = ""
	assert.Error(t, cfg.Validate())

	cfg = NewDefault()
	cfg.PollInterval = Duration{}
	assert.Error(t, cfg.Validate())

	cfg = NewDefault()
	cfg.ResolveAttempts = 0
	assert.Error(t, cfg.Validate())
}
