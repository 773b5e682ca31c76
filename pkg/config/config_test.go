package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Tracker.SnapshotPath = "data/pricefeed.json"
	cfg.Tracker.DatapointCap = 100
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"missing rpc url", func(c *Config) { c.Chain.RPCURL = "" }},
		{"missing snapshot path", func(c *Config) { c.Tracker.SnapshotPath = "" }},
		{"zero datapoint cap", func(c *Config) { c.Tracker.DatapointCap = 0 }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"influx enabled without url", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Tracker.DatapointCap)
	assert.Equal(t, "data/pricefeed.json", cfg.Tracker.SnapshotPath)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Security.CORSEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TRACKER_DATAPOINT_CAP", "50")
	t.Setenv("CHAIN_POOLS", "0xaaa,0xbbb")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Tracker.DatapointCap)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Chain.Pools)
}

func TestAddrHelpers(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379

	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}
