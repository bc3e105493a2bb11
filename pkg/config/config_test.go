package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCESSGRAPH_NUM_WORKERS", "")
	t.Setenv("ACCESSGRAPH_CACHE_RADIUS", "")
	t.Setenv("ACCESSGRAPH_MAX_ITEMS_PER_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.NumWorkers)
	require.Equal(t, 0.0, cfg.CacheRadius)
	require.Equal(t, 20, cfg.DefaultMaxItemsPerBucket)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACCESSGRAPH_NUM_WORKERS", "4")
	t.Setenv("ACCESSGRAPH_CACHE_RADIUS", "1500.5")
	t.Setenv("ACCESSGRAPH_MAX_ITEMS_PER_BUCKET", "50")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.NumWorkers)
	require.InDelta(t, 1500.5, cfg.CacheRadius, 1e-9)
	require.Equal(t, 50, cfg.DefaultMaxItemsPerBucket)
}

func TestLoadInvalidNumWorkers(t *testing.T) {
	t.Setenv("ACCESSGRAPH_NUM_WORKERS", "not-a-number")
	_, err := Load()
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "ACCESSGRAPH_NUM_WORKERS", cerr.Field)
}

func TestLoadNegativeCacheRadius(t *testing.T) {
	t.Setenv("ACCESSGRAPH_CACHE_RADIUS", "-1")
	_, err := Load()
	require.Error(t, err)
}

func TestValidateCatchesDirectlyConstructedConfig(t *testing.T) {
	cfg := &Config{NumWorkers: -1, CacheRadius: -1, DefaultMaxItemsPerBucket: 0}
	err := cfg.Validate()
	require.Error(t, err)
}
