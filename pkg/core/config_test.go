package core_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingxinonline/landoubao-mem0/pkg/core"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := core.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Provider)
	assert.Equal(t, "lexical", cfg.Semantic.Provider)
	assert.Equal(t, 1.0, cfg.UserFactor)
	assert.Equal(t, time.Hour, cfg.Sweeps.CompressionInterval)
	assert.Equal(t, 365*24*time.Hour, cfg.Sweeps.RetentionAge)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*core.Config)
	}{
		{"unknown store", func(c *core.Config) { c.Store.Provider = "etcd" }},
		{"unknown semantic", func(c *core.Config) { c.Semantic.Provider = "tfidf" }},
		{"openai without key", func(c *core.Config) { c.Semantic.Provider = "openai" }},
		{"user factor too low", func(c *core.Config) { c.UserFactor = 0.5 }},
		{"user factor too high", func(c *core.Config) { c.UserFactor = 1.6 }},
		{"short encryption key", func(c *core.Config) { c.EncryptionKey = "too-short" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidConfig)
		})
	}
}

func TestValidateAcceptsOpenAIWithKey(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Semantic.Provider = "openai"
	cfg.Semantic.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"store": {"provider": "sqlite", "config": {"db_path": "/tmp/mem.db", "port": 5433}},
		"user_factor": 1.2,
		"node_id": 7
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Provider)
	assert.Equal(t, "/tmp/mem.db", cfg.Store.StringOption("db_path", ""))
	assert.Equal(t, 5433, cfg.Store.IntOption("port", 0), "JSON numbers decode as float64")
	assert.Equal(t, 1.2, cfg.UserFactor)
	assert.Equal(t, int64(7), cfg.NodeID)
	assert.Equal(t, "lexical", cfg.Semantic.Provider, "defaults survive partial files")
}

func TestLoadConfigFromJSONInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"user_factor": 9}`), 0o600))
	_, err := core.LoadConfigFromJSON(path)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = core.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MEMORY_STORE_PROVIDER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/env.db")
	t.Setenv("MEMORY_USER_FACTOR", "0.8")
	t.Setenv("SWEEP_MERGE_INTERVAL", "45m")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Provider)
	assert.Equal(t, "/tmp/env.db", cfg.Store.StringOption("db_path", ""))
	assert.Equal(t, 0.8, cfg.UserFactor)
	assert.Equal(t, 45*time.Minute, cfg.Sweeps.MergeInterval)
}

func TestLoadConfigFromEnvBadValues(t *testing.T) {
	t.Setenv("MEMORY_USER_FACTOR", "fast")
	_, err := core.LoadConfigFromEnv()
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestStoreConfigOptionFallbacks(t *testing.T) {
	sc := core.StoreConfig{Config: map[string]interface{}{"port": 15, "name": ""}}
	assert.Equal(t, 15, sc.IntOption("port", 0))
	assert.Equal(t, 3306, sc.IntOption("absent", 3306))
	assert.Equal(t, "fallback", sc.StringOption("name", "fallback"), "empty strings fall back")
}
