package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a memory engine.
//
// It includes settings for:
//   - Store backend (memory, sqlite, postgres, mysql)
//   - Semantic provider (lexical or openai)
//   - Per-user forgetting speed
//   - Scheduler sweep cadence
//   - Optional encryption of sensitive records
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	    Semantic: core.SemanticConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	    },
//	}
type Config struct {
	// Store contains storage backend configuration.
	Store StoreConfig `json:"store"`

	// Semantic contains similarity/summarizer provider configuration.
	Semantic SemanticConfig `json:"semantic"`

	// UserFactor is the per-user forgetting speed in [0.7, 1.5];
	// 0.7 forgets slowly, 1.5 forgets fast.
	UserFactor float64 `json:"user_factor"`

	// NodeID identifies this process in generated record IDs.
	NodeID int64 `json:"node_id"`

	// DeviceUUID pins the device identity; generated when empty.
	DeviceUUID string `json:"device_uuid,omitempty"`

	// Sweeps contains scheduler cadence configuration.
	Sweeps SweepConfig `json:"sweeps"`

	// EncryptionKey, when set, must be 32 bytes and enables encryption of
	// sensitivity level 3 records.
	EncryptionKey string `json:"encryption_key,omitempty"`
}

// StoreConfig selects and configures the storage backend.
//
// Supported providers: memory, sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the backend name (memory, sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific settings (db_path, host, port...).
	Config map[string]interface{} `json:"config,omitempty"`
}

// SemanticConfig selects the similarity/summarizer provider.
//
// Supported providers: lexical, openai
type SemanticConfig struct {
	// Provider is the provider name (lexical, openai).
	Provider string `json:"provider"`

	// APIKey is the API key for hosted providers.
	APIKey string `json:"api_key,omitempty"`

	// EmbeddingModel overrides the default embedding model.
	EmbeddingModel string `json:"embedding_model,omitempty"`

	// ChatModel overrides the default summarization model.
	ChatModel string `json:"chat_model,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty"`
}

// SweepConfig carries the scheduler cadence.
type SweepConfig struct {
	CompressionInterval time.Duration `json:"compression_interval"`
	MergeInterval       time.Duration `json:"merge_interval"`
	CleanupInterval     time.Duration `json:"cleanup_interval"`
	RetentionAge        time.Duration `json:"retention_age"`
	HardDeleteGrace     time.Duration `json:"hard_delete_grace"`
}

// DefaultConfig returns a working in-process configuration: in-memory
// store, lexical semantic provider, neutral user factor.
func DefaultConfig() *Config {
	return &Config{
		Store:      StoreConfig{Provider: "memory"},
		Semantic:   SemanticConfig{Provider: "lexical"},
		UserFactor: 1.0,
		NodeID:     1,
		Sweeps: SweepConfig{
			CompressionInterval: time.Hour,
			MergeInterval:       2 * time.Hour,
			CleanupInterval:     24 * time.Hour,
			RetentionAge:        365 * 24 * time.Hour,
			HardDeleteGrace:     30 * 24 * time.Hour,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables,
// reading a .env file from the working directory or EXE directory first
// when present.
func LoadConfigFromEnv() (*Config, error) {
	if exe, err := os.Executable(); err == nil {
		envPath := filepath.Join(filepath.Dir(exe), ".env")
		_ = godotenv.Load(envPath)
	}
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.Store.Provider = getEnvOrDefault("MEMORY_STORE_PROVIDER", cfg.Store.Provider)
	switch cfg.Store.Provider {
	case "sqlite":
		cfg.Store.Config = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./landoubao.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		cfg.Store.Config = map[string]interface{}{
			"host":       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":   os.Getenv("POSTGRES_PASSWORD"),
			"database":   getEnvOrDefault("POSTGRES_DATABASE", "landoubao"),
			"ssl_mode":   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
			"table_name": getEnvOrDefault("POSTGRES_TABLE", "memories"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		cfg.Store.Config = map[string]interface{}{
			"host":       getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":       port,
			"user":       getEnvOrDefault("MYSQL_USER", "root"),
			"password":   os.Getenv("MYSQL_PASSWORD"),
			"database":   getEnvOrDefault("MYSQL_DATABASE", "landoubao"),
			"table_name": getEnvOrDefault("MYSQL_TABLE", "memories"),
		}
	}

	cfg.Semantic.Provider = getEnvOrDefault("SEMANTIC_PROVIDER", cfg.Semantic.Provider)
	if cfg.Semantic.Provider == "openai" {
		cfg.Semantic.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.Semantic.EmbeddingModel = os.Getenv("OPENAI_EMBEDDING_MODEL")
		cfg.Semantic.ChatModel = os.Getenv("OPENAI_CHAT_MODEL")
		cfg.Semantic.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if v := os.Getenv("MEMORY_USER_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, NewEngineError("LoadConfigFromEnv",
				fmt.Errorf("%w: MEMORY_USER_FACTOR %q is not a number", ErrInvalidConfig, v))
		}
		cfg.UserFactor = f
	}
	if v := os.Getenv("MEMORY_NODE_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, NewEngineError("LoadConfigFromEnv",
				fmt.Errorf("%w: MEMORY_NODE_ID %q is not an integer", ErrInvalidConfig, v))
		}
		cfg.NodeID = n
	}
	cfg.DeviceUUID = os.Getenv("MEMORY_DEVICE_UUID")
	cfg.EncryptionKey = os.Getenv("MEMORY_ENCRYPTION_KEY")

	for env, dst := range map[string]*time.Duration{
		"SWEEP_COMPRESSION_INTERVAL": &cfg.Sweeps.CompressionInterval,
		"SWEEP_MERGE_INTERVAL":       &cfg.Sweeps.MergeInterval,
		"SWEEP_CLEANUP_INTERVAL":     &cfg.Sweeps.CleanupInterval,
		"SWEEP_RETENTION_AGE":        &cfg.Sweeps.RetentionAge,
		"SWEEP_HARD_DELETE_GRACE":    &cfg.Sweeps.HardDeleteGrace,
	} {
		if v := os.Getenv(env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, NewEngineError("LoadConfigFromEnv",
					fmt.Errorf("%w: %s %q is not a duration", ErrInvalidConfig, env, v))
			}
			*dst = d
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewEngineError("LoadConfigFromEnvFile", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return NewEngineError("Config.Validate",
			fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, c.Store.Provider))
	}
	switch c.Semantic.Provider {
	case "lexical":
	case "openai":
		if c.Semantic.APIKey == "" {
			return NewEngineError("Config.Validate",
				fmt.Errorf("%w: openai semantic provider requires an API key", ErrInvalidConfig))
		}
	default:
		return NewEngineError("Config.Validate",
			fmt.Errorf("%w: unknown semantic provider %q", ErrInvalidConfig, c.Semantic.Provider))
	}
	if c.UserFactor < 0.7 || c.UserFactor > 1.5 {
		return NewEngineError("Config.Validate",
			fmt.Errorf("%w: user factor %.2f outside [0.7, 1.5]", ErrInvalidConfig, c.UserFactor))
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return NewEngineError("Config.Validate",
			fmt.Errorf("%w: encryption key must be exactly 32 bytes", ErrInvalidConfig))
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// StringOption reads a string from a provider config map.
func (sc StoreConfig) StringOption(key, def string) string {
	if v, ok := sc.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// IntOption reads an integer from a provider config map, accepting both
// int and JSON's float64.
func (sc StoreConfig) IntOption(key string, def int) int {
	switch v := sc.Config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
