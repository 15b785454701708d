// Package config loads service configuration from the environment, an optional .env
// file and an optional YAML file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/pkg/codec"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the full service configuration. Defaults target local development.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	Store         string        `envconfig:"STORE" default:"memory"`
	Namespace     string        `envconfig:"NAMESPACE" default:"default"`
	Codec         string        `envconfig:"CODEC" default:"json"`
	CheckpointTTL time.Duration `envconfig:"CHECKPOINT_TTL" default:"0s"`

	RedisAddr       string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix     string `envconfig:"REDIS_PREFIX" default:"threadgraph:"`
	DistributedLock bool   `envconfig:"DISTRIBUTED_LOCK" default:"false"`

	FileDir     string `envconfig:"FILE_DIR" default:".threadgraph/checkpoints"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:".threadgraph/checkpoints.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// EncryptionKey is a base64 encoded 32 byte key. Empty disables encryption at rest.
	EncryptionKey          string   `envconfig:"ENCRYPTION_KEY"`
	EncryptionFallbackKeys []string `envconfig:"ENCRYPTION_FALLBACK_KEYS"`
	RedactPatterns         []string `envconfig:"REDACT_PATTERNS"`

	LLMProvider       string        `envconfig:"LLM_PROVIDER" default:"ollama"`
	LLMBaseURL        string        `envconfig:"LLM_BASE_URL" default:"http://localhost:11434"`
	LLMModel          string        `envconfig:"LLM_MODEL" default:"llama3"`
	LLMAPIKey         string        `envconfig:"LLM_API_KEY"`
	LLMMaxTokens      int           `envconfig:"LLM_MAX_TOKENS" default:"0"`
	LLMTemperature    *float64      `envconfig:"LLM_TEMPERATURE"`
	CompletionTimeout time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"60s"`

	RouterKeywords []string `envconfig:"ROUTER_KEYWORDS"`
	SystemPrompt   string   `envconfig:"SYSTEM_PROMPT"`
	SerializeTurns bool     `envconfig:"SERIALIZE_TURNS" default:"true"`

	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`
	ConfigFile string `envconfig:"CONFIG_FILE"`
}

// aliases lets older deployments keep their variable names.
var aliases = map[string]string{
	"LLM_BASE_URL": "OLLAMA_BASE_URL",
	"LLM_MODEL":    "OLLAMA_MODEL",
}

// Load reads envFile (if it exists), the process environment and the optional YAML
// file named by CONFIG_FILE, then validates the result.
// Variables already set in the environment win over the .env file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	cfg.applyAliases()

	if cfg.ConfigFile != "" {
		if err := cfg.ApplyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyAliases() {
	for primary, alias := range aliases {
		if _, set := os.LookupEnv(primary); set {
			continue
		}
		v, ok := os.LookupEnv(alias)
		if !ok {
			continue
		}
		switch primary {
		case "LLM_BASE_URL":
			c.LLMBaseURL = v
		case "LLM_MODEL":
			c.LLMModel = v
		}
	}
}

// Validate checks enumerations and derived values.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StoreFile, StoreSQLite:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if err := domain.ValidateNamespace(c.Namespace); err != nil {
		return fmt.Errorf("NAMESPACE: %w", err)
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.Encryption(); err != nil {
		return err
	}
	for _, p := range c.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("REDACT_PATTERNS: %w", err)
		}
	}
	if c.CompletionTimeout < 0 {
		return errors.New("COMPLETION_TIMEOUT must not be negative")
	}
	return nil
}

// SlogLevel returns the parsed log level.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := logging.ParseLevel(c.LogLevel)
	return lvl
}

// Encryption decodes the configured keys. It returns nil when encryption is disabled.
func (c *Config) Encryption() (*codec.EncryptionConfig, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	active, err := decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	ec := &codec.EncryptionConfig{ActiveKey: active}
	for i, k := range c.EncryptionFallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_FALLBACK_KEYS[%d]: %w", i, err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, key)
	}
	return ec, nil
}

// PayloadCodec builds the checkpoint codec, wrapped with encryption when configured.
func (c *Config) PayloadCodec() (codec.Codec, error) {
	base, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	ec, err := c.Encryption()
	if err != nil || ec == nil {
		return base, err
	}
	return codec.NewEncrypted(base, *ec)
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
