// Package config loads replyflow settings from defaults, an optional YAML
// file, REPLYFLOW_ environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/replyflow/internal/validator"
	playground "github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. Nested keys use a double
// underscore: REPLYFLOW_REDIS__ADDR sets redis.addr.
const EnvPrefix = "REPLYFLOW_"

// Config is the complete runtime configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Redis   RedisConfig   `koanf:"redis"`
	Engine  EngineConfig  `koanf:"engine"`
	AI      AIConfig      `koanf:"ai"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend string `koanf:"backend" validate:"oneof=memory file redis"`
	// Path is the directory of the file backend.
	Path string `koanf:"path" validate:"required_if=Backend file"`
	// EncryptionKey is a base64 AES-256 key. When set, session data is
	// encrypted at rest; FallbackKeys still decrypt older sessions.
	EncryptionKey string   `koanf:"encryption_key" validate:"omitempty,base64"`
	FallbackKeys  []string `koanf:"fallback_keys" validate:"dive,base64"`
	// RedactKeys are patterns of variable and slot names masked when
	// sessions are inspected.
	RedactKeys []string `koanf:"redact_keys"`
}

type RedisConfig struct {
	Addr       string        `koanf:"addr" validate:"required"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db" validate:"gte=0"`
	Prefix     string        `koanf:"prefix"`
	SessionTTL time.Duration `koanf:"session_ttl" validate:"gte=0"`
}

type EngineConfig struct {
	MaxHops          int           `koanf:"max_hops" validate:"gte=1"`
	EventLogCapacity int           `koanf:"event_log_capacity" validate:"gte=1"`
	LockTTL          time.Duration `koanf:"lock_ttl" validate:"gt=0"`
	HistoryLimit     int           `koanf:"history_limit" validate:"gte=1"`
	DeferralMessage  string        `koanf:"deferral_message" validate:"required"`
	MaxInputBytes    int           `koanf:"max_input_bytes" validate:"gte=1"`
}

type AIConfig struct {
	DefaultProvider string        `koanf:"default_provider" validate:"omitempty,oneof=genai openai"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries      int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	KnowledgeTopK   int           `koanf:"knowledge_top_k" validate:"gte=0"`
	BannedPhrases   []string      `koanf:"banned_phrases"`
	GenAI           GenAIConfig   `koanf:"genai"`
	OpenAI          OpenAIConfig  `koanf:"openai"`
}

type GenAIConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{Backend: "memory", Path: ".replyflow/sessions"},
		Redis: RedisConfig{Addr: "localhost:6379", Prefix: "replyflow:"},
		Engine: EngineConfig{
			MaxHops:          16,
			EventLogCapacity: 200,
			LockTTL:          30 * time.Second,
			HistoryLimit:     12,
			DeferralMessage:  "Thanks for your message! We'll get back to you shortly.",
			MaxInputBytes:    4096,
		},
		AI: AIConfig{
			Timeout:       30 * time.Second,
			MaxRetries:    2,
			KnowledgeTopK: 5,
			GenAI:         GenAIConfig{Model: "gemini-2.5-flash"},
			OpenAI:        OpenAIConfig{Model: "gpt-4o-mini"},
		},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"store":          "store.backend",
	"store-path":     "store.path",
	"redis-addr":     "redis.addr",
	"metrics-addr":   "metrics.addr",
	"max-hops":       "engine.max_hops",
	"ai-provider":    "ai.default_provider",
	"history-limit":  "engine.history_limit",
	"deferral-reply": "engine.deferral_message",
}

// Options selects the sources Load reads on top of the defaults.
type Options struct {
	// File is an optional YAML file. A missing file is an error only when set.
	File string
	// Flags are applied last; only flags the user changed override anything.
	Flags *pflag.FlagSet
	// Environ replaces os.Environ, for tests.
	Environ func() []string
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(kfile.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", opts.File, err)
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		EnvironFunc:   environ,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// transformEnv turns REPLYFLOW_ENGINE__MAX_HOPS into engine.max_hops.
// Comma separated values become lists.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		return key, items
	}
	return key, value
}

var listKeys = map[string]bool{
	"ai.banned_phrases":   true,
	"store.fallback_keys": true,
	"store.redact_keys":   true,
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	err := validator.Struct().Struct(c)
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(problems, "; "))
}
