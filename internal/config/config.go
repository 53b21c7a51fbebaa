// Package config loads gateway configuration from an optional YAML file and
// SCENE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Providers []ProviderConfig `koanf:"providers"`
	Relay     RelayConfig      `koanf:"relay"`
	Directive DirectiveConfig  `koanf:"directive"`
	RateLimit RateLimitConfig  `koanf:"rate_limit"`
	Storage   StorageConfig    `koanf:"storage"`
	MQTT      MQTTConfig       `koanf:"mqtt"`
	Telemetry TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// ProviderConfig configures one upstream adapter.
type ProviderConfig struct {
	Name           string            `koanf:"name"`
	Type           string            `koanf:"type"` // openai, gemini
	APIKey         string            `koanf:"api_key"`
	BaseURL        string            `koanf:"base_url"`
	EmbeddingModel string            `koanf:"embedding_model"`
	Aliases        map[string]string `koanf:"aliases"` // merged over the built-in alias table
}

// RelayConfig shapes the prompt and defaults for each chat turn.
type RelayConfig struct {
	DefaultProvider string   `koanf:"default_provider"`
	DefaultModel    string   `koanf:"default_model"`
	SystemPrompt    string   `koanf:"system_prompt"`
	MaxTokens       int      `koanf:"max_tokens"`
	Temperature     float64  `koanf:"temperature"`
	HistoryLimit    int      `koanf:"history_limit"`
	Suggestions     []string `koanf:"suggestions"`
	// RankSuggestions orders Suggestions by embedding similarity to the message.
	RankSuggestions bool `koanf:"rank_suggestions"`
}

type DirectiveConfig struct {
	StartMarker   string `koanf:"start_marker"`
	EndMarker     string `koanf:"end_marker"`
	OverlapPasses int    `koanf:"overlap_passes"`
	// LabelLocale selects the zone label table ("zh", or "none" to keep
	// labels as the model wrote them).
	LabelLocale   string `koanf:"label_locale"`
}

type RateLimitConfig struct {
	Requests      int           `koanf:"requests"`
	Window        time.Duration `koanf:"window"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type StorageConfig struct {
	Type string `koanf:"type"` // memory, sqlite, postgres
	DSN  string `koanf:"dsn"`
}

type MQTTConfig struct {
	Enabled     bool   `koanf:"enabled"`
	BrokerURL   string `koanf:"broker_url"`
	ClientID    string `koanf:"client_id"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	TopicPrefix string `koanf:"topic_prefix"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":               8080,
	"server.request_timeout":    "120s",
	"relay.default_provider":    "openai",
	"relay.max_tokens":          2048,
	"relay.temperature":         0.7,
	"relay.history_limit":       20,
	"directive.start_marker":    "```scene",
	"directive.end_marker":      "```",
	"directive.overlap_passes":  1,
	"directive.label_locale":    "zh",
	"rate_limit.requests":       30,
	"rate_limit.window":         "1m",
	"rate_limit.sweep_interval": "5m",
	"storage.type":              "memory",
	"mqtt.client_id":            "scene-gateway",
	"mqtt.topic_prefix":         "scene",
	"telemetry.service_name":    "scene-gateway",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (if it exists), then SCENE_ environment overrides.
// Nested keys use a double underscore: SCENE_SERVER__PORT=9000.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("SCENE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SCENE_")), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = []ProviderConfig{defaultProvider(cfg.Relay.DefaultProvider)}
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" {
			p.Name = p.Type
		}
		p.APIKey = substituteEnvVars(p.APIKey)
	}
	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)
	cfg.MQTT.Password = substituteEnvVars(cfg.MQTT.Password)

	return &cfg, nil
}

// defaultProvider reads the conventional credential variable for typ.
func defaultProvider(typ string) ProviderConfig {
	return ProviderConfig{
		Name:   typ,
		Type:   typ,
		APIKey: "${" + CredentialEnvVar(typ) + "}",
	}
}

// CredentialEnvVar is the conventional environment variable holding the API key for a provider type.
func CredentialEnvVar(typ string) string {
	return strings.ToUpper(strings.ReplaceAll(typ, "-", "_")) + "_API_KEY"
}

// Provider returns the provider named name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
