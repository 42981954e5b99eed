// Package config loads compass configuration from the environment with an
// optional YAML file underneath.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Environment variables win over
// YAML values.
type Config struct {
	// Model router upstream.
	RouterURL   string `yaml:"router_url"`
	RouterToken string `yaml:"router_token"`

	// Control plane.
	StationURL   string `yaml:"station_url"`
	AgentID      string `yaml:"agent_id"`
	AgentKey     string `yaml:"agent_key"`
	CollectorURL string `yaml:"collector_url"`

	// Jury panel.
	Models          []string `yaml:"models"`
	ReflectionModel string   `yaml:"reflection_model"`

	// Feature flags, enabled unless set to the literal "false".
	EnableReflection bool `yaml:"enable_reflection"`
	EnableMemory     bool `yaml:"enable_memory"`
	EnableGuardrails bool `yaml:"enable_guardrails"`
	EnableModeration bool `yaml:"enable_moderation"`

	SessionTTL time.Duration `yaml:"session_ttl"`

	// HTTP façade.
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`

	// Optional Redis backend for the long-term store; empty means
	// in-process memory.
	RedisAddr string `yaml:"redis_addr"`
}

var defaultModels = []string{"gpt-4o", "claude-sonnet-4", "gemini-2.0-flash"}

const (
	defaultReflectionModel = "claude-sonnet-4"
	defaultPort            = 8080
	defaultSessionTTL      = time.Hour
)

// Load builds the configuration: optional YAML file first, environment
// second. path may be empty.
func Load(path string) (*Config, error) {
	cfg := &Config{
		EnableReflection: true,
		EnableMemory:     true,
		EnableGuardrails: true,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.RouterURL, "MODEL_ROUTER_URL")
	setString(&c.RouterToken, "MODEL_ROUTER_TOKEN")
	setString(&c.StationURL, "PAP_STATION_URL")
	setString(&c.AgentID, "PAP_AGENT_ID")
	setString(&c.AgentKey, "PAP_AGENT_KEY")
	setString(&c.CollectorURL, "PAP_COLLECTOR_URL")
	setString(&c.ReflectionModel, "REFLECTION_MODEL")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.RedisAddr, "REDIS_ADDR")

	if v := os.Getenv("COMPASS_MODELS"); v != "" {
		var models []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		c.Models = models
	}

	c.EnableReflection = flagEnabled("ENABLE_REFLECTION", c.EnableReflection)
	c.EnableMemory = flagEnabled("ENABLE_MEMORY", c.EnableMemory)
	c.EnableGuardrails = flagEnabled("ENABLE_GUARDRAILS", c.EnableGuardrails)
	c.EnableModeration = flagEnabled("ENABLE_OUTPUT_MODERATION", c.EnableModeration)

	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.SessionTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

func (c *Config) applyDefaults() {
	if len(c.Models) == 0 {
		c.Models = append([]string(nil), defaultModels...)
	}
	if c.ReflectionModel == "" {
		c.ReflectionModel = defaultReflectionModel
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.RouterURL == "" {
		return fmt.Errorf("MODEL_ROUTER_URL is required")
	}
	if c.RouterToken == "" {
		return fmt.Errorf("MODEL_ROUTER_TOKEN is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("PAP_AGENT_ID is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// flagEnabled implements the feature-flag contract: enabled unless the
// variable is the literal "false".
func flagEnabled(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "":
		return fallback
	case "false":
		return false
	default:
		return true
	}
}
