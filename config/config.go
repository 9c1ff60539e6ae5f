// Package config loads docsmesh settings from a JSON file with environment
// overrides. A missing file is created with the defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/docsmesh"
	"github.com/hupe1980/docsmesh/core"
)

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Duration is a time.Duration written as a Go duration string ("30s").
// Plain numbers are read as seconds.
type Duration time.Duration

// D returns the value as time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

type Config struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	Server struct {
		Addr         string   `json:"addr"`
		Heartbeat    Duration `json:"heartbeat"`
		MaxBodyBytes int64    `json:"max_body_bytes"`
	} `json:"server"`

	Model struct {
		Provider    string   `json:"provider"`
		Name        string   `json:"name"`
		APIKey      string   `json:"api_key"`
		BaseURL     string   `json:"base_url"`
		MaxTokens   int64    `json:"max_tokens"`
		Temperature float64  `json:"temperature"`
		Timeout     Duration `json:"timeout"`
	} `json:"model"`

	Agent struct {
		MaxRounds           int      `json:"max_rounds"`
		ToolTimeout         Duration `json:"tool_timeout"`
		MaxParallelTools    int      `json:"max_parallel_tools"`
		MaxToolOutputTokens int      `json:"max_tool_output_tokens"`
		MaxHistoryMessages  int      `json:"max_history_messages"`
		SystemPrompt        string   `json:"system_prompt"`
	} `json:"agent"`

	Session struct {
		TTL           Duration `json:"ttl"`
		SweepInterval Duration `json:"sweep_interval"`
	} `json:"session"`

	Docs struct {
		DBPath string `json:"db_path"`
	} `json:"docs"`

	StackOverflow struct {
		Enabled   bool     `json:"enabled"`
		APIKey    string   `json:"api_key"`
		URLLimit  int      `json:"url_limit"`
		PostLimit int      `json:"post_limit"`
		Timeout   Duration `json:"timeout"`
	} `json:"stackoverflow"`

	GitHub struct {
		Enabled bool   `json:"enabled"`
		Token   string `json:"token"`
	} `json:"github"`
}

// DefaultPath returns $HOME/.docsmesh/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".docsmesh", "config.json")
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{LogLevel: "info", LogFormat: "json"}
	cfg.Server.Addr = ":8080"
	cfg.Server.Heartbeat = Duration(15 * time.Second)
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Model.Provider = ProviderAnthropic
	cfg.Model.Name = "claude-3-7-sonnet-latest"
	cfg.Model.MaxTokens = 4096
	cfg.Model.Temperature = 0.2
	cfg.Model.Timeout = Duration(2 * time.Minute)
	cfg.Agent.MaxRounds = 10
	cfg.Agent.ToolTimeout = Duration(30 * time.Second)
	cfg.Agent.MaxParallelTools = 4
	cfg.Agent.MaxToolOutputTokens = 20000
	cfg.Agent.SystemPrompt = docsmesh.DefaultInstructions
	cfg.Session.TTL = Duration(time.Hour)
	cfg.Session.SweepInterval = Duration(time.Minute)
	cfg.Docs.DBPath = filepath.Join(os.Getenv("HOME"), ".docsmesh", "docs.db")
	cfg.StackOverflow.Enabled = true
	cfg.StackOverflow.URLLimit = 3
	cfg.StackOverflow.PostLimit = 3
	cfg.StackOverflow.Timeout = Duration(5 * time.Second)
	return cfg
}

// Load reads path over the defaults, writing the defaults when the file does
// not exist, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("DOCSMESH_ADDR", &c.Server.Addr)
	set("DOCSMESH_DB", &c.Docs.DBPath)
	set("DOCSMESH_LOG_LEVEL", &c.LogLevel)
	set("DOCSMESH_MODEL_PROVIDER", &c.Model.Provider)
	set("DOCSMESH_MODEL", &c.Model.Name)
	set("SCRAPINGBEE_API_KEY", &c.StackOverflow.APIKey)
	set("GITHUB_TOKEN", &c.GitHub.Token)

	switch c.Model.Provider {
	case ProviderAnthropic:
		set("ANTHROPIC_API_KEY", &c.Model.APIKey)
		set("ANTHROPIC_BASE_URL", &c.Model.BaseURL)
	case ProviderOpenAI:
		set("OPENAI_API_KEY", &c.Model.APIKey)
		set("OPENAI_BASE_URL", &c.Model.BaseURL)
	}

	if v := getenv("DOCSMESH_MAX_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCSMESH_MAX_ROUNDS: %w", err)
		}
		c.Agent.MaxRounds = n
	}
	if v := getenv("DOCSMESH_GITHUB"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCSMESH_GITHUB: %w", err)
		}
		c.GitHub.Enabled = b
	}
	return nil
}

// Validate checks the settings a server needs before accepting requests.
func (c *Config) Validate() error {
	var problems []string
	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.APIKey == "" {
		problems = append(problems, fmt.Sprintf("%s api key", c.Model.Provider))
	}
	if c.StackOverflow.Enabled && c.StackOverflow.APIKey == "" {
		problems = append(problems, "SCRAPINGBEE_API_KEY")
	}
	if c.GitHub.Enabled && c.GitHub.Token == "" {
		problems = append(problems, "GITHUB_TOKEN")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", core.ErrMissingCredentials, strings.Join(problems, ", "))
	}
	if c.Agent.MaxRounds < 0 {
		return fmt.Errorf("agent.max_rounds must not be negative")
	}
	return nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
