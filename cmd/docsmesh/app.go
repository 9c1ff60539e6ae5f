package main

import (
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/docsmesh"
	"github.com/hupe1980/docsmesh/config"
	"github.com/hupe1980/docsmesh/docs"
	"github.com/hupe1980/docsmesh/flow"
	"github.com/hupe1980/docsmesh/github"
	"github.com/hupe1980/docsmesh/internal/util"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/model"
	"github.com/hupe1980/docsmesh/model/anthropic"
	"github.com/hupe1980/docsmesh/model/openai"
	"github.com/hupe1980/docsmesh/session"
	"github.com/hupe1980/docsmesh/stackoverflow"
	"github.com/hupe1980/docsmesh/tool"
)

// app holds the wired components shared by serve and ask.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	store     *docs.SQLiteStore
	sessions  *session.InMemoryStore
	assistant *docsmesh.Assistant
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.StructuredLogger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
	}
	return logging.New(logging.LoggerConfig{
		Level:     level,
		Format:    cfg.LogFormat,
		Output:    os.Stderr,
		Component: "docsmesh",
	})
}

func newApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	store, err := docs.OpenSQLite(cfg.Docs.DBPath)
	if err != nil {
		return nil, err
	}

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.TTL = cfg.Session.TTL.D()
		o.SweepInterval = cfg.Session.SweepInterval.D()
		o.Logger = logger
	})

	assistant, err := newAssistant(cfg, newModel(cfg), store, sessions, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info("app.ready",
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
		"tools", assistant.ToolNames(),
		"db", cfg.Docs.DBPath,
	)
	return &app{cfg: cfg, logger: logger, store: store, sessions: sessions, assistant: assistant}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newAssistant(cfg *config.Config, m model.Model, store docs.Store, sessions *session.InMemoryStore, logger logging.Logger) (*docsmesh.Assistant, error) {
	return docsmesh.New(m, store, func(o *docsmesh.Options) {
		o.Instructions = cfg.Agent.SystemPrompt
		o.Tools = extraTools(cfg, logger)
		o.MaxRounds = cfg.Agent.MaxRounds
		o.SessionStore = sessions
		o.Logger = logger
		o.Flow = func(fo *flow.Options) {
			fo.ModelTimeout = cfg.Model.Timeout.D()
			fo.MaxHistoryMessages = cfg.Agent.MaxHistoryMessages
			fo.Executor.Timeout = cfg.Agent.ToolTimeout.D()
			fo.Executor.MaxParallel = cfg.Agent.MaxParallelTools
			fo.Executor.MaxOutputTokens = cfg.Agent.MaxToolOutputTokens
			fo.Executor.Truncator = util.NewTokenTruncator(cfg.Model.Name)
		}
	})
}

func newModel(cfg *config.Config) model.Model {
	switch cfg.Model.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Model.Name
			o.APIKey = cfg.Model.APIKey
			o.BaseURL = cfg.Model.BaseURL
			o.MaxCompletionTokens = cfg.Model.MaxTokens
			o.Temperature = cfg.Model.Temperature
		})
	default:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model.Name)
			o.APIKey = cfg.Model.APIKey
			o.BaseURL = cfg.Model.BaseURL
			o.MaxTokens = cfg.Model.MaxTokens
			o.Temperature = cfg.Model.Temperature
		})
	}
}

// extraTools returns the optional tools enabled by cfg.
func extraTools(cfg *config.Config, logger logging.Logger) []tool.Tool {
	var tools []tool.Tool

	if cfg.StackOverflow.Enabled {
		if cfg.StackOverflow.APIKey == "" {
			logger.Warn("app.stackoverflow.disabled", "reason", "SCRAPINGBEE_API_KEY is not set")
		} else {
			tools = append(tools, stackoverflow.NewSearchTool(stackoverflow.New(func(o *stackoverflow.Options) {
				o.APIKey = cfg.StackOverflow.APIKey
				o.URLLimit = cfg.StackOverflow.URLLimit
				o.PostLimit = cfg.StackOverflow.PostLimit
				o.Timeout = cfg.StackOverflow.Timeout.D()
				o.Logger = logger
			})))
		}
	}

	if cfg.GitHub.Enabled {
		tools = append(tools, github.Tools(github.New(func(o *github.Options) {
			o.Token = cfg.GitHub.Token
			o.Logger = logger
		}))...)
	}
	return tools
}
