package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aidesk/aidesk/internal/agent"
	"github.com/aidesk/aidesk/internal/cloudtoken"
	"github.com/aidesk/aidesk/internal/config"
	"github.com/aidesk/aidesk/internal/provider"
	"github.com/aidesk/aidesk/internal/session"
	"github.com/aidesk/aidesk/internal/tools"
	"github.com/aidesk/aidesk/internal/trace"
)

// runtime bundles the wired components shared by the serve and chat
// commands.
type runtime struct {
	cfg      *config.Config
	provider provider.Client
	registry *tools.Registry
	sessions *session.Manager
	recorder *trace.Recorder
	tokens   *cloudtoken.Store
	logger   *slog.Logger
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no provider API key configured (set AIDESK_PROVIDER_API_KEY or OPENAI_API_KEY)")
	}
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	prov := provider.NewOpenAIClient(
		cfg.Provider.APIKey,
		cfg.Provider.APIBase,
		cfg.Model.Name,
		cfg.Provider.Timeout,
	)

	tokens := cloudtoken.NewStore(cfg.Tools.MiCloud.TokenPath)

	registry := tools.NewRegistry()
	registry.Register(tools.NewSystemCommandTool(cfg.Tools.Command.Timeout, cfg.Tools.Command.WorkDir))
	if kb, err := tools.NewKnowledgeBaseTool(cfg.Tools.Knowledge.DBPath); err != nil {
		logger.Warn("knowledge base disabled", "error", err)
	} else {
		registry.Register(kb)
	}
	registry.Register(tools.NewWebBrowserTool(tools.WebBrowserOptions{
		APIKey:       cfg.Tools.Web.SerpAPIKey,
		MonthlyLimit: cfg.Tools.Web.MonthlyLimit,
		MaxResults:   cfg.Tools.Web.MaxResults,
		CacheTTL:     cfg.Tools.Web.CacheTTL,
		CounterPath:  cfg.Paths.DataDir + "/search_counter.json",
	}))
	registry.Register(tools.NewEmailTool(cfg.Tools.Email.Type, cfg.Tools.Email.Address, cfg.Tools.Email.Password))
	registry.Register(tools.NewMiCloudTool(tokens, cfg.Tools.MiCloud.BaseURL, cfg.Paths.DataDir))
	registry.RegisterDefinition(tools.Definition{
		Name:        "task_complete",
		Description: "任务已完成时调用，表示不再需要其他工具。",
	})

	var publisher *trace.Publisher
	if cfg.Trace.KafkaEnabled && cfg.Trace.KafkaBrokers != "" {
		publisher = trace.NewPublisher(strings.Split(cfg.Trace.KafkaBrokers, ","), cfg.Trace.KafkaTopic, logger)
	}
	recorder, err := trace.NewRecorder(cfg.Trace.DBPath, publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}

	factory := func(id string) *agent.Agent {
		return agent.New(id, agent.Options{
			Provider:      prov,
			Registry:      registry,
			MaxIterations: cfg.Agent.MaxIterations,
			MaxRetries:    cfg.Agent.MaxRetries,
			Model:         cfg.Model.Name,
			Logger:        logger,
			Tracer:        recorder,
		})
	}
	sessions := session.NewManager(cfg.Paths.SessionsDir, factory, logger)

	return &runtime{
		cfg:      cfg,
		provider: prov,
		registry: registry,
		sessions: sessions,
		recorder: recorder,
		tokens:   tokens,
		logger:   logger,
	}, nil
}

func (rt *runtime) Close() {
	if rt.recorder != nil {
		rt.recorder.Close()
	}
}

func (rt *runtime) defaultOptions() agent.ProcessOptions {
	return agent.ProcessOptions{
		Model:            rt.cfg.Model.Name,
		Temperature:      rt.cfg.Model.Temperature,
		MaxTokens:        rt.cfg.Model.MaxTokens,
		TopP:             rt.cfg.Model.TopP,
		FrequencyPenalty: rt.cfg.Model.FrequencyPenalty,
		PresencePenalty:  rt.cfg.Model.PresencePenalty,
	}
}
