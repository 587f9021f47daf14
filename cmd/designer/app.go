package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/designer-agent/internal/agent"
	"github.com/nugget/designer-agent/internal/config"
	"github.com/nugget/designer-agent/internal/design"
	"github.com/nugget/designer-agent/internal/events"
	"github.com/nugget/designer-agent/internal/fetch"
	"github.com/nugget/designer-agent/internal/llm"
	"github.com/nugget/designer-agent/internal/references"
	"github.com/nugget/designer-agent/internal/runlog"
	"github.com/nugget/designer-agent/internal/search"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/trace"
	"github.com/nugget/designer-agent/internal/usage"
)

// app holds the components shared by the run and serve subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	loop     *agent.Loop
	usage    *usage.Store
	runs     *runlog.Store
	bus      *events.Bus
	httpSink *trace.HTTPSink
}

// newApp opens the usage store and wires the agent loop with every
// tool. prompter answers ask_feedback when a run brings none.
func newApp(cfg *config.Config, logger *slog.Logger, prompter tools.Prompter) (*app, error) {
	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	usageStore, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		return nil, fmt.Errorf("open usage store: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, usage: usageStore, bus: events.New()}

	a.runs, err = runlog.Open(filepath.Join(cfg.DataDir, "runs.db"))
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	sinks := trace.MultiSink{
		trace.BusSink{Bus: a.bus},
		trace.UsageSink{Store: usageStore, Provider: cfg.ProviderFor},
	}
	if cfg.Tracing.Configured() {
		a.httpSink = trace.NewHTTPSink(cfg.Tracing, nil, logger)
		sinks = append(sinks, a.httpSink)
		logger.Info("trace ingestion enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	client := createLLMClient(cfg, logger)

	reg := tools.NewRegistry()

	mgr := search.NewManager(cfg.Search.Default,
		search.WithRateLimit(cfg.Search.RatePerMinute),
		search.WithLogger(logger),
	)
	if cfg.Search.SearXNG.Configured() {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Brave.Configured() {
		mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	if !mgr.Configured() {
		logger.Info("web search not configured; web_search will report errors")
	}
	if err := search.Register(reg, mgr); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	if err := fetch.Register(reg, fetch.New(fetch.WithLogger(logger))); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	dataset, err := references.Load(cfg.References.Dataset)
	if err != nil {
		a.Close(context.Background())
		return nil, fmt.Errorf("load reference dataset: %w", err)
	}
	logger.Info("reference dataset loaded", "images", len(dataset.Images), "path", cfg.References.Dataset)
	if err := references.Register(reg, dataset); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	var images design.ImageGenerator
	if cfg.Models.Image != "" && cfg.Models.Image != "none" {
		images = &design.ModelImageGenerator{Client: client, Model: cfg.Models.Image}
	}
	designTools := design.New(design.Config{
		Client:   client,
		Model:    cfg.Models.Default,
		Images:   images,
		Prompter: prompter,
		Logger:   logger,
	})
	if err := designTools.Register(reg); err != nil {
		a.Close(context.Background())
		return nil, err
	}

	a.loop = agent.NewLoop(agent.Config{
		Client:        client,
		Model:         cfg.Models.Default,
		Dispatcher:    tools.NewDispatcher(reg, logger),
		Logger:        logger,
		MaxIterations: cfg.Agent.MaxIterations,
		NativeTools:   cfg.Agent.NativeTools,
		Pricing:       cfg.Pricing,
		Sink:          sinks,
		Bus:           a.bus,
		OutputDir:     cfg.OutputDir,
	})
	return a, nil
}

// tracingStatus describes where spans are sent, for the run summary.
func (a *app) tracingStatus() string {
	if a.httpSink == nil {
		return "local only"
	}
	return "sent to " + a.cfg.Tracing.Endpoint
}

// Close flushes the trace sink and closes the stores.
func (a *app) Close(ctx context.Context) {
	if a.httpSink != nil {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.httpSink.Close(ctx); err != nil {
			a.logger.Warn("trace flush failed", "error", err)
		}
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			a.logger.Debug("run log close failed", "error", err)
		}
	}
	if err := a.usage.Close(); err != nil {
		a.logger.Debug("usage store close failed", "error", err)
	}
}

// createLLMClient builds a multi-provider client. Listed models route to
// their provider; anything else goes to Gemini when it has a key, else
// to Ollama.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)

	var fallback llm.Client = ollamaClient
	var gemini *llm.GeminiClient
	if cfg.Gemini.Configured() {
		gemini = llm.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, logger)
		fallback = gemini
	}

	multi := llm.NewMultiClient(fallback)
	multi.AddProvider("ollama", ollamaClient)
	if gemini != nil {
		multi.AddProvider("gemini", gemini)
		logger.Info("Gemini provider configured")
	}
	if cfg.Anthropic.Configured() {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, "", logger))
		logger.Info("Anthropic provider configured")
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}
	logger.Info("LLM client initialized",
		"default_model", cfg.Models.Default,
		"default_provider", cfg.ProviderFor(cfg.Models.Default),
		"image_model", cfg.Models.Image,
	)
	return multi
}
