package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/designer-agent/internal/agent"
	"github.com/nugget/designer-agent/internal/api"
	"github.com/nugget/designer-agent/internal/buildinfo"
	"github.com/nugget/designer-agent/internal/design"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/tools"
	"github.com/nugget/designer-agent/internal/usage"
)

// runArgs are the arguments of the run subcommand.
type runArgs struct {
	refPath       string
	maxIterations int
	prompt        string
}

func parseRunArgs(args []string) (runArgs, error) {
	var ra runArgs
	var words []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-ref" && i+1 < len(args):
			ra.refPath = args[i+1]
			i++
		case args[i] == "-max" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return ra, fmt.Errorf("invalid -max value %q", args[i+1])
			}
			ra.maxIterations = n
			i++
		default:
			words = append(words, args[i])
		}
	}
	ra.prompt = strings.TrimSpace(strings.Join(words, " "))
	if ra.prompt == "" {
		return ra, fmt.Errorf("usage: designer run [-ref image] [-max N] <prompt>")
	}
	return ra, nil
}

func loadReferenceImage(path string) (*slide.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("reference image %s: unsupported type %s", path, mime)
	}
	return &slide.Image{MIMEType: mime, Data: data}, nil
}

// runAgent handles "designer run". Logs go to stderr so that stdout
// carries only the result.
func runAgent(ctx context.Context, stdout, stderr io.Writer, opts globalOptions, args []string) error {
	ra, err := parseRunArgs(args)
	if err != nil {
		return err
	}
	ref, err := loadReferenceImage(ra.refPath)
	if err != nil {
		return err
	}

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)
	logger.Info("config loaded", "path", cfgPath)

	var prompter tools.Prompter = design.NewStdinPrompter(nil, stdout)
	if cfg.Agent.AutoFeedback || opts.outputFmt == "json" {
		prompter = design.AutoPrompter{}
	}
	a, err := newApp(cfg, logger, prompter)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var progress agent.StreamCallback
	if opts.outputFmt == "text" {
		progress = func(ev agent.StreamEvent) { printProgress(stdout, ev) }
	}
	res := a.loop.Run(ctx, &agent.Request{
		Prompt:         ra.prompt,
		ReferenceImage: ref,
		MaxIterations:  ra.maxIterations,
	}, progress)

	if err := a.runs.Record(context.WithoutCancel(ctx), ra.prompt, res); err != nil {
		logger.Warn("run not recorded", "session_id", res.SessionID, "error", err)
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printSummary(stdout, res, a.tracingStatus())
	}
	if !res.Success {
		return fmt.Errorf("run %s failed: %s", res.SessionID, res.Error)
	}
	return nil
}

func printProgress(w io.Writer, ev agent.StreamEvent) {
	switch ev.Kind {
	case agent.KindSessionStart:
		fmt.Fprintf(w, "Session %s\n", ev.SessionID)
	case agent.KindThought:
		fmt.Fprintf(w, "\n💭 %s\n", ev.Content)
	case agent.KindToolStart:
		fmt.Fprintf(w, "🔧 %s\n", ev.Tool)
	case agent.KindToolEnd:
		mark := "✓"
		if ev.Status == "error" {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, firstLine(ev.Result))
	case agent.KindMessage:
		fmt.Fprintf(w, "\n%s\n", ev.Content)
	case agent.KindError:
		fmt.Fprintf(w, "\nerror: %s\n", ev.Content)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, res *agent.Result, tracing string) {
	names := make([]string, len(res.ToolInvocations))
	for i, inv := range res.ToolInvocations {
		names[i] = inv.Action
	}
	t := res.Trace

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run summary")
	fmt.Fprintf(w, "  %-12s %s\n", "session:", res.SessionID)
	fmt.Fprintf(w, "  %-12s %t\n", "success:", res.Success)
	if res.Error != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "error:", res.Error)
	}
	fmt.Fprintf(w, "  %-12s %d\n", "iterations:", res.Iterations)
	fmt.Fprintf(w, "  %-12s %s\n", "tools:", strings.Join(names, ", "))
	fmt.Fprintf(w, "  %-12s %s (in %s, out %s)\n", "tokens:",
		usage.FormatTokenCount(int64(t.TotalTokens)),
		usage.FormatTokenCount(int64(t.TotalInputTokens)),
		usage.FormatTokenCount(int64(t.TotalOutputTokens)))
	fmt.Fprintf(w, "  %-12s $%.6f\n", "cost:", t.TotalCostUSD)
	fmt.Fprintf(w, "  %-12s %d\n", "events:", t.EventsCount)
	if res.Rendered != nil {
		fmt.Fprintf(w, "  %-12s %s\n", "output:", res.Rendered.Path)
	}
	fmt.Fprintf(w, "  %-12s %s\n", "tracing:", tracing)
	fmt.Fprintf(w, "  %-12s %s\n", "elapsed:", res.Duration.Round(time.Millisecond))
}

// runServe handles "designer serve". It blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, opts globalOptions) error {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, cfg)
	logger.Info("starting Designer", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "config", cfgPath)

	// The API never blocks on a terminal.
	a, err := newApp(cfg, logger, design.AutoPrompter{})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	server := api.NewServer(api.Config{
		Address: cfg.Listen.Address,
		Port:    cfg.Listen.Port,
		Runner:  a.loop,
		Runs:    a.runs,
		Usage:   a.usage,
		Bus:     a.bus,
		Logger:  logger,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	logger.Info("Designer stopped")
	return nil
}

// runUsage handles "designer usage [period]".
func runUsage(ctx context.Context, stdout, _ io.Writer, opts globalOptions, period string) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if period == "" {
		period = "today"
	}
	start, end, err := usage.ParsePeriod(period, time.Now())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	defer store.Close()

	total, err := store.Summary(ctx, start, end)
	if err != nil {
		return err
	}
	byModel, err := store.SummaryByModel(ctx, start, end)
	if err != nil {
		return err
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"period": period, "total": total, "by_model": byModel})
	}

	fmt.Fprintf(stdout, "Usage (%s)\n", period)
	fmt.Fprintf(stdout, "  %-28s %8s %10s %10s %12s\n", "model", "calls", "input", "output", "cost")
	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		s := byModel[m]
		fmt.Fprintf(stdout, "  %-28s %8d %10s %10s %12s\n", m, s.TotalRecords,
			usage.FormatTokenCount(s.TotalInputTokens), usage.FormatTokenCount(s.TotalOutputTokens),
			fmt.Sprintf("$%.6f", s.TotalCostUSD))
	}
	fmt.Fprintf(stdout, "  %-28s %8d %10s %10s %12s\n", "total", total.TotalRecords,
		usage.FormatTokenCount(total.TotalInputTokens), usage.FormatTokenCount(total.TotalOutputTokens),
		fmt.Sprintf("$%.6f", total.TotalCostUSD))
	return nil
}
