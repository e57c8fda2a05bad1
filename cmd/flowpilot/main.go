package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lberrio/flowpilot/internal/actions"
	"github.com/lberrio/flowpilot/internal/engine"
	"github.com/lberrio/flowpilot/internal/logging"
	"github.com/lberrio/flowpilot/internal/resource"
	"github.com/lberrio/flowpilot/internal/scheduler"
	"github.com/lberrio/flowpilot/internal/store"
	"github.com/lberrio/flowpilot/internal/streaming"
	"github.com/lberrio/flowpilot/internal/validation"
	"github.com/lberrio/flowpilot/pkg/mcp"
	"github.com/lberrio/flowpilot/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(cfg, logger)
	case "run":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		resourceKey := ""
		if len(os.Args) > 3 {
			resourceKey = os.Args[3]
		}
		err = runOnce(cfg, logger, os.Args[2], resourceKey)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  flowpilot serve                          start the MCP stdio server
  flowpilot run <workflow.json> [resource] run one workflow and print its result`)
}

// newLogger builds the process logger. Output goes to stderr so the MCP
// stdio transport keeps stdout to itself.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildRuntime wires every component behind the engine.
func buildRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*engine.Runtime, store.Archive, error) {
	registry := actions.NewRegistry()
	celAssert, err := actions.NewCELAssertHandler()
	if err != nil {
		return nil, nil, fmt.Errorf("build cel handler: %w", err)
	}
	for _, h := range []actions.Handler{
		actions.NewHTTPRequestHandler(),
		actions.NewJQHandler(),
		actions.NewExprEvalHandler(),
		celAssert,
	} {
		if err := registry.Register(h); err != nil {
			return nil, nil, fmt.Errorf("register handler %s: %w", h.Type(), err)
		}
	}

	pipeline, err := validation.NewPipeline()
	if err != nil {
		return nil, nil, fmt.Errorf("build validation pipeline: %w", err)
	}

	var archive store.Archive
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		archive, err = store.NewLibSQLArchive(ctx, "file:"+cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
	} else {
		archive = store.NewMemoryArchive()
	}

	resources := resource.NewRegistry(resource.FactoryFunc(
		func(_ context.Context, key string) (resource.Handle, error) {
			baseURL := cfg.ResourceURL
			if baseURL == "" {
				return nil, fmt.Errorf("no resource_url configured for key %q", key)
			}
			return resource.NewHTTPSession(key, resource.HTTPSessionConfig{BaseURL: baseURL})
		}))

	runtime := engine.NewRuntime(engine.Config{
		Logger:    logger,
		Sink:      logging.SlogSink(logger),
		Hub:       streaming.NewMemoryHub(),
		Resources: resources,
		Actions:   registry,
		Validator: pipeline,
		Archiver:  archive,
	})
	return runtime, archive, nil
}

// runServe starts the MCP stdio server and the optional cron scheduler.
func runServe(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, archive, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer archive.Close()

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(archive, runtime, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	srv := mcp.NewFlowServer(mcp.FlowServerDeps{
		Runtime: runtime,
		Archive: archive,
		Logger:  logger,
	})

	logger.Info("flowpilot serving on stdio")
	serveErr := srv.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
	return serveErr
}

// runOnce starts a single workflow from a file, waits for it to finish and
// prints the result as JSON.
func runOnce(cfg Config, logger *slog.Logger, path, resourceKey string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var wf schema.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("parse workflow document: %w", err)
	}

	runtime, archive, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer archive.Close()

	if _, err := runtime.Start(ctx, &wf, resourceKey); err != nil {
		return err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	done := ctx.Done()
	for {
		select {
		case <-done:
			// First interrupt requests a cooperative stop; the run halts at
			// its next step boundary.
			_ = runtime.Stop(wf.ID)
			done = nil
		case <-ticker.C:
		}

		result, err := runtime.Status(wf.ID)
		if err != nil {
			return err
		}
		if result.State.Terminal() {
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if !result.Success {
				os.Exit(1)
			}
			return nil
		}
	}
}
