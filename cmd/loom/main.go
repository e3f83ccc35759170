package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomworks/loom/internal/api"
	"github.com/loomworks/loom/internal/completion"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/logging"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
	"github.com/loomworks/loom/pkg/mcp"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "simulate":
		err = cmdSimulate(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "version", "-v", "--version":
		printVersion()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: loom <command> [flags]

commands:
  serve       start the HTTP API (and optionally the MCP stdio transport)
  run         execute a workflow document against the live backend
  simulate    execute a workflow document with deterministic stubbed effects
  validate    validate a workflow document
  version     print the version`)
}

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
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(base))
}

// liveRunner wires the live execution backend, or returns nil when no
// completion endpoint is configured.
func liveRunner(cfg Config, validator *validation.DocumentValidator, st store.Store, logger *slog.Logger) *engine.Runner {
	if cfg.Completion.BaseURL == "" {
		return nil
	}
	client := completion.NewClient(completion.Config{
		BaseURL:      cfg.Completion.BaseURL,
		APIKey:       cfg.Completion.APIKey,
		Model:        cfg.Completion.Model,
		EndpointPath: cfg.Completion.EndpointPath,
		Timeout:      time.Duration(cfg.Completion.TimeoutSeconds) * time.Second,
		Temperature:  cfg.Completion.Temperature,
	}, logger)
	effects := engine.NewLiveEffects(client, st)
	return engine.NewRunner(validator, effects, st, logger)
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Parse(args)

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	validator, err := validation.NewDocumentValidator()
	if err != nil {
		return err
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	simRunner := engine.NewRunner(validator, engine.NewSimEffects(), nil, logger)
	runner := liveRunner(cfg, validator, st, logger)

	srv := api.NewServer(st, validator, simRunner, runner, logger)

	if cfg.MCPStdio {
		mcpSrv := mcp.NewLoomServer(mcp.LoomServerDeps{
			Store:     st,
			Validator: validator,
			SimRunner: simRunner,
			Runner:    runner,
			Logger:    logger,
		})
		go func() {
			if err := mcpSrv.Serve(ctx); err != nil {
				logger.Error("mcp stdio transport stopped", "error", err)
			}
		}()
	}

	logger.Info("loom serving", "addr", cfg.ListenAddr, "live", runner != nil)
	return srv.Start(ctx, cfg.ListenAddr)
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	file := fs.String("f", "", "path to the workflow document")
	fs.Parse(args)

	raw, err := readDocument(*file)
	if err != nil {
		return err
	}

	validator, err := validation.NewDocumentValidator()
	if err != nil {
		return err
	}

	_, result := validator.ParseAndValidate(raw)
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w.String())
	}
	if !result.Valid() {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, "error:", e.String())
		}
		return fmt.Errorf("document is invalid (%d errors)", len(result.Errors))
	}

	fmt.Println("document is valid")
	return nil
}

func cmdSimulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	file := fs.String("f", "", "path to the workflow document")
	inputJSON := fs.String("input", "", "JSON input payload overriding the trigger sample")
	fs.Parse(args)

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	validator, err := validation.NewDocumentValidator()
	if err != nil {
		return err
	}

	runner := engine.NewRunner(validator, engine.NewSimEffects(), nil, logger)
	return executeDocument(runner, validator, *file, *inputJSON)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("f", "", "path to the workflow document")
	inputJSON := fs.String("input", "", "JSON input payload overriding the trigger sample")
	fs.Parse(args)

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	validator, err := validation.NewDocumentValidator()
	if err != nil {
		return err
	}

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		return err
	}

	runner := liveRunner(cfg, validator, st, logger)
	if runner == nil {
		return fmt.Errorf("live execution requires completion.base_url in %s", configPath())
	}
	return executeDocument(runner, validator, *file, *inputJSON)
}

func executeDocument(runner *engine.Runner, validator *validation.DocumentValidator, file, inputJSON string) error {
	raw, err := readDocument(file)
	if err != nil {
		return err
	}

	doc, result := validator.ParseAndValidate(raw)
	if doc == nil {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, "error:", e.String())
		}
		return fmt.Errorf("document is invalid (%d errors)", len(result.Errors))
	}

	var input any
	if inputJSON != "" {
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			return fmt.Errorf("invalid --input JSON: %w", err)
		}
	}

	res, err := runner.Run(context.Background(), doc, input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if res.Status == engine.RunFailed {
		return fmt.Errorf("run %s failed: %s", res.RunID, res.Error.Message)
	}
	return nil
}

func readDocument(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("-f <document.json> is required")
	}
	return os.ReadFile(path)
}
