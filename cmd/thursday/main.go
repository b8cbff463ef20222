// Thursday is a local-first conversational agent.
//
// It turns free-text input into a validated, schema-constrained action
// plan against a local generative backend, executes a closed set of
// tools, and answers with the results. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	thursday serve             Start the HTTP chat server
//	thursday ask <question>    Ask a single question (for testing)
//	thursday version           Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thursdaylabs/thursday/internal/agent"
	"github.com/thursdaylabs/thursday/internal/api"
	"github.com/thursdaylabs/thursday/internal/buildinfo"
	"github.com/thursdaylabs/thursday/internal/config"
	"github.com/thursdaylabs/thursday/internal/llm"
	"github.com/thursdaylabs/thursday/internal/memory"
	"github.com/thursdaylabs/thursday/internal/speech"
	"github.com/thursdaylabs/thursday/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the lifecycle can
// be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the thursday command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which interfere with parallel tests, and the argument surface here is
// small enough that manual parsing is clearer.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return errors.New("usage: thursday ask <question>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `Usage: thursday [-config path] <command>

Commands:
  serve             Start the HTTP chat server
  ask <question>    Ask a single question and print the reply
  version           Print version and build information`)
	return nil
}

// wiring holds the constructed application graph for one process.
type wiring struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *memory.Store
	loop   *agent.Loop
	synth  *speech.Synthesizer
}

// buildWiring loads config and constructs every component explicitly:
// one backend client, one store, one registry, one orchestrator per
// process, all passed by reference. No hidden singletons.
func buildWiring(configPath string, stdout io.Writer) (*wiring, error) {
	path, err := config.FindConfig(configPath)
	var cfg *config.Config
	if err != nil {
		// No config file is fine for local use; defaults talk to a
		// localhost backend.
		cfg = config.Default()
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := cfg.Memory.Path
	if dbPath == "" {
		dbPath = cfg.DataDir + "/thursday.db"
	}

	store, err := memory.Open(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	backend := llm.NewOllamaClient(
		cfg.Backend.URL,
		time.Duration(cfg.Backend.TimeoutSec)*time.Second,
		logger,
	)

	weather := tools.NewWeatherClient(
		cfg.Weather.GeocodeURL,
		cfg.Weather.ForecastURL,
		time.Duration(cfg.Weather.TimeoutSec)*time.Second,
	)

	registry := tools.NewRegistry(logger, weather, nil)
	validator := agent.NewValidator(backend, cfg.Backend.Model, logger)
	loop := agent.NewLoop(logger, store, validator, registry, cfg.Memory.HistoryLimit)
	loop.SetExtractor(memory.NewExtractor(store, backend, cfg.Backend.Model, logger))

	var synth *speech.Synthesizer
	if cfg.Speech.Enabled {
		synth = speech.New(cfg.Speech, logger)
	}

	// A failed ping is not fatal: the backend may still be starting.
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		logger.Warn("generative backend unreachable", "url", cfg.Backend.URL, "error", err)
	}

	return &wiring{cfg: cfg, logger: logger, store: store, loop: loop, synth: synth}, nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	w, err := buildWiring(configPath, stdout)
	if err != nil {
		return err
	}
	defer w.store.Close()

	w.logger.Info("starting", "build", buildinfo.String())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(w.cfg.Listen.Address, w.cfg.Listen.Port, w.loop, w.store, w.synth, w.logger)
	return server.Start(ctx)
}

func runAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	w, err := buildWiring(configPath, io.Discard)
	if err != nil {
		return err
	}
	defer w.store.Close()

	plan, err := w.loop.RunTurn(ctx, question)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, plan.Reply)
	return nil
}
