// Command oxidize translates a C or C++ project into a Rust crate, driving a
// language model unit by unit and repairing the merged result until it
// builds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"oxidize/internal/cargo"
	"oxidize/internal/ctxlog"
	"oxidize/internal/engine"
	"oxidize/internal/llm"
	"oxidize/internal/llmClient"
	"oxidize/internal/safeio"
	"oxidize/internal/segment"
	"oxidize/internal/workspace"
)

func main() {
	_ = godotenv.Load()

	var (
		projectDir  = flag.String("project", ".", "C/C++ project to translate")
		outDir      = flag.String("out", "oxidize-out", "output crate directory")
		crateName   = flag.String("name", "", "crate name (default: project directory name)")
		engineName  = flag.String("engine", "edge", "scheduling engine: edge or node")
		model       = flag.String("model", "gemini-2.0-flash", "model to use")
		budget      = flag.Int("budget", 0, "source token budget per request (default: a quarter of the model's capacity)")
		retries     = flag.Int("retries", 3, "retranslations per dependency edge")
		rounds      = flag.Int("rounds", 3, "build-and-fix rounds")
		temperature = flag.Float64("temperature", 0.0, "sampling temperature")
		rps         = flag.Float64("rps", 1, "request rate limit")
		burst       = flag.Int("burst", 2, "request burst size")
		cargoBin    = flag.String("cargo", "cargo", "cargo binary")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx := ctxlog.WithLogger(context.Background(), logger)
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, options{
		projectDir:  *projectDir,
		outDir:      *outDir,
		crateName:   *crateName,
		engineName:  *engineName,
		model:       *model,
		budget:      *budget,
		retries:     *retries,
		rounds:      *rounds,
		temperature: *temperature,
		rps:         *rps,
		burst:       *burst,
		cargoBin:    *cargoBin,
	}); err != nil {
		logger.Error("oxidize failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	projectDir  string
	outDir      string
	crateName   string
	engineName  string
	model       string
	budget      int
	retries     int
	rounds      int
	temperature float64
	rps         float64
	burst       int
	cargoBin    string
}

func run(ctx context.Context, opts options) error {
	log := ctxlog.FromContext(ctx)

	projectFS, err := safeio.NewSafeFS(opts.projectDir)
	if err != nil {
		return fmt.Errorf("open project: %w", err)
	}
	units, err := segment.NewFileGraphSegmenter(projectFS).Segment(ctx)
	if err != nil {
		return fmt.Errorf("segment project: %w", err)
	}
	if len(units) == 0 {
		return fmt.Errorf("no source files under %s", opts.projectDir)
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	base, err := llmclient.NewGeminiClient(ctx, apiKey, opts.model, 0)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	limiter := llm.NewLimiter(opts.rps, opts.burst)
	client := llm.Wrap(base,
		llm.Retry(2*time.Second, time.Minute),
		llm.RateLimitWith(limiter),
		llm.TokenCache(4096),
	)
	defer client.Close()

	budget := opts.budget
	if budget <= 0 {
		budget = client.TokenCapacity() / 4
	}

	name := opts.crateName
	if name == "" {
		abs, err := filepath.Abs(opts.projectDir)
		if err != nil {
			return err
		}
		name = filepath.Base(abs)
	}
	manifest := cargo.NewManifest(cargo.Package{
		Name:    name,
		Version: "0.1.0",
		Edition: "2024",
		Authors: []string{"Your Name <youremail@example.com>"},
	})

	runner := cargo.NewRunner(opts.cargoBin)
	resolver := cargo.NewResolver(nil, runner)
	engineOpts := engine.Options{
		SourceTokenBudget: budget,
		MaxRetry:          opts.retries,
		MaxRepairRounds:   opts.rounds,
		Temperature:       opts.temperature,
		Broker:            llm.NewBroker(limiter),
	}

	var ws workspace.Workspace
	switch opts.engineName {
	case "edge":
		edgeWS := workspace.NewEdge(manifest)
		ws = edgeWS
		log.Info("translating project", "engine", "edge", "units", len(units), "model", client.Name())
		if err := engine.NewEdge(client, edgeWS, runner, resolver, engineOpts).Run(ctx, units); err != nil {
			return err
		}
	case "node":
		nodeWS := workspace.NewNode(manifest)
		ws = nodeWS
		log.Info("translating project", "engine", "node", "units", len(units), "model", client.Name())
		if err := engine.NewNode(client, nodeWS, runner, resolver, engineOpts).Run(ctx, units); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown engine %q", opts.engineName)
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return err
	}
	outFS, err := safeio.NewSafeFS(opts.outDir)
	if err != nil {
		return err
	}
	if err := cargo.WriteProject(outFS, manifest, ws.ProgramText()); err != nil {
		return fmt.Errorf("write crate: %w", err)
	}
	log.Info("crate written", "dir", opts.outDir)
	return nil
}
