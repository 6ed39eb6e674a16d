// Command triagecore is a thin CLI harness around the triage core: it
// reads one case as JSON from a file (or stdin), runs it through the
// pipeline, and prints the resulting decision as JSON. An HTTP front
// end is out of scope here — see SPEC_FULL.md's External Interfaces
// section.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/triagecore"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	caseFile := flag.String("case", "", "path to a JSON case file (defaults to stdin)")
	flag.Parse()

	level := parseLogLevel(os.Getenv("TRIAGE_LOG_LEVEL"))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *caseFile); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, caseFile string) error {
	_ = godotenv.Load()

	app, err := triagecore.New(
		triagecore.WithLogger(logger),
		triagecore.WithVersion(version),
	)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- app.Run(runCtx) }()

	c, err := readCase(caseFile)
	if err != nil {
		runCancel()
		<-runDone
		return fmt.Errorf("read case: %w", err)
	}

	submitCtx, submitCancel := contextWithOptionalTimeout(ctx, 60*time.Second)
	decision, outcomes, err := app.Submit(submitCtx, c)
	submitCancel()
	if err != nil {
		runCancel()
		<-runDone
		return fmt.Errorf("submit: %w", err)
	}

	out := struct {
		Decision triagecore.FinalDecision  `json:"decision"`
		Agents   []triagecore.AgentOutcome `json:"agents"`
	}{decision, outcomes}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		runCancel()
		<-runDone
		return fmt.Errorf("encode decision: %w", err)
	}

	runCancel()
	return <-runDone
}

func readCase(path string) (triagecore.Case, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return triagecore.Case{}, err
		}
		defer f.Close()
		r = f
	}

	var c triagecore.Case
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return triagecore.Case{}, fmt.Errorf("decode case JSON: %w", err)
	}
	return c, nil
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
