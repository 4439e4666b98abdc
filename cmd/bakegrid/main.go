package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/bakegridgo/internal/app"
	"github.com/specialistvlad/bakegridgo/internal/cli"
	"github.com/specialistvlad/bakegridgo/internal/executor"
	"github.com/specialistvlad/bakegridgo/internal/journal"
)

// main is the entrypoint for the bakegrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	cmd, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// A panic anywhere below is reported as an error instead of a stack trace.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application panicked | %v", r)
		}
	}()

	bakegrid, err := app.NewApp(outW, cmd.Config)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}

	switch cmd.Name {
	case cli.CommandCleanup:
		report, err := bakegrid.Cleanup(ctx)
		if report != nil {
			fmt.Fprintf(outW, "cleanup: %s\n", report.Summary())
		}
		return err
	case cli.CommandStatus:
		last, err := bakegrid.Status(ctx)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Fprintln(outW, "no sessions recorded")
			return nil
		}
		if last.Unclean() {
			fmt.Fprintln(outW, last.Banner())
			return nil
		}
		fmt.Fprintf(outW, "last session %s of job %q: %s (committed=%d failed=%d)\n", last.SessionID, last.Job, last.FinalState,
			last.Count(journal.PhaseCommitted), last.Count(journal.PhaseFailed))
		return nil
	default:
		reports, err := bakegrid.Run(ctx)
		failed := 0
		for _, rep := range reports {
			fmt.Fprintf(outW, "job %s: %s (succeeded=%d failed=%d skipped=%d)\n", rep.JobID, rep.State,
				rep.Count(executor.OutcomeSucceeded), rep.Count(executor.OutcomeFailed), rep.Count(executor.OutcomeSkipped))
			failed += rep.Count(executor.OutcomeFailed)
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return &cli.ExitError{Code: 1, Message: fmt.Sprintf("%d step(s) failed", failed)}
		}
		return nil
	}
}
