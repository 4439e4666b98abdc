package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/bakegridgo/internal/app"
)

// Subcommands.
const (
	CommandRun     = "run"
	CommandCleanup = "cleanup"
	CommandStatus  = "status"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command is a parsed invocation.
type Command struct {
	Name   string
	Config *app.Config
}

const usage = `
bakegrid - A crash-safe texture bake pipeline.

Usage:
  bakegrid run [options] JOB_PATH
  bakegrid cleanup [options]
  bakegrid status [options]

Commands:
  run       Bake every job found at JOB_PATH (.hcl file or directory).
  cleanup   Remove every leftover artifact of an interrupted run.
  status    Report on the last journal session.

Options:
`

// Parse processes command-line arguments. It returns the command to run, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	slog.Debug("CLI parser started.")
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(output, usage)
		return nil, true, nil
	}
	name, args := args[0], args[1:]
	switch name {
	case CommandRun, CommandCleanup, CommandStatus:
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", name)}
	}

	flagSet := flag.NewFlagSet("bakegrid "+name, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usage)
		flagSet.PrintDefaults()
	}

	sceneFlag := flagSet.String("scene", "", "Path to the scene file.")
	configFlag := flagSet.String("config", "", "Path to the engine settings file (yaml).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	outputFlag := flagSet.String("output", "", "Output root. Overrides the root of every job.")
	jobsFlag := flagSet.String("job", "", "Comma separated job names to run. Default is every job.")
	jobPathFlag := flagSet.String("jobs", "", "Job file or directory used to find output roots (cleanup).")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.", "command", name)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := app.Config{
		JobPath:         *jobPathFlag,
		ScenePath:       *sceneFlag,
		OutputRoot:      *outputFlag,
		ConfigPath:      *configFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
	}
	if *jobsFlag != "" {
		for _, j := range strings.Split(*jobsFlag, ",") {
			if j = strings.TrimSpace(j); j != "" {
				cfg.Jobs = append(cfg.Jobs, j)
			}
		}
	}

	if name != CommandRun {
		return &Command{Name: name, Config: &cfg}, false, nil
	}

	if flagSet.NArg() > 0 {
		cfg.JobPath = flagSet.Arg(0)
	}
	if cfg.JobPath == "" {
		slog.Debug("No job path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return &Command{Name: name, Config: config}, false, nil
}
