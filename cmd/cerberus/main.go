// Command cerberus generates a layered reverse-proxy deployment, as a
// docker-compose descriptor plus proxy configs, from a TOML project file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/artpar/cerberus/internal/core/artifact"
	"github.com/artpar/cerberus/internal/core/project"
	"github.com/artpar/cerberus/internal/core/topology"
	"github.com/artpar/cerberus/internal/engine"
	"github.com/artpar/cerberus/internal/shell/storage"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitConfigError   = 1
	ExitTopologyError = 2
	ExitRenderError   = 3
	ExitStorageError  = 4
)

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, project.ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, topology.ErrTopology):
		return ExitTopologyError
	case errors.Is(err, artifact.ErrRender), errors.Is(err, engine.ErrStaleOutput):
		return ExitRenderError
	case errors.Is(err, storage.ErrStorage):
		return ExitStorageError
	default:
		return ExitConfigError
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return ExitConfigError
	}

	command := args[0]
	switch command {
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return ExitSuccess
	case "-version", "--version", "version":
		fmt.Fprintf(stdout, "cerberus %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	case engine.CommandGenerate, engine.CommandValidate, engine.CommandClean:
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		usage(stderr)
		return ExitConfigError
	}

	flags, err := parseFlags(command, args[1:], stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitConfigError
	}

	cfg, err := LoadConfig(flags.settings)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	flags.apply(cfg)

	logger := SetupLogger(cfg, stderr)
	logger.Debug("starting cerberus",
		"version", Version,
		"command", command,
		"project", cfg.Project.File,
		"output", cfg.Output.Dir,
	)

	eng, err := engine.New(engine.Config{
		FS:          afero.NewOsFs(),
		ProjectFile: cfg.Project.File,
		Output: storage.WriterConfig{
			Root:        cfg.Output.Dir,
			MaxParallel: cfg.Output.MaxParallelWrites,
		},
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitRenderError
	}

	bus := engine.NewBus(eng, stdout, logger)
	engine.RegisterCommands(bus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bus.Dispatch(ctx, command, engine.Options{Force: cfg.Output.Force}); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}

	return ExitSuccess
}

// =============================================================================
// Flags
// =============================================================================

// cliFlags are the per-command flags. Non-empty values override settings.
type cliFlags struct {
	settings string
	config   string
	output   string
	force    bool
}

func parseFlags(command string, args []string, stderr io.Writer) (cliFlags, error) {
	var f cliFlags

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "Path to the project file (default config.toml)")
	fs.StringVar(&f.config, "c", "", "Shorthand for --config")
	fs.StringVar(&f.output, "output", "", "Output directory (default built)")
	fs.StringVar(&f.output, "o", "", "Shorthand for --output")
	fs.StringVar(&f.settings, "settings", "", "Path to a tool settings file")
	if command == engine.CommandGenerate {
		fs.BoolVar(&f.force, "force", false, "Overwrite existing output")
	}

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return cliFlags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

func (f cliFlags) apply(cfg *Config) {
	if f.config != "" {
		cfg.Project.File = f.config
	}
	if f.output != "" {
		cfg.Output.Dir = f.output
	}
	if f.force {
		cfg.Output.Force = true
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: cerberus <command> [flags]

Commands:
  generate   Render the compose descriptor, proxy configs and Dockerfiles
  validate   Check the project file and compare it with generated output
  clean      Remove the output directory

Flags:
  -c, --config <file>    Project file (default config.toml)
  -o, --output <dir>     Output directory (default built)
      --settings <file>  Tool settings file
      --force            Overwrite existing output (generate only)

Environment variables prefixed with CERBERUS_ override settings,
e.g. CERBERUS_LOG_LEVEL=debug or CERBERUS_OUTPUT_DIR=out.
`)
}
