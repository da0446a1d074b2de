// Package engine runs the generation pipeline: it loads the project
// document, resolves its topology, renders every artifact in memory and
// writes them below the output root.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/artpar/cerberus/internal/core/artifact"
	"github.com/artpar/cerberus/internal/core/compose"
	"github.com/artpar/cerberus/internal/core/project"
	"github.com/artpar/cerberus/internal/core/templates"
	"github.com/artpar/cerberus/internal/core/topology"
	"github.com/artpar/cerberus/internal/shell/storage"
)

var (
	// ErrOutputExists is returned by Generate when a descriptor is already
	// present and overwriting was not requested.
	ErrOutputExists = errors.New("output already exists")

	// ErrStaleOutput is returned when the generated output no longer
	// matches the project document.
	ErrStaleOutput = errors.New("generated output is out of date")
)

// Config configures the engine.
type Config struct {
	// FS is the filesystem the project file is read from and artifacts are
	// written to. Default: the OS filesystem.
	FS afero.Fs

	// ProjectFile is the path of the TOML project document.
	// Default: "config.toml".
	ProjectFile string

	Output storage.WriterConfig

	// Renderer executes proxy config and Dockerfile templates.
	// Default: the embedded template registry.
	Renderer artifact.TemplateRenderer

	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ProjectFile: "config.toml",
		Output:      storage.DefaultWriterConfig(),
	}
}

// Engine runs generate, validate and clean against one project file and
// one output root.
type Engine struct {
	fs          afero.Fs
	projectFile string
	renderer    artifact.TemplateRenderer
	writer      *storage.Writer
	logger      *slog.Logger
}

// New creates an engine. It fails only when the embedded templates do not
// compile.
func New(cfg Config) (*Engine, error) {
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.ProjectFile == "" {
		cfg.ProjectFile = DefaultConfig().ProjectFile
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Renderer == nil {
		registry, err := templates.New()
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		cfg.Renderer = registry
	}

	logger := cfg.Logger.With("component", "engine")
	return &Engine{
		fs:          cfg.FS,
		projectFile: cfg.ProjectFile,
		renderer:    cfg.Renderer,
		writer:      storage.NewWriter(cfg.FS, cfg.Output, cfg.Logger),
		logger:      logger,
	}, nil
}

// OutputDir returns the output root.
func (e *Engine) OutputDir() string {
	return e.writer.Root()
}

// ProjectFile returns the path of the project document.
func (e *Engine) ProjectFile() string {
	return e.projectFile
}

// =============================================================================
// Results
// =============================================================================

// Result describes one completed generation.
type Result struct {
	RunID   string
	Project string
	Nodes   []string
	Notes   []string
	// Paths lists the written artifacts relative to the output root.
	Paths []string
}

// Report describes one validation.
type Report struct {
	RunID   string
	Project string
	Nodes   []string
	Notes   []string

	// DescriptorFound is false when nothing has been generated yet.
	DescriptorFound bool
	Drift           []compose.Drift
}

// UpToDate reports whether the generated descriptor, if any, matches the
// topology.
func (r *Report) UpToDate() bool {
	return len(r.Drift) == 0
}

// =============================================================================
// Operations
// =============================================================================

// Generate renders every artifact of the project and writes them. Nothing
// is written when loading, resolution or rendering fails. An existing
// docker-compose.yaml is only replaced when force is set.
func (e *Engine) Generate(ctx context.Context, force bool) (*Result, error) {
	runID, logger := e.newRun("generate")

	topo, err := e.resolve(logger)
	if err != nil {
		return nil, err
	}

	artifacts, err := artifact.Build(topo, e.renderer)
	if err != nil {
		logger.Error("render failed", "error", err)
		return nil, err
	}
	logger.Debug("artifacts rendered", "count", len(artifacts))

	if !force {
		exists, err := e.writer.Exists(topology.ComposePath)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, storage.NewStorageError("generate", topology.ComposePath, ErrOutputExists)
		}
	}

	if err := e.writer.WriteAll(ctx, artifacts); err != nil {
		logger.Error("write failed", "error", err)
		return nil, err
	}

	result := &Result{
		RunID:   runID,
		Project: topo.Project,
		Nodes:   nodeNames(topo),
		Notes:   topo.Notes,
		Paths:   artifact.Paths(artifacts),
	}
	logger.Info("generation complete",
		"project", topo.Project,
		"nodes", len(result.Nodes),
		"artifacts", len(result.Paths),
		"output", e.writer.Root(),
	)
	return result, nil
}

// Validate loads and resolves the project. When a descriptor has been
// generated it is parsed and compared with the topology; differences are
// returned in the report, not as an error. A descriptor that cannot be
// parsed is an ErrStaleOutput error.
func (e *Engine) Validate(ctx context.Context) (*Report, error) {
	runID, logger := e.newRun("validate")

	topo, err := e.resolve(logger)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:   runID,
		Project: topo.Project,
		Nodes:   nodeNames(topo),
		Notes:   topo.Notes,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exists, err := e.writer.Exists(topology.ComposePath)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.Info("configuration valid, nothing generated yet", "project", topo.Project)
		return report, nil
	}
	report.DescriptorFound = true

	content, err := e.writer.Read(topology.ComposePath)
	if err != nil {
		return nil, err
	}
	desc, err := compose.ParseDescriptor(content)
	if err != nil {
		logger.Error("descriptor unreadable", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrStaleOutput, topology.ComposePath, err)
	}

	report.Drift = compose.Compare(topo, desc)
	for _, d := range report.Drift {
		logger.Warn("descriptor drift", "kind", string(d.Kind), "subject", d.Subject, "want", d.Want, "got", d.Got)
	}
	logger.Info("validation complete", "project", topo.Project, "drift", len(report.Drift))
	return report, nil
}

// Clean removes the output root.
func (e *Engine) Clean(ctx context.Context) error {
	_, logger := e.newRun("clean")

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.writer.Clean(); err != nil {
		return err
	}

	logger.Info("output removed", "output", e.writer.Root())
	return nil
}

// =============================================================================
// Pipeline
// =============================================================================

func (e *Engine) newRun(op string) (string, *slog.Logger) {
	runID := uuid.NewString()
	return runID, e.logger.With("run_id", runID, "op", op)
}

// load reads and parses the project document.
func (e *Engine) load() (*project.Spec, error) {
	data, err := afero.ReadFile(e.fs, e.projectFile)
	if err != nil {
		return nil, project.NewConfigError("", fmt.Sprintf("read %s: %v", e.projectFile, err), err)
	}
	return project.Parse(data)
}

// resolve loads the project and resolves its topology, logging every
// resolution note.
func (e *Engine) resolve(logger *slog.Logger) (*topology.Topology, error) {
	spec, err := e.load()
	if err != nil {
		logger.Error("invalid configuration", "file", e.projectFile, "error", err)
		return nil, err
	}

	topo, err := topology.Resolve(spec)
	if err != nil {
		logger.Error("topology resolution failed", "error", err)
		return nil, err
	}

	for _, note := range topo.Notes {
		logger.Warn(note)
	}
	logger.Debug("topology resolved", "project", topo.Project, "nodes", len(topo.Nodes))
	return topo, nil
}

func nodeNames(topo *topology.Topology) []string {
	names := make([]string, len(topo.Nodes))
	for i, n := range topo.Nodes {
		names[i] = n.Name
	}
	return names
}
