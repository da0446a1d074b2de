package engine

import (
	"context"
	"fmt"
	"path"

	"github.com/artpar/cerberus/internal/core/topology"
)

// Command names registered by RegisterCommands.
const (
	CommandGenerate = "generate"
	CommandValidate = "validate"
	CommandClean    = "clean"
)

// RegisterCommands registers all command handlers on the bus.
func RegisterCommands(bus *Bus) {
	bus.Register(CommandGenerate, generate)
	bus.Register(CommandValidate, validate)
	bus.Register(CommandClean, clean)
}

// =============================================================================
// Handlers
// =============================================================================

// generate writes every artifact and lists them.
func generate(ctx context.Context, deps *Deps, opts Options) error {
	result, err := deps.Engine.Generate(ctx, opts.Force)
	if err != nil {
		return err
	}

	out := deps.Out
	fmt.Fprintf(out, "Generated %d artifacts for project %s in %s\n",
		len(result.Paths), result.Project, deps.Engine.OutputDir())
	for _, p := range result.Paths {
		fmt.Fprintf(out, "  %s\n", path.Join(deps.Engine.OutputDir(), p))
	}
	printNotes(deps, result.Notes)
	return nil
}

// validate checks the project document and compares any generated
// descriptor with it. Drift fails the command with ErrStaleOutput.
func validate(ctx context.Context, deps *Deps, _ Options) error {
	report, err := deps.Engine.Validate(ctx)
	if err != nil {
		return err
	}

	out := deps.Out
	fmt.Fprintf(out, "Configuration %s is valid: project %s, %d nodes\n",
		deps.Engine.ProjectFile(), report.Project, len(report.Nodes))
	printNotes(deps, report.Notes)

	descriptor := path.Join(deps.Engine.OutputDir(), topology.ComposePath)
	switch {
	case !report.DescriptorFound:
		fmt.Fprintf(out, "No generated output in %s\n", deps.Engine.OutputDir())
	case report.UpToDate():
		fmt.Fprintf(out, "%s matches the configuration\n", descriptor)
	default:
		fmt.Fprintf(out, "%s is out of date:\n", descriptor)
		for _, d := range report.Drift {
			fmt.Fprintf(out, "  - %s\n", d)
		}
		return fmt.Errorf("%w: %d differences", ErrStaleOutput, len(report.Drift))
	}
	return nil
}

// clean removes the output root.
func clean(ctx context.Context, deps *Deps, _ Options) error {
	if err := deps.Engine.Clean(ctx); err != nil {
		return err
	}
	fmt.Fprintf(deps.Out, "Removed %s\n", deps.Engine.OutputDir())
	return nil
}

func printNotes(deps *Deps, notes []string) {
	for _, note := range notes {
		fmt.Fprintf(deps.Out, "note: %s\n", note)
	}
}
