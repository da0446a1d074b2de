package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for a command with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// Options carries per-invocation flags to a handler.
type Options struct {
	// Force lets generate replace existing output.
	Force bool
}

// Handler processes a command dispatched by the bus.
type Handler func(ctx context.Context, deps *Deps, opts Options) error

// Deps holds dependencies available to all command handlers.
type Deps struct {
	Engine *Engine
	// Out receives the human-readable summary of a command.
	Out    io.Writer
	Logger *slog.Logger
}

// Bus dispatches named commands to registered handlers.
type Bus struct {
	handlers map[string]Handler
	deps     *Deps
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewBus creates a command bus with no handlers. Use RegisterCommands for
// the generate, validate and clean commands.
func NewBus(engine *Engine, out io.Writer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Bus{
		handlers: make(map[string]Handler),
		deps: &Deps{
			Engine: engine,
			Out:    out,
			Logger: logger,
		},
		logger: logger,
	}
}

// Register registers a handler for a command name.
func (b *Bus) Register(command string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[command] = handler
}

// Commands returns the registered command names in sorted order.
func (b *Bus) Commands() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch dispatches a command to its registered handler. The handler's
// error is returned wrapped, so errors.Is still matches its sentinels.
func (b *Bus) Dispatch(ctx context.Context, command string, opts Options) error {
	b.mu.RLock()
	handler, ok := b.handlers[command]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	b.logger.Debug("dispatching command", "command", command)
	if err := handler(ctx, b.deps, opts); err != nil {
		b.logger.Debug("command failed", "command", command, "error", err)
		return fmt.Errorf("command %s: %w", command, err)
	}

	return nil
}
