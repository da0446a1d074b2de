package storage

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/cerberus/internal/core/artifact"
)

// File modes for everything the writer creates.
const (
	FileMode os.FileMode = 0o644
	DirMode  os.FileMode = 0o755
)

// WriterConfig configures the artifact writer.
type WriterConfig struct {
	// Root is the output directory every artifact path is relative to.
	// Default: "built".
	Root string

	// MaxParallel is the maximum number of artifacts written concurrently.
	// Default: 4.
	MaxParallel int
}

// DefaultWriterConfig returns the default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Root:        "built",
		MaxParallel: 4,
	}
}

// Writer writes artifacts below a single root on an afero filesystem.
type Writer struct {
	fs     afero.Fs
	config WriterConfig
	logger *slog.Logger
}

// NewWriter creates a new artifact writer.
func NewWriter(fs afero.Fs, config WriterConfig, logger *slog.Logger) *Writer {
	defaults := DefaultWriterConfig()
	if config.Root == "" {
		config.Root = defaults.Root
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = defaults.MaxParallel
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		fs:     fs,
		config: config,
		logger: logger.With("component", "storage", "root", config.Root),
	}
}

// Root returns the output directory.
func (w *Writer) Root() string {
	return w.config.Root
}

// =============================================================================
// Writing
// =============================================================================

// WriteAll writes every artifact, at most MaxParallel at a time. Each
// artifact goes to a temporary file that is renamed into place, so a
// failed write leaves the other artifacts and any previous version of its
// own file intact. The first error cancels the writes not yet started and
// is returned as a *StorageError.
func (w *Writer) WriteAll(ctx context.Context, artifacts []artifact.Artifact) error {
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if _, err := w.resolve(a.Path); err != nil {
			return err
		}
		if seen[a.Path] {
			return NewStorageError("write", a.Path, ErrDuplicatePath)
		}
		seen[a.Path] = true
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxParallel)

	for _, a := range artifacts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return NewStorageError("write", a.Path, err)
			}
			return w.write(a)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.Debug("artifacts written", "count", len(artifacts))
	return nil
}

func (w *Writer) write(a artifact.Artifact) error {
	target, err := w.resolve(a.Path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := w.fs.MkdirAll(dir, DirMode); err != nil {
		return NewStorageError("mkdir", a.Path, err)
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return NewStorageError("create", a.Path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(a.Content); err != nil {
		tmp.Close()
		w.fs.Remove(tmpName)
		return NewStorageError("write", a.Path, err)
	}
	if err := tmp.Close(); err != nil {
		w.fs.Remove(tmpName)
		return NewStorageError("write", a.Path, err)
	}
	if err := w.fs.Chmod(tmpName, FileMode); err != nil {
		w.fs.Remove(tmpName)
		return NewStorageError("chmod", a.Path, err)
	}
	if err := w.fs.Rename(tmpName, target); err != nil {
		w.fs.Remove(tmpName)
		return NewStorageError("rename", a.Path, err)
	}

	w.logger.Debug("artifact written", "path", a.Path, "bytes", len(a.Content))
	return nil
}

// =============================================================================
// Reading and Cleaning
// =============================================================================

// Exists reports whether an artifact path exists below the root.
func (w *Writer) Exists(p string) (bool, error) {
	target, err := w.resolve(p)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(w.fs, target)
	if err != nil {
		return false, NewStorageError("stat", p, err)
	}
	return ok, nil
}

// Read returns the content of an artifact path below the root.
func (w *Writer) Read(p string) ([]byte, error) {
	target, err := w.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(w.fs, target)
	if err != nil {
		return nil, NewStorageError("read", p, err)
	}
	return data, nil
}

// Clean removes the root and everything below it. A missing root is not
// an error.
func (w *Writer) Clean() error {
	root := filepath.Clean(w.config.Root)
	parent := ".." + string(filepath.Separator)
	if root == "." || root == ".." || root == string(filepath.Separator) || strings.HasPrefix(root, parent) {
		return NewStorageError("clean", w.config.Root, ErrUnsafeRoot)
	}

	if err := w.fs.RemoveAll(root); err != nil {
		return NewStorageError("clean", w.config.Root, err)
	}

	w.logger.Debug("output removed")
	return nil
}

// resolve maps a relative artifact path to its location below the root.
// Artifact paths always use forward slashes.
func (w *Writer) resolve(p string) (string, error) {
	clean := path.Clean(p)
	if p == "" || path.IsAbs(p) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", NewStorageError("resolve", p, ErrUnsafePath)
	}
	return filepath.Join(w.config.Root, filepath.FromSlash(clean)), nil
}
