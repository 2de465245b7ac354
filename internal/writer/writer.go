// Package writer persists build artifacts. Writes compare the new bytes
// with what is on disk and skip identical content so unchanged outputs
// keep their modification time.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-blog/internal/logging"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

// Category tags a write for logging and stats.
type Category string

const (
	CategoryPage      Category = "page"
	CategoryIndex     Category = "index"
	CategoryManifest  Category = "manifest"
	CategoryFeed      Category = "feed"
	CategoryProfile   Category = "profile"
	CategoryImage     Category = "image"
	CategorySource    Category = "source"
	CategoryComponent Category = "component"
)

// Outcome reports what a write did.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Wrote reports whether bytes reached the disk.
func (o Outcome) Wrote() bool { return o != OutcomeUnchanged }

var (
	ErrPathRequired = errors.New("writer: path is required")
	ErrNotDirectory = errors.New("writer: path exists and is not a directory")
)

// Request describes a single file write.
type Request struct {
	Path     string
	Content  []byte
	Category Category
	Mode     fs.FileMode
}

// Stats counts outcomes across a build.
type Stats struct {
	Written   int64
	Unchanged int64
}

// Writer is the contract used by the build pipeline.
type Writer interface {
	EnsureDir(ctx context.Context, dir string) error
	WriteFile(ctx context.Context, req Request) (Outcome, error)
	Stats() Stats
}

// Options configures the filesystem writer.
type Options struct {
	DirMode  fs.FileMode
	FileMode fs.FileMode
	Logger   interfaces.Logger
}

// FS writes to the local filesystem.
type FS struct {
	dirMode  fs.FileMode
	fileMode fs.FileMode
	logger   interfaces.Logger
	dirs     sync.Map
	written  atomic.Int64
	same     atomic.Int64
}

var _ Writer = (*FS)(nil)

// New returns a filesystem writer.
func New(opts Options) *FS {
	w := &FS{
		dirMode:  opts.DirMode,
		fileMode: opts.FileMode,
		logger:   opts.Logger,
	}
	if w.dirMode == 0 {
		w.dirMode = 0o755
	}
	if w.fileMode == 0 {
		w.fileMode = 0o644
	}
	if w.logger == nil {
		w.logger = logging.NoOp()
	}
	return w
}

// EnsureDir creates dir and its parents. Concurrent creation of the same
// directory is tolerated; a non-directory in the way is an error.
func (w *FS) EnsureDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir = filepath.Clean(dir)
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, ok := w.dirs.Load(dir); ok {
		return nil
	}
	if err := os.MkdirAll(dir, w.dirMode); err != nil {
		if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
		}
		return fmt.Errorf("writer: mkdir %s: %w", dir, err)
	}
	w.dirs.Store(dir, struct{}{})
	return nil
}

// WriteFile writes req.Content unless the file already holds those bytes.
func (w *FS) WriteFile(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeUnchanged, err
	}
	if strings.TrimSpace(req.Path) == "" {
		return OutcomeUnchanged, ErrPathRequired
	}

	outcome := OutcomeCreated
	existing, err := os.ReadFile(req.Path)
	switch {
	case err == nil:
		if bytes.Equal(existing, req.Content) {
			w.same.Add(1)
			w.logger.Trace("writer.unchanged", "path", req.Path, "category", string(req.Category))
			return OutcomeUnchanged, nil
		}
		outcome = OutcomeUpdated
	case !errors.Is(err, fs.ErrNotExist):
		return OutcomeUnchanged, fmt.Errorf("writer: read %s: %w", req.Path, err)
	}

	if err := w.EnsureDir(ctx, filepath.Dir(req.Path)); err != nil {
		return OutcomeUnchanged, err
	}

	mode := req.Mode
	if mode == 0 {
		mode = w.fileMode
	}
	if err := os.WriteFile(req.Path, req.Content, mode); err != nil {
		return OutcomeUnchanged, fmt.Errorf("writer: write %s: %w", req.Path, err)
	}

	w.written.Add(1)
	w.logger.Debug("writer.wrote", "path", req.Path, "category", string(req.Category), "outcome", outcome.String(), "bytes", len(req.Content))
	return outcome, nil
}

// Stats returns the counters accumulated so far.
func (w *FS) Stats() Stats {
	return Stats{Written: w.written.Load(), Unchanged: w.same.Load()}
}

// DryRun records what would be written without touching the disk.
type DryRun struct {
	mu      sync.Mutex
	files   map[string][]byte
	written atomic.Int64
	same    atomic.Int64
}

var _ Writer = (*DryRun)(nil)

// NewDryRun returns an in-memory writer.
func NewDryRun() *DryRun {
	return &DryRun{files: map[string][]byte{}}
}

func (d *DryRun) EnsureDir(ctx context.Context, _ string) error {
	return ctx.Err()
}

// WriteFile compares against the disk, like FS, but keeps the bytes in memory.
func (d *DryRun) WriteFile(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeUnchanged, err
	}
	if strings.TrimSpace(req.Path) == "" {
		return OutcomeUnchanged, ErrPathRequired
	}

	outcome := OutcomeCreated
	if existing, err := os.ReadFile(req.Path); err == nil {
		if bytes.Equal(existing, req.Content) {
			d.same.Add(1)
			return OutcomeUnchanged, nil
		}
		outcome = OutcomeUpdated
	}

	d.mu.Lock()
	d.files[req.Path] = bytes.Clone(req.Content)
	d.mu.Unlock()
	d.written.Add(1)
	return outcome, nil
}

// File returns the content recorded for path.
func (d *DryRun) File(path string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.files[path]
	return content, ok
}

func (d *DryRun) Stats() Stats {
	return Stats{Written: d.written.Load(), Unchanged: d.same.Load()}
}
