// Package scan discovers posts and directories below the posts root.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goliatone/go-blog/internal/logging"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

var (
	ErrRootNotDirectory = errors.New("scan: root is not a directory")
	ErrEntryVanished    = errors.New("scan: entry disappeared during scan")
	ErrBrokenSymlink    = errors.New("scan: symlink target cannot be resolved")
)

// Result lists everything found under the root, relative to it with "/"
// separators. Both slices are sorted.
type Result struct {
	Dirs  []string
	Files []string
}

// Options configures a Scanner.
type Options struct {
	// Extension selects posts, without the leading dot (e.g. "md").
	Extension string
	Logger    interfaces.Logger
}

// Scanner walks a posts tree. Each entry is classified with its own
// Lstat call; symlinks are never followed.
type Scanner struct {
	root   string
	suffix string
	logger interfaces.Logger
}

// New returns a scanner rooted at root.
func New(root string, opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Scanner{
		root:   root,
		suffix: "." + strings.TrimPrefix(opts.Extension, "."),
		logger: logger,
	}
}

// Scan walks the tree. Any unreadable directory, vanished entry or broken
// symlink aborts the scan.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan: stat root %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, s.root)
	}

	result := &Result{Dirs: []string{}, Files: []string{}}
	if err := s.walk(ctx, "", result); err != nil {
		return nil, err
	}

	slices.Sort(result.Dirs)
	slices.Sort(result.Files)
	s.logger.Debug("scan.completed", "root", s.root, "dirs", len(result.Dirs), "files", len(result.Files))
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, rel string, result *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		childRel := path.Join(rel, entry.Name())
		full := filepath.Join(dir, entry.Name())

		info, err := os.Lstat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrEntryVanished, childRel)
			}
			return fmt.Errorf("scan: stat %s: %w", childRel, err)
		}

		switch mode := info.Mode(); {
		case mode&fs.ModeSymlink != 0:
			if _, err := os.Stat(full); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrBrokenSymlink, childRel, err)
			}
			s.logger.Warn("scan.symlink_skipped", "path", childRel)
		case mode.IsDir():
			result.Dirs = append(result.Dirs, childRel)
			if err := s.walk(ctx, childRel, result); err != nil {
				return err
			}
		case mode.IsRegular():
			if strings.HasSuffix(entry.Name(), s.suffix) {
				result.Files = append(result.Files, childRel)
			}
		}
	}
	return nil
}

// BaseName returns the file name of a scanned post without directory and
// extension.
func BaseName(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Dir returns the directory part of a scanned path, "" for root files.
func Dir(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// Depth counts the directories between the root and rel.
func Depth(rel string) int {
	return strings.Count(rel, "/")
}
