package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-blog/pkg/interfaces"
)

const defaultDebounce = 500 * time.Millisecond

type serveFlags struct {
	addr     string
	debounce time.Duration
}

func newServeCommand(a *app) *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, serve the output directory and rebuild on changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "localhost:1313", "listen address")
	cmd.Flags().DurationVar(&flags.debounce, "debounce", defaultDebounce, "quiet period before a rebuild")
	return cmd
}

func (a *app) serve(ctx context.Context, out io.Writer, flags serveFlags) error {
	module, err := a.module(ctx)
	if err != nil {
		return err
	}
	defer module.close()
	logger := module.logger

	var buildMu sync.Mutex
	rebuild := func() {
		buildMu.Lock()
		defer buildMu.Unlock()
		if err := runBuild(ctx, module, out, buildFlags{}); err != nil {
			logger.Error("serve.build.failed", "error", err)
		}
	}
	// A failed first build still leaves the healthy pages to look at.
	rebuild()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range watchRoots(a.cfg.PostsPath, a.cfg.TemplatesPath) {
		for _, dir := range watchDirs(root, a.cfg.OutputPath) {
			if err := watcher.Add(dir); err != nil {
				logger.Warn("serve.watch.failed", "dir", dir, "error", err)
			}
		}
	}

	trigger := newDebouncer(flags.debounce, rebuild)
	defer trigger.stop()
	go watchLoop(ctx, watcher, trigger, logger, a.cfg.OutputPath)

	server := &http.Server{
		Addr:              flags.addr,
		Handler:           newSiteHandler(a.cfg.OutputPath),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serve.listening", "addr", flags.addr, "dir", a.cfg.OutputPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, trigger *debouncer, logger interfaces.Logger, output string) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if within(event.Name, output) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := watcher.Add(event.Name); err != nil {
					logger.Warn("serve.watch.failed", "dir", event.Name, "error", err)
				}
			}
			logger.Debug("serve.change", "path", event.Name, "op", event.Op.String())
			trigger.fire()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("serve.watch.error", "error", err)
		}
	}
}

func watchRoots(paths ...string) []string {
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) != "" && isDir(p) {
			roots = append(roots, p)
		}
	}
	return roots
}

// watchDirs lists root and every directory below it, leaving out the
// output tree and symlinks.
func watchDirs(root, output string) []string {
	var dirs []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if within(p, output) {
			return filepath.SkipDir
		}
		dirs = append(dirs, p)
		return nil
	})
	return dirs
}

func within(p, dir string) bool {
	if dir == "" {
		return false
	}
	absP, err1 := filepath.Abs(p)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absP)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// debouncer runs fn once events have been quiet for wait.
type debouncer struct {
	wait  time.Duration
	fn    func()
	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(wait time.Duration, fn func()) *debouncer {
	return &debouncer{wait: wait, fn: fn}
}

func (d *debouncer) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// newSiteHandler serves dir without caching and without directory
// listings.
func newSiteHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") && r.URL.Path != "/" {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(r.URL.Path), "index.html")); err != nil {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		files.ServeHTTP(w, r)
	})
}
