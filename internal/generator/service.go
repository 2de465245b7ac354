package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-blog/internal/article"
	"github.com/goliatone/go-blog/internal/config"
	"github.com/goliatone/go-blog/internal/identity"
	"github.com/goliatone/go-blog/internal/logging"
	"github.com/goliatone/go-blog/internal/markdown"
	"github.com/goliatone/go-blog/internal/rehost"
	"github.com/goliatone/go-blog/internal/scan"
	"github.com/goliatone/go-blog/internal/templates"
	"github.com/goliatone/go-blog/internal/writer"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

var (
	// ErrDuplicateSlug indicates two posts resolve to the same output page.
	ErrDuplicateSlug = errors.New("generator: two posts map to the same output path")
	// ErrAggregatesSkipped is joined into the build error when a failed
	// article kept the index, manifest, feed and profile from being written.
	ErrAggregatesSkipped = errors.New("generator: aggregate outputs skipped after article failures")
)

const (
	pageExt   = ".html"
	hiddenExt = ".htm"
)

// Service describes the static blog build contract.
type Service interface {
	Build(ctx context.Context, opts BuildOptions) (*BuildResult, error)
	MigrateImages(ctx context.Context, opts MigrateOptions) (*rehost.MigrationResult, error)
}

// BuildOptions narrows what a build is allowed to touch.
type BuildOptions struct {
	// DryRun renders everything but writes nothing. Rehosting is skipped
	// because it rewrites sources.
	DryRun bool
	// SkipRehost leaves remote image references as they are.
	SkipRehost bool
}

// MigrateOptions scopes a standalone rehost run.
type MigrateOptions struct {
	// Paths limits the run to these posts, relative to the posts root.
	// Empty means every post.
	Paths []string
}

// BuildResult reports aggregated build metadata.
type BuildResult struct {
	RunID          uuid.UUID
	ArticlesBuilt  int
	ArticlesHidden int
	FilesWritten   int64
	FilesUnchanged int64
	ImagesRehosted int64
	// Articles is the published index in listing order.
	Articles    []article.Metadata
	Diagnostics []RenderDiagnostic
	Duration    time.Duration
	Errors      []error
	DryRun      bool
}

// RenderDiagnostic records timing and errors for individual posts.
type RenderDiagnostic struct {
	Path     string
	Output   string
	Hidden   bool
	Outcome  writer.Outcome
	Duration time.Duration
	Err      error
}

// Dependencies lists the collaborators used by the build. Everything is
// optional; missing pieces are built from the config.
type Dependencies struct {
	Markdown  interfaces.MarkdownRenderer
	Templates interfaces.TemplateRenderer
	Writer    writer.Writer
	Fetcher   rehost.Fetcher
	Ledger    rehost.Ledger
	Logger    interfaces.Logger
	Provider  interfaces.LoggerProvider
}

// NewService wires a build pipeline for cfg.
func NewService(cfg config.Config, deps Dependencies) Service {
	return &service{
		cfg:    cfg,
		deps:   deps,
		logger: logging.Resolve(deps.Logger, deps.Provider, "blog.generator"),
		now:    time.Now,
	}
}

type service struct {
	cfg    config.Config
	deps   Dependencies
	logger interfaces.Logger
	now    func() time.Time
}

type articlePlan struct {
	relPath  string
	dir      string
	baseName string
	filename string
}

type renderOutcome struct {
	meta       article.Metadata
	hidden     bool
	diagnostic RenderDiagnostic
	err        error
}

// pipeline holds the per-build collaborators.
type pipeline struct {
	markdown  interfaces.MarkdownRenderer
	templates interfaces.TemplateRenderer
	writer    writer.Writer
	rehoster  *rehost.Rehoster
	logger    interfaces.Logger
	year      int
}

func (s *service) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.BuildTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := s.now()
	runID := identity.RunID()
	logger := logging.WithFields(s.logger, map[string]any{"run_id": runID.String()})
	ctx = logging.ContextWithFields(ctx, map[string]any{"run_id": runID.String()})

	scanned, err := scan.New(s.cfg.PostsPath, scan.Options{
		Extension: s.cfg.ArticleFormat,
		Logger:    logging.ScanLogger(s.deps.Provider),
	}).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("generator: scan %s: %w", s.cfg.PostsPath, err)
	}

	plans, err := planArticles(scanned.Files)
	if err != nil {
		return nil, err
	}

	p, err := s.newPipeline(opts, start)
	if err != nil {
		return nil, err
	}
	before := p.writer.Stats()

	if err := p.writer.EnsureDir(ctx, s.cfg.OutputPath); err != nil {
		return nil, fmt.Errorf("generator: output dir: %w", err)
	}
	for _, dir := range scanned.Dirs {
		if err := p.writer.EnsureDir(ctx, filepath.Join(s.cfg.OutputPath, filepath.FromSlash(dir))); err != nil {
			return nil, fmt.Errorf("generator: output dir %s: %w", dir, err)
		}
	}

	logger.Info("generator.build.start", "posts", len(plans), "workers", s.cfg.WorkerCount(), "dry_run", opts.DryRun)

	outcomes := s.renderConcurrently(ctx, p, plans)

	result := &BuildResult{
		RunID:       runID,
		DryRun:      opts.DryRun,
		Diagnostics: make([]RenderDiagnostic, 0, len(outcomes)),
	}
	all := make([]article.Metadata, 0, len(outcomes))
	for _, outcome := range outcomes {
		result.Diagnostics = append(result.Diagnostics, outcome.diagnostic)
		if outcome.err != nil {
			result.Errors = append(result.Errors, outcome.err)
			continue
		}
		result.ArticlesBuilt++
		if outcome.hidden {
			result.ArticlesHidden++
		}
		all = append(all, outcome.meta)
	}
	result.Articles = article.Listed(all, s.cfg.Hidden())

	if len(result.Errors) == 0 {
		if err := s.writeAggregates(ctx, p, result.Articles, start); err != nil {
			result.Errors = append(result.Errors, err)
		}
	} else {
		logger.Warn("generator.aggregates.skipped", "failed", len(result.Errors))
		result.Errors = append(result.Errors, ErrAggregatesSkipped)
	}

	after := p.writer.Stats()
	result.FilesWritten = after.Written - before.Written
	result.FilesUnchanged = after.Unchanged - before.Unchanged
	if p.rehoster != nil {
		result.ImagesRehosted = p.rehoster.ImagesStored()
	}
	result.Duration = s.now().Sub(start)

	logger.Info("generator.build.complete",
		"articles", result.ArticlesBuilt,
		"hidden", result.ArticlesHidden,
		"written", result.FilesWritten,
		"unchanged", result.FilesUnchanged,
		"images", result.ImagesRehosted,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)

	return result, errors.Join(result.Errors...)
}

func (s *service) newPipeline(opts BuildOptions, now time.Time) (*pipeline, error) {
	p := &pipeline{
		markdown:  s.deps.Markdown,
		templates: s.deps.Templates,
		writer:    s.deps.Writer,
		logger:    s.logger,
		year:      now.Year(),
	}
	if p.markdown == nil {
		p.markdown = markdown.NewGoldmarkRenderer(markdown.Options{
			Components: s.cfg.ComponentsPath != "",
			TOC:        true,
		})
	}
	if p.templates == nil {
		set, err := templates.Load(s.cfg.TemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
		p.templates = set
	}
	if opts.DryRun {
		p.writer = writer.NewDryRun()
	} else if p.writer == nil {
		p.writer = writer.New(writer.Options{Logger: logging.WriterLogger(s.deps.Provider)})
	}

	if s.cfg.RehostImages && !opts.SkipRehost && !opts.DryRun {
		r, err := s.newRehoster(p.writer)
		if err != nil {
			return nil, err
		}
		p.rehoster = r
	}
	return p, nil
}

func (s *service) newRehoster(w writer.Writer) (*rehost.Rehoster, error) {
	fetcher := s.deps.Fetcher
	if fetcher == nil {
		fetcher = rehost.NewHTTPFetcher(rehost.HTTPFetcherOptions{
			Timeout:  s.cfg.DownloadTimeout,
			Attempts: uint(s.cfg.DownloadAttempts),
		})
	}
	r, err := rehost.New(rehost.Options{
		PostsRoot: s.cfg.PostsPath,
		ImagesDir: s.cfg.ImagesDir,
		Fetcher:   fetcher,
		Writer:    w,
		Ledger:    s.deps.Ledger,
		Logger:    logging.RehostLogger(s.deps.Provider),
	})
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	return r, nil
}

// MigrateImages runs the rehost step alone over the posts tree, rewriting
// sources without rendering anything. It runs regardless of rehost_images.
func (s *service) MigrateImages(ctx context.Context, opts MigrateOptions) (*rehost.MigrationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	files := opts.Paths
	if len(files) == 0 {
		scanned, err := scan.New(s.cfg.PostsPath, scan.Options{
			Extension: s.cfg.ArticleFormat,
			Logger:    logging.ScanLogger(s.deps.Provider),
		}).Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("generator: scan %s: %w", s.cfg.PostsPath, err)
		}
		files = scanned.Files
	}

	w := s.deps.Writer
	if w == nil {
		w = writer.New(writer.Options{Logger: logging.WriterLogger(s.deps.Provider)})
	}
	r, err := s.newRehoster(w)
	if err != nil {
		return nil, err
	}
	result, err := r.Migrate(ctx, files)
	return &result, err
}

// planArticles derives the output location of every post from its path
// alone. Two posts sharing a directory and stripped filename would write
// the same page (or the same .html/.htm pair once visibility flips), so
// the build stops before anything is written.
func planArticles(files []string) ([]articlePlan, error) {
	plans := make([]articlePlan, 0, len(files))
	owners := make(map[string]string, len(files))
	for _, rel := range files {
		base := scan.BaseName(rel)
		plan := articlePlan{
			relPath:  rel,
			dir:      scan.Dir(rel),
			baseName: base,
			filename: article.Filename(base),
		}
		key := path.Join(plan.dir, plan.filename)
		if prev, ok := owners[key]; ok {
			return nil, fmt.Errorf("%w: %s and %s both render to %s", ErrDuplicateSlug, prev, rel, key)
		}
		owners[key] = rel
		plans = append(plans, plan)
	}
	return plans, nil
}

// renderConcurrently fans out over posts. Outcomes are stored by index so
// the result is independent of scheduling; article errors never cancel
// their siblings.
func (s *service) renderConcurrently(ctx context.Context, p *pipeline, plans []articlePlan) []renderOutcome {
	outcomes := make([]renderOutcome, len(plans))
	var g errgroup.Group
	g.SetLimit(s.cfg.WorkerCount())
	for i, plan := range plans {
		g.Go(func() error {
			outcomes[i] = s.renderArticle(ctx, p, plan)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *service) renderArticle(ctx context.Context, p *pipeline, plan articlePlan) renderOutcome {
	started := time.Now()
	outcome := renderOutcome{diagnostic: RenderDiagnostic{Path: plan.relPath}}
	fail := func(step string, err error) renderOutcome {
		outcome.err = fmt.Errorf("generator: %s: %s: %w", plan.relPath, step, err)
		outcome.diagnostic.Err = outcome.err
		outcome.diagnostic.Duration = time.Since(started)
		logging.WithArticleContext(logging.FromContext(ctx, p.logger), plan.relPath, step).
			Error("generator.article.failed", "error", err)
		return outcome
	}

	if err := ctx.Err(); err != nil {
		return fail("start", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.cfg.PostsPath, filepath.FromSlash(plan.relPath)))
	if err != nil {
		return fail("read", err)
	}
	content := string(raw)

	if p.rehoster != nil {
		rehosted, err := p.rehoster.Rehost(ctx, plan.relPath, content)
		if err != nil {
			return fail("rehost", err)
		}
		content = rehosted.Content
	}

	parsed, err := article.Parse(content, plan.baseName, s.cfg.DefaultAuthor)
	if err != nil {
		return fail("parse", err)
	}

	rendered, err := p.markdown.Render(parsed.Markdown)
	if err != nil {
		return fail("markdown", err)
	}

	hidden := article.Hidden(parsed.Metadata, s.cfg.Hidden())
	ext := pageExt
	if hidden {
		ext = hiddenExt
	}
	page := plan.filename + ext
	meta := parsed.Metadata
	meta.Filename = plan.filename
	meta.URLPath = path.Join("/", plan.dir, page)

	view, err := s.pageView(meta, rendered.HTML, hidden, p.year)
	if err != nil {
		return fail("view", err)
	}
	html, err := p.templates.Render(templates.Article, view)
	if err != nil {
		return fail("template", err)
	}

	output := filepath.Join(s.cfg.OutputPath, filepath.FromSlash(plan.dir), page)
	written, err := p.writer.WriteFile(ctx, writer.Request{
		Path:     output,
		Content:  []byte(html),
		Category: writer.CategoryPage,
	})
	if err != nil {
		return fail("write", err)
	}

	if s.cfg.ComponentsPath != "" {
		for _, aux := range rendered.Aux {
			if _, err := p.writer.WriteFile(ctx, writer.Request{
				Path:     filepath.Join(s.cfg.ComponentsPath, aux.Name),
				Content:  aux.Content,
				Category: writer.CategoryComponent,
			}); err != nil {
				return fail("components", err)
			}
		}
	}

	logging.FromContext(ctx, p.logger).Debug("generator.article.rendered",
		"article_path", plan.relPath,
		"output", output,
		"hidden", hidden,
		"outcome", written.String(),
	)

	outcome.meta = meta
	outcome.hidden = hidden
	outcome.diagnostic.Output = output
	outcome.diagnostic.Hidden = hidden
	outcome.diagnostic.Outcome = written
	outcome.diagnostic.Duration = time.Since(started)
	return outcome
}

// writeAggregates publishes the listing artifacts for index, which must
// already be sorted and filtered.
func (s *service) writeAggregates(ctx context.Context, p *pipeline, index []article.Metadata, now time.Time) error {
	cards, err := renderCards(p.templates, index)
	if err != nil {
		return err
	}
	indexHTML, err := p.templates.Render(templates.Article, s.indexView(cards, p.year))
	if err != nil {
		return fmt.Errorf("generator: index page: %w", err)
	}

	manifest, err := buildManifest(index)
	if err != nil {
		return err
	}

	outputs := []writer.Request{
		{Path: filepath.Join(s.cfg.OutputPath, "index.html"), Content: []byte(indexHTML), Category: writer.CategoryIndex},
		{Path: filepath.Join(s.cfg.OutputPath, "index.json"), Content: manifest, Category: writer.CategoryManifest},
		{Path: filepath.Join(s.cfg.OutputPath, "rss.xml"), Content: []byte(buildRSS(s.cfg, index, now)), Category: writer.CategoryFeed},
	}

	if s.cfg.ProfilePath != "" {
		profile, err := renderProfile(p.templates, s.cfg, index)
		if err != nil {
			return err
		}
		outputs = append(outputs, writer.Request{
			Path:     filepath.Join(s.cfg.ProfilePath, "README.md"),
			Content:  []byte(profile),
			Category: writer.CategoryProfile,
		})
	}

	for _, req := range outputs {
		outcome, err := p.writer.WriteFile(ctx, req)
		if err != nil {
			return fmt.Errorf("generator: write %s: %w", req.Path, err)
		}
		p.logger.Info("generator.aggregate.written", "path", req.Path, "category", string(req.Category), "outcome", outcome.String())
	}
	return nil
}
