// Package rehost downloads remote images referenced by posts, stores them
// under the posts root with content-addressed names and rewrites the posts
// to point at the local copies.
package rehost

import (
	"cmp"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-blog/internal/identity"
	"github.com/goliatone/go-blog/internal/logging"
	"github.com/goliatone/go-blog/internal/scan"
	"github.com/goliatone/go-blog/internal/writer"
	"github.com/goliatone/go-blog/pkg/interfaces"
)

// DefaultImagesDir is where images land, relative to the posts root.
const DefaultImagesDir = "images"

// Image describes one rehosted reference.
type Image struct {
	OriginalURL  string
	Hash         string
	Extension    string
	LocalPath    string
	RelativePath string
}

// Result is the outcome of rehosting one post.
type Result struct {
	Path      string
	Content   string
	Images    []Image
	Rewritten bool
}

// Options configures a Rehoster.
type Options struct {
	PostsRoot string
	ImagesDir string
	Fetcher   Fetcher
	Writer    writer.Writer
	Ledger    Ledger
	Logger    interfaces.Logger
}

type storedImage struct {
	hash string
	ext  string
}

func (s storedImage) name() string { return s.hash + "." + s.ext }

// Rehoster is safe for concurrent use across posts. Downloads of the same
// URL are collapsed and each image file is written at most once per
// Rehoster.
type Rehoster struct {
	root      string
	imagesDir string
	fetcher   Fetcher
	writer    writer.Writer
	ledger    Ledger
	logger    interfaces.Logger

	group  singleflight.Group
	mu     sync.Mutex
	cache  map[string]storedImage
	stored atomic.Int64
}

// New returns a Rehoster.
func New(opts Options) (*Rehoster, error) {
	if strings.TrimSpace(opts.PostsRoot) == "" {
		return nil, errors.New("rehost: posts root is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("rehost: writer is required")
	}
	r := &Rehoster{
		root:      opts.PostsRoot,
		imagesDir: strings.Trim(path.Clean(filepath.ToSlash(cmp.Or(opts.ImagesDir, DefaultImagesDir))), "/"),
		fetcher:   opts.Fetcher,
		writer:    opts.Writer,
		ledger:    opts.Ledger,
		logger:    opts.Logger,
		cache:     map[string]storedImage{},
	}
	if r.fetcher == nil {
		r.fetcher = NewHTTPFetcher(HTTPFetcherOptions{})
	}
	if r.logger == nil {
		r.logger = logging.NoOp()
	}
	return r, nil
}

// ImagesStored returns how many image files this Rehoster has persisted.
func (r *Rehoster) ImagesStored() int64 {
	return r.stored.Load()
}

// Rehost localises the remote images of the post at relPath (relative to
// the posts root). Every image is downloaded and stored before the post is
// rewritten; any failure returns before the source is touched.
func (r *Rehoster) Rehost(ctx context.Context, relPath, content string) (Result, error) {
	result := Result{Path: relPath, Content: content}

	urls := ExtractImageURLs(content)
	if len(urls) == 0 {
		return result, nil
	}

	logger := logging.WithArticleContext(r.logger, relPath, "rehost")
	images := make([]Image, len(urls))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, url := range urls {
		group.Go(func() error {
			stored, err := r.resolve(groupCtx, url)
			if err != nil {
				return err
			}
			images[i] = r.describe(relPath, url, stored)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return result, fmt.Errorf("rehost: %s: %w", relPath, err)
	}

	result.Content = replaceURLs(content, images)
	result.Images = images

	if _, err := r.writer.WriteFile(ctx, writer.Request{
		Path:     filepath.Join(r.root, filepath.FromSlash(relPath)),
		Content:  []byte(result.Content),
		Category: writer.CategorySource,
	}); err != nil {
		return result, fmt.Errorf("rehost: rewrite %s: %w", relPath, err)
	}
	result.Rewritten = true

	for _, img := range images {
		logger.Info("rehost.image", "url", img.OriginalURL, "local", img.RelativePath)
		r.record(ctx, relPath, img, logger)
	}
	return result, nil
}

func (r *Rehoster) describe(relPath, url string, stored storedImage) Image {
	local := path.Join(r.imagesDir, stored.name())
	return Image{
		OriginalURL:  url,
		Hash:         stored.hash,
		Extension:    stored.ext,
		LocalPath:    local,
		RelativePath: strings.Repeat("../", scan.Depth(relPath)) + local,
	}
}

func (r *Rehoster) record(ctx context.Context, relPath string, img Image, logger interfaces.Logger) {
	if r.ledger == nil {
		return
	}
	articleID := identity.ArticleUUID(relPath)
	if err := r.ledger.Record(ctx, Record{
		ArticleID:   articleID,
		ArticlePath: relPath,
		SourceURL:   img.OriginalURL,
		Hash:        img.Hash,
		Extension:   img.Extension,
		LocalPath:   img.LocalPath,
	}); err != nil {
		logger.Warn("rehost.ledger_failed", "url", img.OriginalURL, "error", err)
	}
}

// resolve downloads and stores url once per Rehoster. The shared download
// runs detached from any single caller: a post that gives up (its own
// context is cancelled) stops waiting but does not abort the download for
// other posts referencing the same URL. The fetcher's timeout still bounds it.
func (r *Rehoster) resolve(ctx context.Context, url string) (storedImage, error) {
	r.mu.Lock()
	cached, ok := r.cache[url]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(url, func() (any, error) {
		r.mu.Lock()
		cached, ok := r.cache[url]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}

		stored, err := r.download(shared, url)
		if err != nil {
			return storedImage{}, err
		}

		r.mu.Lock()
		r.cache[url] = stored
		r.mu.Unlock()
		return stored, nil
	})

	select {
	case <-ctx.Done():
		return storedImage{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return storedImage{}, res.Err
		}
		return res.Val.(storedImage), nil
	}
}

func (r *Rehoster) download(ctx context.Context, url string) (storedImage, error) {
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return storedImage{}, err
	}
	ext, err := SniffExtension(data)
	if err != nil {
		return storedImage{}, fmt.Errorf("%s: %w", url, err)
	}
	sum := md5.Sum(data)
	stored := storedImage{hash: hex.EncodeToString(sum[:]), ext: ext}

	target := filepath.Join(r.root, filepath.FromSlash(r.imagesDir), stored.name())
	outcome, err := r.writer.WriteFile(ctx, writer.Request{
		Path:     target,
		Content:  data,
		Category: writer.CategoryImage,
	})
	if err != nil {
		return storedImage{}, err
	}
	if outcome.Wrote() {
		r.stored.Add(1)
	}
	return stored, nil
}

// replaceURLs substitutes every occurrence of each URL, longest first so a
// URL that prefixes another cannot clobber it.
func replaceURLs(content string, images []Image) string {
	ordered := slices.Clone(images)
	slices.SortStableFunc(ordered, func(a, b Image) int {
		return cmp.Compare(len(b.OriginalURL), len(a.OriginalURL))
	})
	pairs := make([]string, 0, len(ordered)*2)
	for _, img := range ordered {
		pairs = append(pairs, img.OriginalURL, img.RelativePath)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// MigrationResult summarises a standalone rehost run.
type MigrationResult struct {
	Posts     int
	Rewritten int
	Images    int
	Errors    []error
}

// Migrate rehosts every post in files (paths relative to the posts root).
// Failing posts are reported and left untouched; the others are rewritten.
func (r *Rehoster) Migrate(ctx context.Context, files []string) (MigrationResult, error) {
	var result MigrationResult
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Posts++
		content, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("rehost: read %s: %w", rel, err))
			continue
		}
		out, err := r.Rehost(ctx, rel, string(content))
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if out.Rewritten {
			result.Rewritten++
			result.Images += len(out.Images)
		}
	}
	r.logger.Info("rehost.migrated", "posts", result.Posts, "rewritten", result.Rewritten, "images", result.Images, "failed", len(result.Errors))
	return result, errors.Join(result.Errors...)
}
