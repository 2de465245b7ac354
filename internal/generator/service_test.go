package generator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-blog/internal/article"
	"github.com/goliatone/go-blog/internal/config"
	"github.com/goliatone/go-blog/internal/markdown"
	"github.com/goliatone/go-blog/pkg/interfaces"
	"github.com/goliatone/go-blog/pkg/testsupport"
)

var fixedNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type siteFixture struct {
	root   string
	posts  string
	output string
	cfg    config.Config
}

func newSite(t *testing.T, posts map[string]string) *siteFixture {
	t.Helper()
	root := t.TempDir()
	site := &siteFixture{
		root:   root,
		posts:  filepath.Join(root, "posts"),
		output: filepath.Join(root, "public"),
	}
	if err := os.MkdirAll(site.posts, 0o755); err != nil {
		t.Fatalf("mkdir posts: %v", err)
	}
	testsupport.WriteTree(t, site.posts, posts)
	site.cfg = config.Config{
		PostsPath:       site.posts,
		OutputPath:      site.output,
		ArticleFormat:   "md",
		SiteName:        "Notes",
		SiteURL:         "https://blog.example.com/",
		SiteDescription: "A blog",
		SiteLanguage:    "en",
		DefaultAuthor:   "octocat",
		WebMaster:       "octocat",
		HiddenMode:      string(article.HiddenByTag),
		ImagesDir:       "images",
		Workers:         4,
		FeedItems:       20,
		ProfileItems:    5,
	}
	return site
}

func (s *siteFixture) write(t *testing.T, rel, content string) {
	t.Helper()
	testsupport.WriteTree(t, s.posts, map[string]string{rel: content})
}

func (s *siteFixture) read(t *testing.T, rel string) string {
	t.Helper()
	return testsupport.ReadFile(t, s.output, rel)
}

func (s *siteFixture) service(deps Dependencies) *service {
	svc := NewService(s.cfg, deps).(*service)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func readManifest(t *testing.T, site *siteFixture) []article.Metadata {
	t.Helper()
	var index []article.Metadata
	if err := json.Unmarshal([]byte(site.read(t, "index.json")), &index); err != nil {
		t.Fatalf("decode index.json: %v", err)
	}
	return index
}

func TestBuildPublishesPagesAndAggregates(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05 Go alice]post-one.md":    "# Post One\nFirst body.\n",
		"[2024.02.10 Go,Rust bob]post-two.md": "# Post Two\nSecond body.\n",
	})

	result, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if result.ArticlesBuilt != 2 || result.ArticlesHidden != 0 {
		t.Fatalf("unexpected counts: built=%d hidden=%d", result.ArticlesBuilt, result.ArticlesHidden)
	}

	page := site.read(t, "post-one.html")
	if !strings.Contains(page, "<title>Post One | Notes</title>") {
		t.Fatalf("page title missing:\n%s", page)
	}
	if !strings.Contains(page, "<p>First body.</p>") {
		t.Fatalf("page body missing:\n%s", page)
	}
	if strings.Contains(page, "<h1>Post One</h1>") {
		t.Fatalf("title line should be consumed, got:\n%s", page)
	}
	if !strings.Contains(page, `data-tags="[`) {
		t.Fatalf("tags view missing:\n%s", page)
	}

	index := readManifest(t, site)
	if len(index) != 2 || index[0].Filename != "post-two" || index[1].Filename != "post-one" {
		t.Fatalf("unexpected index order: %+v", index)
	}
	if index[0].URLPath != "/post-two.html" || index[0].DateString() != "2024.02.10" || index[0].Author != "bob" {
		t.Fatalf("unexpected manifest entry: %+v", index[0])
	}

	feed := site.read(t, "rss.xml")
	if strings.Count(feed, "<item>") != 2 {
		t.Fatalf("expected 2 feed items:\n%s", feed)
	}
	if strings.Index(feed, "post-two.html") > strings.Index(feed, "post-one.html") {
		t.Fatalf("feed not in listing order:\n%s", feed)
	}
	if !strings.Contains(feed, "<link>https://blog.example.com/post-two.html</link>") {
		t.Fatalf("feed link should join site url and path:\n%s", feed)
	}

	home := site.read(t, "index.html")
	if !strings.Contains(home, "<title>Notes</title>") || !strings.Contains(home, `href="/post-one.html"`) {
		t.Fatalf("index page missing cards:\n%s", home)
	}
}

func TestBuildHiddenPostsStayOutOfListings(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05 Go]public.md":               "# Public\nvisible\n",
		"drafts/[2024.03.01 Hidden,Go]secret.md": "# Secret\nshh\n",
	})

	result, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if result.ArticlesHidden != 1 {
		t.Fatalf("expected 1 hidden article, got %d", result.ArticlesHidden)
	}

	page := site.read(t, "drafts/secret.htm")
	if !strings.Contains(page, "shh") {
		t.Fatalf("hidden page not rendered:\n%s", page)
	}
	if _, err := os.Stat(filepath.Join(site.output, "drafts", "secret.html")); !os.IsNotExist(err) {
		t.Fatalf("hidden post must not produce .html, stat err=%v", err)
	}

	for _, name := range []string{"index.json", "index.html", "rss.xml"} {
		if strings.Contains(site.read(t, name), "secret") {
			t.Fatalf("%s leaks the hidden post", name)
		}
	}
}

func TestBuildLegacyDateModeHidesUndatedPosts(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05]dated.md": "dated\n",
		"undated.md":           "undated\n",
	})
	site.cfg.HiddenMode = string(article.HiddenByDate)

	if _, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{}); err != nil {
		t.Fatalf("build: %v", err)
	}
	site.read(t, "undated.htm")
	index := readManifest(t, site)
	if len(index) != 1 || index[0].Filename != "dated" {
		t.Fatalf("unexpected index: %+v", index)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05 Go]one.md":        "# One\nbody\n",
		"nested/[2024.01.06 Go]two.md": "# Two\nbody\n",
	})
	svc := site.service(Dependencies{})

	first, err := svc.Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	if first.FilesWritten == 0 {
		t.Fatalf("first build should write files")
	}

	pagePath := filepath.Join(site.output, "one.html")
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(pagePath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := svc.Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if second.FilesWritten != 0 {
		t.Fatalf("second build wrote %d files", second.FilesWritten)
	}
	if second.FilesUnchanged != first.FilesWritten {
		t.Fatalf("expected %d unchanged files, got %d", first.FilesWritten, second.FilesUnchanged)
	}

	info, err := os.Stat(pagePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(past) {
		t.Fatalf("unchanged page was rewritten: mtime %v", info.ModTime())
	}
}

func TestBuildRejectsDuplicateOutputs(t *testing.T) {
	site := newSite(t, map[string]string{
		"hello.md":             "plain\n",
		"[2024.01.05]hello.md": "dated\n",
	})

	_, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{})
	if !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}
	if _, statErr := os.Stat(site.output); !os.IsNotExist(statErr) {
		t.Fatalf("nothing should be written before the duplicate check, stat err=%v", statErr)
	}
}

type failingRenderer struct {
	inner interfaces.MarkdownRenderer
	fail  string
}

func (r failingRenderer) Render(src string) (*interfaces.RenderedMarkdown, error) {
	if strings.Contains(src, r.fail) {
		return nil, errors.New("boom")
	}
	return r.inner.Render(src)
}

func TestBuildArticleFailureSkipsAggregates(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05]good.md": "fine\n",
		"[2024.01.06]bad.md":  "explode\n",
	})

	result, err := site.service(Dependencies{
		Markdown: failingRenderer{inner: markdown.NewGoldmarkRenderer(markdown.Options{}), fail: "explode"},
	}).Build(context.Background(), BuildOptions{})
	if err == nil {
		t.Fatalf("expected build error")
	}
	if !errors.Is(err, ErrAggregatesSkipped) {
		t.Fatalf("expected aggregates to be skipped, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad.md") {
		t.Fatalf("error should name the failing post: %v", err)
	}
	if result == nil || result.ArticlesBuilt != 1 {
		t.Fatalf("expected the healthy post to build, got %+v", result)
	}

	site.read(t, "good.html")
	if _, statErr := os.Stat(filepath.Join(site.output, "index.json")); !os.IsNotExist(statErr) {
		t.Fatalf("index.json must not be published after a failure, stat err=%v", statErr)
	}
}

func TestBuildDryRunLeavesDiskUntouched(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05]post.md": "![remote](http://127.0.0.1:1/x.png)\n",
	})
	site.cfg.RehostImages = true

	result, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !result.DryRun || result.FilesWritten == 0 {
		t.Fatalf("dry run should report pending writes: %+v", result)
	}
	if _, statErr := os.Stat(filepath.Join(site.output, "post.html")); !os.IsNotExist(statErr) {
		t.Fatalf("dry run wrote a page, stat err=%v", statErr)
	}
}

func TestBuildRehostsRemoteImages(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	source := "![pic](" + server.URL + "/pic.png)\n"
	site := newSite(t, map[string]string{
		"notes/[2024.01.05]pic.md": source,
	})
	site.cfg.RehostImages = true

	result, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if result.ImagesRehosted != 1 {
		t.Fatalf("expected 1 rehosted image, got %d", result.ImagesRehosted)
	}

	sum := md5.Sum(payload)
	name := hex.EncodeToString(sum[:]) + ".png"
	if _, err := os.Stat(filepath.Join(site.posts, "images", name)); err != nil {
		t.Fatalf("image not stored: %v", err)
	}

	rewritten, err := os.ReadFile(filepath.Join(site.posts, "notes", "[2024.01.05]pic.md"))
	if err != nil {
		t.Fatalf("read post: %v", err)
	}
	if string(rewritten) != "![pic](../images/"+name+")\n" {
		t.Fatalf("unexpected rewritten source: %q", rewritten)
	}
	if !strings.Contains(site.read(t, "notes/pic.html"), "../images/"+name) {
		t.Fatalf("page should reference the local image")
	}
}

func TestBuildSkipRehostKeepsRemoteImages(t *testing.T) {
	source := "![pic](https://images.example.com/pic.png)\n"
	site := newSite(t, map[string]string{"[2024.01.05]pic.md": source})
	site.cfg.RehostImages = true

	if _, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{SkipRehost: true}); err != nil {
		t.Fatalf("build: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(site.posts, "[2024.01.05]pic.md"))
	if err != nil {
		t.Fatalf("read post: %v", err)
	}
	if string(data) != source {
		t.Fatalf("source changed: %q", data)
	}
}

func TestBuildCommentsOnlyOnVisiblePosts(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.05 Go]open.md":       "open\n",
		"[2024.01.06 Hidden]closed.md": "closed\n",
	})
	site.cfg.GithubRepo = "octo/blog"
	site.cfg.GithubRepoID = "R_1"
	site.cfg.GiscusCategory = "Announcements"
	site.cfg.GiscusCategoryID = "DIC_1"

	if _, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{}); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(site.read(t, "open.html"), `data-repo="octo/blog"`) {
		t.Fatalf("visible post should embed giscus")
	}
	if strings.Contains(site.read(t, "closed.htm"), "giscus") {
		t.Fatalf("hidden post must not embed giscus")
	}
}

func TestBuildWritesProfileAndComponents(t *testing.T) {
	site := newSite(t, map[string]string{
		"[2024.01.01]old.md": "# Old\nold\n",
		"[2024.01.02]new.md": "# New\n```Vue\n<template><p>hi</p></template>\n```\n",
	})
	site.cfg.ProfilePath = filepath.Join(site.root, "profile")
	site.cfg.ProfileItems = 1
	site.cfg.ComponentsPath = filepath.Join(site.root, "components")

	if _, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{}); err != nil {
		t.Fatalf("build: %v", err)
	}

	profile, err := os.ReadFile(filepath.Join(site.cfg.ProfilePath, "README.md"))
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	if !strings.Contains(string(profile), "[New](https://blog.example.com/new.html)") || strings.Contains(string(profile), "Old") {
		t.Fatalf("unexpected profile:\n%s", profile)
	}

	name := markdown.ComponentName([]byte("<template><p>hi</p></template>\n")) + ".vue"
	if _, err := os.Stat(filepath.Join(site.cfg.ComponentsPath, name)); err != nil {
		t.Fatalf("component not written: %v", err)
	}
}

func TestBuildEmptyTree(t *testing.T) {
	site := newSite(t, nil)

	result, err := site.service(Dependencies{}).Build(context.Background(), BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if result.ArticlesBuilt != 0 {
		t.Fatalf("expected no articles, got %d", result.ArticlesBuilt)
	}
	if got := strings.TrimSpace(site.read(t, "index.json")); got != "[]" {
		t.Fatalf("expected empty manifest, got %q", got)
	}
	if strings.Contains(site.read(t, "rss.xml"), "<item>") {
		t.Fatalf("empty site should have no feed items")
	}
}

func TestMigrateImagesRewritesSourcesOnly(t *testing.T) {
	payload := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	site := newSite(t, map[string]string{
		"[2024.01.05]remote.md": "![dot](" + server.URL + "/dot.gif)\n",
		"[2024.01.06]plain.md":  "# Plain\nNo images here.\n",
	})

	result, err := site.service(Dependencies{}).MigrateImages(context.Background(), MigrateOptions{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if result.Posts != 2 || result.Rewritten != 1 || result.Images != 1 {
		t.Fatalf("unexpected migration result: %+v", result)
	}

	sum := md5.Sum(payload)
	name := hex.EncodeToString(sum[:]) + ".gif"
	rewritten := testsupport.ReadFile(t, site.posts, "[2024.01.05]remote.md")
	if rewritten != "![dot](images/"+name+")\n" {
		t.Fatalf("unexpected rewritten source: %q", rewritten)
	}
	if _, err := os.Stat(site.output); !os.IsNotExist(err) {
		t.Fatalf("migration must not render the site, stat err = %v", err)
	}
}
