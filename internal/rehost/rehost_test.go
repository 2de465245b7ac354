package rehost

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-blog/internal/writer"
)

var pngPayload = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

const svgPayload = `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

type imageServer struct {
	*httptest.Server
	hits atomic.Int64
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.hits.Add(1)
		switch req.URL.Path {
		case "/a.png", "/same.png":
			_, _ = w.Write(pngPayload)
		case "/logo":
			_, _ = w.Write([]byte(svgPayload))
		case "/page.html":
			_, _ = w.Write([]byte("<!DOCTYPE html><html><body>nope</body></html>"))
		default:
			http.NotFound(w, req)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newRehoster(t *testing.T, root string, ledger Ledger) *Rehoster {
	t.Helper()
	r, err := New(Options{
		PostsRoot: root,
		Fetcher:   NewHTTPFetcher(HTTPFetcherOptions{}),
		Writer:    writer.New(writer.Options{}),
		Ledger:    ledger,
	})
	require.NoError(t, err)
	return r
}

func writePost(t *testing.T, root, rel, body string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
}

func TestExtractImageURLs(t *testing.T) {
	body := strings.Join([]string{
		"![a](https://x.test/a.png)",
		"![dup](https://x.test/a.png)",
		`![titled](http://x.test/b.jpg "Caption")`,
		"![local](../images/c.png)",
		"[link](https://x.test/not-image.png)",
		"![paren](https://x.test/wiki/File_(1).png)",
	}, "\n")

	urls := ExtractImageURLs(body)
	require.Equal(t, []string{
		"https://x.test/a.png",
		"http://x.test/b.jpg",
		"https://x.test/wiki/File_(1",
	}, urls)
	require.Nil(t, ExtractImageURLs("![local](images/a.png)"))
}

func TestSniffExtension(t *testing.T) {
	ext, err := SniffExtension(pngPayload)
	require.NoError(t, err)
	require.Equal(t, "png", ext)

	ext, err = SniffExtension([]byte(`<?xml version="1.0"?><root/>`))
	require.NoError(t, err)
	require.Equal(t, "svg", ext)

	_, err = SniffExtension([]byte("plain text"))
	require.ErrorIs(t, err, ErrNotImage)
}

func TestRehostRewritesPostWithRelativePaths(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	rel := "notes/deep/[2024.01.01]post.md"
	body := "# T\n![a](" + server.URL + "/a.png)\ntext ![again](" + server.URL + "/a.png)\n"
	writePost(t, root, rel, body)

	r := newRehoster(t, root, nil)
	result, err := r.Rehost(context.Background(), rel, body)
	require.NoError(t, err)
	require.True(t, result.Rewritten)
	require.Len(t, result.Images, 1)

	name := md5Hex(pngPayload) + ".png"
	want := "../../images/" + name
	require.Equal(t, want, result.Images[0].RelativePath)
	require.Equal(t, 2, strings.Count(result.Content, want))
	require.NotContains(t, result.Content, server.URL)

	onDisk, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	require.Equal(t, result.Content, string(onDisk))

	stored, err := os.ReadFile(filepath.Join(root, "images", name))
	require.NoError(t, err)
	require.Equal(t, pngPayload, stored)

	again, err := r.Rehost(context.Background(), rel, result.Content)
	require.NoError(t, err)
	require.False(t, again.Rewritten)
}

func TestRehostSameURLAcrossPostsWritesOnce(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	r := newRehoster(t, root, nil)

	var wg sync.WaitGroup
	results := make([]Result, 4)
	errs := make([]error, 4)
	for i := range results {
		rel := filepath.ToSlash(filepath.Join("p", string(rune('a'+i))+".md"))
		body := "![x](" + server.URL + "/same.png)"
		writePost(t, root, rel, body)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.Rehost(context.Background(), rel, body)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].Images[0].Hash, results[i].Images[0].Hash)
	}
	require.Equal(t, int64(1), r.ImagesStored())
	require.Equal(t, int64(1), server.hits.Load())
}

func TestRehostFailureDoesNotLeakIntoPostsSharingAnImage(t *testing.T) {
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	releaseMissing := make(chan struct{})
	var startOnce sync.Once
	var slowHits atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/shared.png":
			slowHits.Add(1)
			startOnce.Do(func() { close(slowStarted) })
			select {
			case <-releaseSlow:
				_, _ = w.Write(pngPayload)
			case <-req.Context().Done():
			}
		case "/missing.png":
			<-releaseMissing
			http.NotFound(w, req)
		default:
			http.NotFound(w, req)
		}
	}))
	t.Cleanup(server.Close)
	var releaseOnce sync.Once
	t.Cleanup(func() {
		releaseOnce.Do(func() { close(releaseSlow) })
	})

	root := t.TempDir()
	r := newRehoster(t, root, nil)
	broken := "![a](" + server.URL + "/shared.png)\n![b](" + server.URL + "/missing.png)\n"
	healthy := "![a](" + server.URL + "/shared.png)\n"
	writePost(t, root, "broken.md", broken)
	writePost(t, root, "healthy.md", healthy)

	brokenErr := make(chan error, 1)
	go func() {
		_, err := r.Rehost(context.Background(), "broken.md", broken)
		brokenErr <- err
	}()
	<-slowStarted

	type outcome struct {
		result Result
		err    error
	}
	healthyDone := make(chan outcome, 1)
	go func() {
		res, err := r.Rehost(context.Background(), "healthy.md", healthy)
		healthyDone <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	close(releaseMissing)
	require.ErrorIs(t, <-brokenErr, ErrDownload)

	releaseOnce.Do(func() { close(releaseSlow) })
	got := <-healthyDone
	require.NoError(t, got.err)
	require.True(t, got.result.Rewritten)
	require.Equal(t, "![a](images/"+md5Hex(pngPayload)+".png)\n", got.result.Content)
	require.Equal(t, int64(1), slowHits.Load())

	onDisk, err := os.ReadFile(filepath.Join(root, "broken.md"))
	require.NoError(t, err)
	require.Equal(t, broken, string(onDisk))
}

func TestRehostSVGFromXML(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	body := "![logo](" + server.URL + "/logo)"
	writePost(t, root, "root.md", body)

	result, err := newRehoster(t, root, nil).Rehost(context.Background(), "root.md", body)
	require.NoError(t, err)
	require.Equal(t, "svg", result.Images[0].Extension)
	require.True(t, strings.HasPrefix(result.Images[0].RelativePath, "images/"))
}

func TestRehostFailureLeavesSourceUntouched(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	rel := "a/post.md"
	body := "![ok](" + server.URL + "/a.png)\n![missing](" + server.URL + "/missing.png)\n"
	writePost(t, root, rel, body)

	_, err := newRehoster(t, root, nil).Rehost(context.Background(), rel, body)
	require.ErrorIs(t, err, ErrDownload)

	onDisk, readErr := os.ReadFile(filepath.Join(root, "a", "post.md"))
	require.NoError(t, readErr)
	require.Equal(t, body, string(onDisk))
}

func TestRehostRejectsNonImages(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	body := "![html](" + server.URL + "/page.html)"
	writePost(t, root, "x.md", body)

	_, err := newRehoster(t, root, nil).Rehost(context.Background(), "x.md", body)
	require.ErrorIs(t, err, ErrNotImage)
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(pngPayload)
	}))
	defer server.Close()

	f := NewHTTPFetcher(HTTPFetcherOptions{Attempts: 3, Delay: 1})
	data, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Equal(t, pngPayload, data)
	require.Equal(t, int64(3), calls.Load())
}

func TestHTTPFetcherDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(HTTPFetcherOptions{Attempts: 3, Delay: 1}).Fetch(context.Background(), server.URL)
	require.ErrorIs(t, err, ErrDownload)
	require.Equal(t, int64(1), calls.Load())
}

func TestMigrateReportsFailuresAndContinues(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	writePost(t, root, "good.md", "![a]("+server.URL+"/a.png)")
	writePost(t, root, "bad.md", "![a]("+server.URL+"/missing.png)")
	writePost(t, root, "plain.md", "no images")

	result, err := newRehoster(t, root, nil).Migrate(context.Background(), []string{"bad.md", "good.md", "plain.md"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDownload))
	require.Equal(t, 3, result.Posts)
	require.Equal(t, 1, result.Rewritten)
	require.Equal(t, 1, result.Images)
	require.Len(t, result.Errors, 1)
}

func TestFetcherFuncAdapter(t *testing.T) {
	root := t.TempDir()
	r, err := New(Options{
		PostsRoot: root,
		Writer:    writer.New(writer.Options{}),
		Fetcher: FetcherFunc(func(context.Context, string) ([]byte, error) {
			return pngPayload, nil
		}),
	})
	require.NoError(t, err)

	body := "![a](https://cdn.test/x.png)"
	writePost(t, root, "a.md", body)
	result, err := r.Rehost(context.Background(), "a.md", body)
	require.NoError(t, err)
	require.Equal(t, "![a](images/"+md5Hex(pngPayload)+".png)", result.Content)
}
