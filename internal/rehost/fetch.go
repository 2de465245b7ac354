package rehost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// maxImageBytes caps a single download.
const maxImageBytes = 32 << 20

var ErrDownload = errors.New("rehost: download failed")

// Fetcher downloads a remote payload.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// HTTPFetcherOptions configures HTTPFetcher.
type HTTPFetcherOptions struct {
	Client   *http.Client
	Timeout  time.Duration
	Attempts uint
	Delay    time.Duration
}

// HTTPFetcher downloads over HTTP with a per-attempt timeout. Non-2xx
// responses are failures; client errors (4xx) are not retried.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	attempts uint
	delay    time.Duration
}

// NewHTTPFetcher returns a fetcher; zero options mean a 30s timeout and a
// single attempt.
func NewHTTPFetcher(opts HTTPFetcherOptions) *HTTPFetcher {
	f := &HTTPFetcher{
		client:   opts.Client,
		timeout:  opts.Timeout,
		attempts: opts.Attempts,
		delay:    opts.Delay,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = 30 * time.Second
	}
	if f.attempts == 0 {
		f.attempts = 1
	}
	if f.delay <= 0 {
		f.delay = 500 * time.Millisecond
	}
	return f
}

type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.code, e.url)
}

// Fetch downloads url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := retry.DoWithData(
		func() ([]byte, error) { return f.fetchOnce(ctx, url) },
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var status *statusError
			if errors.As(err, &status) {
				return status.code >= http.StatusInternalServerError || status.code == http.StatusTooManyRequests
			}
			return !errors.Is(err, context.Canceled)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownload, url, err)
	}
	return data, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{url: url, code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("payload larger than %d bytes", maxImageBytes))
	}
	return data, nil
}
