// Package fetcher lists feed items and downloads article content.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"

	"wecounts/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Mobile Safari/537.36",
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source lists the latest items of a feed and fetches item content.
type Source interface {
	FetchLatest(ctx context.Context, feed model.FeedSource, count int) ([]model.FeedItem, error)
	FetchContent(ctx context.Context, link string) (*model.Article, error)
}

// Lister returns the latest items of one kind of feed.
type Lister interface {
	Latest(ctx context.Context, feed model.FeedSource, count int) ([]model.FeedItem, error)
}

// ErrUnsupportedKind is returned for a feed kind with no registered lister.
var ErrUnsupportedKind = errors.New("unsupported feed kind")

// Fetcher routes listings to the lister registered for the feed kind and
// downloads content with a shared content fetcher.
type Fetcher struct {
	listers map[model.FeedKind]Lister
	content *ContentFetcher
}

// New creates a Fetcher.
func New(content *ContentFetcher, listers map[model.FeedKind]Lister) *Fetcher {
	return &Fetcher{listers: listers, content: content}
}

// FetchLatest implements Source.
func (f *Fetcher) FetchLatest(ctx context.Context, feed model.FeedSource, count int) ([]model.FeedItem, error) {
	l, ok := f.listers[feed.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, feed.Kind)
	}
	return l.Latest(ctx, feed, count)
}

// FetchContent implements Source.
func (f *Fetcher) FetchContent(ctx context.Context, link string) (*model.Article, error) {
	return f.content.Fetch(ctx, link)
}

// IsWebLink reports whether link can be downloaded over HTTP. Feed entries
// without a link are identified by GUID or a title hash, which cannot.
func IsWebLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func randomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))] //nolint:gosec // not security sensitive
}

// get performs a GET request and returns the response after checking the
// status. The caller must close the body.
func get(ctx context.Context, client HTTPClient, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", randomUserAgent())
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
