package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/mmcdole/gofeed"

	"wecounts/internal/model"
)

// RSS lists the latest entries of RSS, Atom and JSON feeds.
type RSS struct {
	client HTTPClient
	parser *gofeed.Parser
}

// NewRSS creates an RSS lister with the given HTTP client.
func NewRSS(client HTTPClient) *RSS {
	return &RSS{client: client, parser: gofeed.NewParser()}
}

// Fetch downloads and parses the feed at url.
func (r *RSS) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	resp, err := get(ctx, r.client, url, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	feed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Latest implements Lister. Entries are returned in feed order.
func (r *RSS) Latest(ctx context.Context, feed model.FeedSource, count int) ([]model.FeedItem, error) {
	parsed, err := r.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, err
	}

	entries := parsed.Items
	if count > 0 && len(entries) > count {
		entries = entries[:count]
	}

	items := make([]model.FeedItem, 0, len(entries))
	for _, e := range entries {
		item := model.FeedItem{
			Title:        e.Title,
			Link:         ItemLink(e),
			PublishedRaw: e.Published,
			Summary:      entrySummary(e),
		}
		switch {
		case e.PublishedParsed != nil:
			item.PublishedAt = *e.PublishedParsed
		case e.UpdatedParsed != nil:
			item.PublishedAt = *e.UpdatedParsed
		}
		items = append(items, item)
	}
	return items, nil
}

// ItemLink returns the identity of a feed entry: its link, else its GUID,
// else a SHA-256 hash of title.
func ItemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func entrySummary(e *gofeed.Item) string {
	if e.Content != "" {
		return e.Content
	}
	return e.Description
}
