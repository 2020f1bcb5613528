package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"wecounts/internal/model"
)

// Placeholders used when a WeChat page lacks a title or author.
const (
	MissingTitle  = "未获取到标题"
	MissingAuthor = "未获取到作者"
)

// ErrEmptyContent is returned when a page yields no readable content.
var ErrEmptyContent = errors.New("no content extracted")

// ContentFetcher downloads an article page and extracts its text.
type ContentFetcher struct {
	client HTTPClient
}

// NewContentFetcher creates a ContentFetcher with the given HTTP client.
func NewContentFetcher(client HTTPClient) *ContentFetcher {
	return &ContentFetcher{client: client}
}

// Fetch downloads link and extracts the article.
func (c *ContentFetcher) Fetch(ctx context.Context, link string) (*model.Article, error) {
	resp, err := get(ctx, c.client, link, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	body, err := readLimited(r)
	if err != nil {
		return nil, err
	}
	return Extract(body, link)
}

// Extract parses a UTF-8 article page. WeChat pages are read through their
// fixed element ids; other pages go through readability.
func Extract(page []byte, link string) (*model.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	if content := doc.Find("#js_content"); content.Length() > 0 {
		a := &model.Article{
			Title:  strings.TrimSpace(doc.Find("#activity-name").Text()),
			Author: strings.TrimSpace(doc.Find("#js_name").Text()),
			Body:   textLines(content),
			URL:    link,
		}
		if a.Title == "" {
			a.Title = MissingTitle
		}
		if a.Author == "" {
			a.Author = MissingAuthor
		}
		return a, nil
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("parse link: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	body := strings.TrimSpace(article.TextContent)
	if body == "" && article.Title == "" {
		return nil, ErrEmptyContent
	}
	return &model.Article{
		Title:  strings.TrimSpace(article.Title),
		Author: strings.TrimSpace(article.Byline),
		Body:   body,
		URL:    link,
	}, nil
}

// textLines joins the non-blank text nodes under sel with newlines, skipping
// scripts and styles.
func textLines(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}
