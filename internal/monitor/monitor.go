// Package monitor runs one pass over every configured feed, alerting
// recipients about new items that mention a keyword.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wecounts/internal/config"
	"wecounts/internal/delivery"
	"wecounts/internal/fetcher"
	"wecounts/internal/filter"
	"wecounts/internal/model"
	"wecounts/internal/storage"
)

// Mailer broadcasts one message per recipient.
type Mailer interface {
	Broadcast(ctx context.Context, build func(recipient string) *delivery.Message, recipients []string) delivery.Result
}

// Notifier mirrors alerts and cycle summaries to a secondary channel.
type Notifier interface {
	NotifyAlert(ctx context.Context, feed string, article *model.Article, keywords []string)
	NotifyCycle(ctx context.Context, stats model.CycleStats)
}

// Cycle checks every feed once.
type Cycle struct {
	cfg      *config.Monitor
	source   fetcher.Source
	store    *storage.Store
	mailer   Mailer
	renderer *delivery.Renderer
	notifier Notifier
	log      *slog.Logger

	maxAge time.Duration
	now    func() time.Time
}

// New creates a Cycle.
func New(cfg *config.Monitor, source fetcher.Source, store *storage.Store, mailer Mailer, renderer *delivery.Renderer, log *slog.Logger) *Cycle {
	return &Cycle{
		cfg:      cfg,
		source:   source,
		store:    store,
		mailer:   mailer,
		renderer: renderer,
		log:      log,
		maxAge:   filter.DefaultMaxAge,
		now:      time.Now,
	}
}

// SetNotifier mirrors alerts and summaries to n.
func (c *Cycle) SetNotifier(n Notifier) {
	c.notifier = n
}

// Run checks every feed in configured order and flushes the dedup store.
// A failing feed is logged and skipped. Run returns an error only when the
// store cannot be flushed or ctx is cancelled.
func (c *Cycle) Run(ctx context.Context) (model.CycleStats, error) {
	var stats model.CycleStats
	feeds := c.cfg.Feeds
	delay := c.cfg.InterFeedDelay()

	c.log.Info("monitoring cycle started", "feeds", len(feeds))

	for i, feed := range feeds {
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}
		stats.Feeds++
		if err := c.checkFeed(ctx, feed, &stats); err != nil {
			stats.FeedErrors++
			c.log.Error("check feed", "feed", feed.Name, "error", err)
		}

		if i < len(feeds)-1 && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				stats.Interrupted = true
				break
			}
		}
	}

	// Flush on interruption too; the items recorded so far stay checked.
	flushErr := c.store.Flush(context.WithoutCancel(ctx))
	stats.StoreSize = c.store.Len()

	c.log.Info("monitoring cycle completed",
		"feeds", stats.Feeds,
		"feed_errors", stats.FeedErrors,
		"new_items", stats.NewItems,
		"too_old", stats.TooOld,
		"matched", stats.Matched,
		"mails_sent", stats.MailsSent,
		"mails_total", stats.MailsTotal,
		"checked_total", stats.StoreSize,
	)
	if c.notifier != nil && !stats.Interrupted {
		c.notifier.NotifyCycle(ctx, stats)
	}

	if flushErr != nil {
		return stats, fmt.Errorf("flush checked items: %w", flushErr)
	}
	if stats.Interrupted {
		return stats, ctx.Err()
	}
	return stats, nil
}

func (c *Cycle) checkFeed(ctx context.Context, feed model.FeedSource, stats *model.CycleStats) error {
	items, err := c.source.FetchLatest(ctx, feed, c.cfg.Count())
	if err != nil {
		return fmt.Errorf("fetch latest: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if item.Link == "" || c.store.Has(item.Link) {
			continue
		}
		stats.NewItems++
		c.log.Info("new item", "feed", feed.Name, "title", item.Title, "link", item.Link)
		c.checkItem(ctx, feed, item, stats)
	}
	return nil
}

func (c *Cycle) checkItem(ctx context.Context, feed model.FeedSource, item model.FeedItem, stats *model.CycleStats) {
	now := c.now()

	fresh, err := filter.IsFresh(item, now, c.maxAge)
	if errors.Is(err, filter.ErrUnparsedTime) {
		c.log.Warn("unparsed publish time, treating as fresh", "feed", feed.Name, "link", item.Link, "raw", item.PublishedRaw)
	}
	if !fresh {
		stats.TooOld++
		c.store.Record(item.Link, item.Title, now, model.SkipTooOld)
		c.log.Info("item filtered", "feed", feed.Name, "link", item.Link, "reason", model.SkipTooOld)
		return
	}

	article, err := c.content(ctx, item)
	if err != nil {
		// Not recorded; retried next cycle.
		c.log.Error("fetch content", "feed", feed.Name, "link", item.Link, "error", err)
		return
	}
	c.store.Record(item.Link, item.Title, now, model.SkipNone)

	matched := filter.Union(
		filter.Match(article.Title, c.cfg.Keywords),
		filter.Match(article.Body, c.cfg.Keywords),
	)
	if len(matched) == 0 {
		c.log.Debug("no keywords matched", "feed", feed.Name, "link", item.Link)
		return
	}
	stats.Matched++
	c.log.Info("keywords matched", "feed", feed.Name, "title", article.Title, "keywords", matched, "link", item.Link)

	msg, err := c.renderer.Alert(article, matched)
	if err != nil {
		c.log.Error("render alert", "link", item.Link, "error", err)
		return
	}
	// The item is already recorded, so the alert batch must run to the end
	// even when shutdown starts.
	res := c.mailer.Broadcast(context.WithoutCancel(ctx), func(string) *delivery.Message { return msg }, c.cfg.Recipients())
	stats.MailsSent += res.Sent
	stats.MailsTotal += res.Total
	c.log.Info("alert delivered", "link", item.Link, "sent", res.Sent, "total", res.Total)

	if c.notifier != nil {
		c.notifier.NotifyAlert(context.WithoutCancel(ctx), feed.Name, article, matched)
	}
}

// content downloads the item's article. Items identified by something other
// than a web link are evaluated on what the listing carried.
func (c *Cycle) content(ctx context.Context, item model.FeedItem) (*model.Article, error) {
	if !fetcher.IsWebLink(item.Link) {
		return &model.Article{Title: item.Title, Body: item.Summary, URL: item.Link}, nil
	}
	return c.source.FetchContent(ctx, item.Link)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
