// Package model defines the domain types used across the application.
package model

import "time"

// FeedKind selects how a feed is fetched.
type FeedKind string

// Supported feed kinds.
const (
	KindWeChat FeedKind = "wechat"
	KindRSS    FeedKind = "rss"
)

// FeedSource is a named feed to poll.
type FeedSource struct {
	Name string   `json:"name" yaml:"name"`
	Kind FeedKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	URL  string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// FeedItem is a single entry returned by a feed listing.
// Items are identified by Link.
type FeedItem struct {
	Title string
	Link  string
	// PublishedAt is zero when the source only gave a textual timestamp.
	PublishedAt  time.Time
	PublishedRaw string
	// Summary is the text the listing carried for the item, if any.
	Summary string
}

// SkipReason explains why a checked item was not evaluated for keywords.
type SkipReason string

// Supported skip reasons. SkipNone means the content was evaluated.
const (
	SkipNone   SkipReason = ""
	SkipTooOld SkipReason = "too_old"
)

// CheckedRecord tracks an item that has already been evaluated.
type CheckedRecord struct {
	Link       string
	Title      string
	CheckedAt  time.Time
	SkipReason SkipReason
}

// Article is the full content of a feed item.
type Article struct {
	Title  string
	Author string
	Body   string
	URL    string
}

// SenderAccount is a credentialed SMTP identity.
type SenderAccount struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// CycleStats summarises one monitoring cycle.
type CycleStats struct {
	Feeds       int
	FeedErrors  int
	NewItems    int
	TooOld      int
	Matched     int
	MailsSent   int
	MailsTotal  int
	StoreSize   int
	Interrupted bool
}
