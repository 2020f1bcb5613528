package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wecounts/internal/model"
)

// DefaultMaxAge is how old an item may be and still be evaluated.
const DefaultMaxAge = 8 * time.Hour

// ErrUnparsedTime marks an item whose publish time could not be read.
var ErrUnparsedTime = errors.New("unparsed publish time")

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// IsFresh reports whether item was published within maxAge of now.
//
// An item whose publish time cannot be determined is treated as fresh; the
// returned error wraps ErrUnparsedTime so the caller can log it.
func IsFresh(item model.FeedItem, now time.Time, maxAge time.Duration) (bool, error) {
	published, err := PublishTime(item)
	if err != nil {
		return true, err
	}
	return now.Sub(published) <= maxAge, nil
}

// PublishTime returns the item's publish time, parsing PublishedRaw when
// PublishedAt is unset. Textual times without a zone are read as local time.
func PublishTime(item model.FeedItem) (time.Time, error) {
	if !item.PublishedAt.IsZero() {
		return item.PublishedAt, nil
	}
	raw := strings.TrimSpace(item.PublishedRaw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparsedTime)
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsedTime, raw)
}
