package bot

import (
	"fmt"
	"strings"

	"wecounts/internal/model"
)

// FormatAlert formats a keyword alert as a Telegram message.
func FormatAlert(feed string, article *model.Article, keywords []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", feed)
	b.WriteString(article.Title)
	if article.Author != "" {
		fmt.Fprintf(&b, "\n作者: %s", article.Author)
	}
	fmt.Fprintf(&b, "\n\n关键词: %s", strings.Join(keywords, ", "))
	if article.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(article.URL)
	}
	return b.String()
}

// FormatCycleSummary formats the outcome of a monitoring cycle.
func FormatCycleSummary(s model.CycleStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monitoring cycle: %d feeds", s.Feeds)
	if s.FeedErrors > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.FeedErrors)
	}
	fmt.Fprintf(&b, "\nNew items: %d, too old: %d, matched: %d", s.NewItems, s.TooOld, s.Matched)
	if s.MailsTotal > 0 {
		fmt.Fprintf(&b, "\nMails sent: %d/%d", s.MailsSent, s.MailsTotal)
	}
	fmt.Fprintf(&b, "\nChecked items: %d", s.StoreSize)
	return b.String()
}
