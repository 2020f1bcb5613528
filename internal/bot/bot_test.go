package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"wecounts/internal/model"
)

type sentMsg struct {
	ChatID int64
	Text   string
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, m.err
}

func newTestBot(chatIDs ...int64) (*Bot, *mockAPI) {
	api := &mockAPI{}
	return &Bot{api: api, chatIDs: chatIDs, log: slog.New(slog.NewTextHandler(io.Discard, nil))}, api
}

var testArticle = &model.Article{
	Title:  "形势与政策讲座报名",
	Author: "学生会",
	URL:    "https://mp.weixin.qq.com/s/abc",
}

func TestFormatAlert(t *testing.T) {
	got := FormatAlert("人大青年", testArticle, []string{"形势与政策", "讲座"})
	want := "[人大青年]\n\n形势与政策讲座报名\n作者: 学生会\n\n关键词: 形势与政策, 讲座\n\nhttps://mp.weixin.qq.com/s/abc"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatAlert() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatCycleSummary(t *testing.T) {
	tests := []struct {
		name  string
		stats model.CycleStats
		want  string
	}{
		{
			name:  "quiet",
			stats: model.CycleStats{Feeds: 3, StoreSize: 10},
			want:  "Monitoring cycle: 3 feeds\nNew items: 0, too old: 0, matched: 0\nChecked items: 10",
		},
		{
			name:  "matched with errors",
			stats: model.CycleStats{Feeds: 3, FeedErrors: 1, NewItems: 2, TooOld: 1, Matched: 1, MailsSent: 4, MailsTotal: 5, StoreSize: 12},
			want:  "Monitoring cycle: 3 feeds (1 failed)\nNew items: 2, too old: 1, matched: 1\nMails sent: 4/5\nChecked items: 12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FormatCycleSummary(tt.stats)); diff != "" {
				t.Errorf("FormatCycleSummary() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNotifyAlertAllChats(t *testing.T) {
	b, api := newTestBot(100, 200)

	b.NotifyAlert(context.Background(), "人大青年", testArticle, []string{"讲座"})

	if len(api.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(api.sent))
	}
	if diff := cmp.Diff([]int64{100, 200}, []int64{api.sent[0].ChatID, api.sent[1].ChatID}); diff != "" {
		t.Errorf("chat ids mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyCycleQuietSkipped(t *testing.T) {
	b, api := newTestBot(100)

	b.NotifyCycle(context.Background(), model.CycleStats{Feeds: 2})
	if len(api.sent) != 0 {
		t.Errorf("quiet cycle posted %d messages", len(api.sent))
	}

	b.NotifyCycle(context.Background(), model.CycleStats{Feeds: 2, FeedErrors: 1})
	if len(api.sent) != 1 {
		t.Errorf("cycle with errors posted %d messages, want 1", len(api.sent))
	}
}

func TestSendFailureContinues(t *testing.T) {
	b, api := newTestBot(100, 200)
	api.err = errors.New("chat not found")

	b.NotifyAlert(context.Background(), "feed", testArticle, []string{"x"})

	if len(api.sent) != 2 {
		t.Errorf("expected both chats attempted, got %d", len(api.sent))
	}
}
