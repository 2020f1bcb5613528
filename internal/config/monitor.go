package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"wecounts/internal/model"
)

// Defaults for optional monitor settings.
const (
	DefaultDisplayName          = "WecountsMonitor"
	DefaultSMTPPort             = 465
	DefaultFetchCount           = 1
	DefaultFeedDelay            = 30 * time.Second
	DefaultRegistrationInterval = "@every 3h"
)

// ErrNoSenders is returned when the config lists no sender accounts.
var ErrNoSenders = errors.New("email.accounts must list at least one sender")

// Email holds the delivery settings.
type Email struct {
	SMTPServer  string                `json:"smtp_server"`
	SMTPPort    int                   `json:"smtp_port,omitempty"`
	DisplayName string                `json:"display_name,omitempty"`
	ImagePath   string                `json:"image_path,omitempty"`
	SendRate    int                   `json:"send_rate,omitempty"`
	Accounts    []model.SenderAccount `json:"accounts"`
	Recipients  []string              `json:"recipients"`
}

// Monitor is the monitor configuration file. The scheduler owns the single
// in-memory instance; only the registration ingestor changes Recipients.
type Monitor struct {
	Feeds                FeedList `json:"accounts"`
	Keywords             []string `json:"keywords"`
	Email                Email    `json:"email"`
	IntervalHours        int      `json:"interval_hours,omitempty"`
	PollInterval         string   `json:"poll_interval,omitempty"`
	RegistrationInterval string   `json:"registration_interval,omitempty"`
	FetchCount           int      `json:"fetch_count,omitempty"`
	FeedDelay            string   `json:"feed_delay,omitempty"`
}

// LoadMonitor reads and validates the monitor config at path. JSON and YAML
// are accepted; the format is chosen by file extension.
func LoadMonitor(path string) (*Monitor, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var m Monitor
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("decode config: trailing data")
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks that the config is usable as is.
func (m *Monitor) Validate() error {
	if len(m.Feeds) == 0 {
		return errors.New("accounts must list at least one feed")
	}
	for i, f := range m.Feeds {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("feed at index %d has no name", i)
		}
		switch f.Kind {
		case model.KindWeChat:
		case model.KindRSS:
			if f.URL == "" {
				return fmt.Errorf("rss feed %q has no url", f.Name)
			}
		default:
			return fmt.Errorf("feed %q has unknown kind %q", f.Name, f.Kind)
		}
	}
	if len(m.Keywords) == 0 {
		return errors.New("keywords must not be empty")
	}
	if m.Email.SMTPServer == "" {
		return errors.New("email.smtp_server is required")
	}
	if len(m.Email.Accounts) == 0 {
		return ErrNoSenders
	}
	for i, a := range m.Email.Accounts {
		if a.Username == "" {
			return fmt.Errorf("email.accounts[%d] has no username", i)
		}
	}
	if m.IntervalHours < 0 || m.FetchCount < 0 || m.Email.SendRate < 0 {
		return errors.New("interval_hours, fetch_count and email.send_rate must not be negative")
	}
	if m.FeedDelay != "" {
		d, err := time.ParseDuration(m.FeedDelay)
		if err != nil {
			return fmt.Errorf("feed_delay: %w", err)
		}
		if d < 0 {
			return errors.New("feed_delay must not be negative")
		}
	}
	return nil
}

// PollSpec returns the monitoring schedule spec.
func (m *Monitor) PollSpec() string {
	if m.PollInterval != "" {
		return m.PollInterval
	}
	hours := m.IntervalHours
	if hours <= 0 {
		hours = 1
	}
	return fmt.Sprintf("@every %dh", hours)
}

// RegistrationSpec returns the registration-ingestion schedule spec.
func (m *Monitor) RegistrationSpec() string {
	if m.RegistrationInterval != "" {
		return m.RegistrationInterval
	}
	return DefaultRegistrationInterval
}

// Count returns how many latest items to fetch per feed.
func (m *Monitor) Count() int {
	if m.FetchCount <= 0 {
		return DefaultFetchCount
	}
	return m.FetchCount
}

// InterFeedDelay returns the pause between two feeds.
func (m *Monitor) InterFeedDelay() time.Duration {
	if m.FeedDelay == "" {
		return DefaultFeedDelay
	}
	d, err := time.ParseDuration(m.FeedDelay)
	if err != nil {
		return DefaultFeedDelay
	}
	return d
}

// SenderName returns the display name used in the From header.
func (m *Monitor) SenderName() string {
	if m.Email.DisplayName == "" {
		return DefaultDisplayName
	}
	return m.Email.DisplayName
}

// Port returns the SMTP port.
func (m *Monitor) Port() int {
	if m.Email.SMTPPort <= 0 {
		return DefaultSMTPPort
	}
	return m.Email.SMTPPort
}

// HasRecipient reports whether addr is already a recipient.
func (m *Monitor) HasRecipient(addr string) bool {
	return slices.Contains(m.Email.Recipients, addr)
}

// Recipients returns a copy of the current recipient list.
func (m *Monitor) Recipients() []string {
	return slices.Clone(m.Email.Recipients)
}

// SetRecipients replaces the recipient list with a copy of addrs.
func (m *Monitor) SetRecipients(addrs []string) {
	m.Email.Recipients = slices.Clone(addrs)
}

// AddRecipients appends the addresses not yet present and returns the ones
// that were added.
func (m *Monitor) AddRecipients(addrs []string) []string {
	var added []string
	for _, a := range addrs {
		if m.HasRecipient(a) {
			continue
		}
		m.Email.Recipients = append(m.Email.Recipients, a)
		added = append(added, a)
	}
	return added
}

// FeedList is the list of feeds. In the file each entry is either a plain
// WeChat account name or an object with name, kind and url.
type FeedList []model.FeedSource

// UnmarshalJSON implements json.Unmarshaler.
func (l *FeedList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	out := make(FeedList, 0, len(raw))
	for i, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			out = append(out, model.FeedSource{Name: name, Kind: model.KindWeChat})
			continue
		}
		var src model.FeedSource
		if err := json.Unmarshal(r, &src); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		if src.Kind == "" {
			src.Kind = model.KindWeChat
		}
		out = append(out, src)
	}
	*l = out
	return nil
}

// MarshalJSON implements json.Marshaler. Plain WeChat accounts are written
// back as strings.
func (l FeedList) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(l))
	for _, f := range l {
		if f.Kind == model.KindWeChat && f.URL == "" {
			out = append(out, f.Name)
			continue
		}
		out = append(out, f)
	}
	return json.Marshal(out)
}
