package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"wecounts/internal/config"
	"wecounts/internal/delivery"
	"wecounts/internal/model"
)

type staticSource []string

func (s staticSource) ReadPending(context.Context) ([]string, error) { return s, nil }

type fakePersister struct {
	saved [][]string
	err   error
}

func (p *fakePersister) Persist(m *config.Monitor) error {
	p.saved = append(p.saved, m.Recipients())
	return p.err
}

type fakeMailer struct {
	subjects []string
	sent     [][]string
}

func (m *fakeMailer) Broadcast(_ context.Context, build func(string) *delivery.Message, recipients []string) delivery.Result {
	for _, r := range recipients {
		m.subjects = append(m.subjects, build(r).Subject)
	}
	m.sent = append(m.sent, recipients)
	return delivery.Result{Sent: len(recipients), Total: len(recipients)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMonitor(recipients ...string) *config.Monitor {
	return &config.Monitor{
		Email: config.Email{
			Accounts:   []model.SenderAccount{{Username: "a@x.com"}},
			Recipients: recipients,
		},
	}
}

func newIngestor(src Source, cfg *config.Monitor) (*Ingestor, *fakePersister, *fakeMailer) {
	p := &fakePersister{}
	m := &fakeMailer{}
	return NewIngestor(src, cfg, p, m, delivery.NewRenderer("", discardLogger()), discardLogger()), p, m
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		raw           []string
		want          []string
		wantMalformed int
	}{
		{name: "empty", raw: nil, want: nil},
		{
			name:          "duplicates and malformed",
			raw:           []string{"a@x.com", "not-an-email", "a@x.com"},
			want:          []string{"a@x.com"},
			wantMalformed: 1,
		},
		{
			name:          "trimmed",
			raw:           []string{"  b@x.com ", "", "   ", "b@x.com"},
			want:          []string{"b@x.com"},
			wantMalformed: 2,
		},
		{
			name: "order kept",
			raw:  []string{"c@x.com", "a@x.com", "b@x.com"},
			want: []string{"c@x.com", "a@x.com", "b@x.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, malformed := Extract(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
			if malformed != tt.wantMalformed {
				t.Errorf("malformed = %d, want %d", malformed, tt.wantMalformed)
			}
		})
	}
}

func TestRunAddsAndWelcomes(t *testing.T) {
	cfg := newMonitor()
	in, p, m := newIngestor(staticSource{"a@x.com", "not-an-email", "a@x.com"}, cfg)

	added, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if diff := cmp.Diff([]string{"a@x.com"}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a@x.com"}, cfg.Recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"a@x.com"}}, p.saved); diff != "" {
		t.Errorf("persisted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{delivery.WelcomeSubject}, m.subjects); diff != "" {
		t.Errorf("welcome mails mismatch (-want +got):\n%s", diff)
	}
}

func TestRunKeepsExistingOrder(t *testing.T) {
	cfg := newMonitor("old@x.com", "b@x.com")
	in, _, m := newIngestor(staticSource{"b@x.com", "new@x.com"}, cfg)

	if _, err := in.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"old@x.com", "b@x.com", "new@x.com"}, cfg.Recipients()); diff != "" {
		t.Errorf("recipients mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"new@x.com"}}, m.sent); diff != "" {
		t.Errorf("welcomed mismatch (-want +got):\n%s", diff)
	}
}

func TestRunIdempotent(t *testing.T) {
	cfg := newMonitor()
	in, p, m := newIngestor(staticSource{"a@x.com", "b@x.com"}, cfg)

	if _, err := in.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	added, err := in.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(added) != 0 {
		t.Errorf("second run added %v", added)
	}
	if len(p.saved) != 1 {
		t.Errorf("config persisted %d times, want 1", len(p.saved))
	}
	if len(m.subjects) != 2 {
		t.Errorf("sent %d welcome mails, want 2", len(m.subjects))
	}
}

func TestRunPersistFailureRetried(t *testing.T) {
	cfg := newMonitor("old@x.com")
	in, p, m := newIngestor(staticSource{"a@x.com"}, cfg)
	p.err = errors.New("disk full")

	added, err := in.Run(context.Background())
	if err == nil {
		t.Fatal("expected persist error")
	}
	if len(added) != 0 || len(m.subjects) != 0 {
		t.Errorf("newcomer handled despite persist failure: added %v, mails %d", added, len(m.subjects))
	}
	if diff := cmp.Diff([]string{"old@x.com"}, cfg.Recipients()); diff != "" {
		t.Errorf("recipients not rolled back (-want +got):\n%s", diff)
	}

	p.err = nil
	added, err = in.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff([]string{"a@x.com"}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"old@x.com", "a@x.com"}, {"old@x.com", "a@x.com"}}, p.saved); diff != "" {
		t.Errorf("persist attempts mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{delivery.WelcomeSubject}, m.subjects); diff != "" {
		t.Errorf("welcome mails mismatch (-want +got):\n%s", diff)
	}
}

func TestRunWithFilePersister(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := &config.Monitor{
		Feeds:    config.FeedList{{Name: "Daily", Kind: model.KindWeChat}},
		Keywords: []string{"讲座"},
		Email: config.Email{
			SMTPServer: "smtp.example.com",
			Accounts:   []model.SenderAccount{{Username: "a@x.com", Password: "pw"}},
			Recipients: []string{"old@x.com"},
		},
		IntervalHours: 1,
	}

	csvPath := filepath.Join(dir, "reg.csv")
	if err := os.WriteFile(csvPath, []byte("姓名,邮箱\n张三,new@x.com\n李四,\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	in := NewIngestor(CSVSource{Path: csvPath}, cfg, config.FilePersister{Path: cfgPath}, &fakeMailer{},
		delivery.NewRenderer("", discardLogger()), discardLogger())
	if _, err := in.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	loaded, err := config.LoadMonitor(cfgPath)
	if err != nil {
		t.Fatalf("LoadMonitor: %v", err)
	}
	if diff := cmp.Diff([]string{"old@x.com", "new@x.com"}, loaded.Recipients()); diff != "" {
		t.Errorf("persisted recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVSource(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr error
	}{
		{name: "chinese header", content: "时间,邮箱\n1,a@x.com\n2, b@x.com \n", want: []string{"a@x.com", " b@x.com "}},
		{name: "english header", content: "Email,name\na@x.com,A\n", want: []string{"a@x.com"}},
		{name: "bom", content: "\ufeff邮箱\na@x.com\n", want: []string{"a@x.com"}},
		{name: "short row", content: "name,邮箱\nonly-name\n", want: []string{""}},
		{name: "empty file", content: "", want: nil},
		{name: "no column", content: "name,phone\nA,1\n", wantErr: ErrNoEmailColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "reg.csv")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := CSVSource{Path: path}.ReadPending(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadPending: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadPending() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	got, err := CSVSource{Path: filepath.Join(t.TempDir(), "reg.csv")}.ReadPending(context.Background())
	if err != nil {
		t.Fatalf("ReadPending: %v", err)
	}
	if got != nil {
		t.Errorf("expected no registrations, got %v", got)
	}
}
