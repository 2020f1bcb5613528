package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jessevdk/go-flags"

	"wecounts/internal/bot"
	"wecounts/internal/config"
	"wecounts/internal/delivery"
	"wecounts/internal/fetcher"
	"wecounts/internal/model"
	"wecounts/internal/monitor"
	"wecounts/internal/registration"
	"wecounts/internal/scheduler"
	"wecounts/internal/storage"
)

const httpTimeout = 30 * time.Second

type options struct {
	Once bool `long:"once" description:"Run registration and one monitoring cycle, then exit"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	settings, err := config.Load()
	if err != nil {
		slog.Error("load settings", "error", err)
		os.Exit(1)
	}

	log, closeLog, err := newLogger(settings.LogLevel, settings.LogDir)
	if err != nil {
		slog.Error("open log file", "dir", settings.LogDir, "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	cfg, err := config.LoadMonitor(settings.ConfigPath)
	if err != nil {
		log.Error("load config", "path", settings.ConfigPath, "error", err)
		os.Exit(1)
	}
	pollSchedule, err := scheduler.ParseSchedule(cfg.PollSpec())
	if err != nil {
		log.Error("poll schedule", "error", err)
		os.Exit(1)
	}
	regSchedule, err := scheduler.ParseSchedule(cfg.RegistrationSpec())
	if err != nil {
		log.Error("registration schedule", "error", err)
		os.Exit(1)
	}

	backend, err := openBackend(settings)
	if err != nil {
		log.Error("open dedup backend", "backend", settings.DedupBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := storage.NewStore(ctx, backend, log)
	source := newSource(settings, log)

	channel := delivery.NewChannel(
		&delivery.SMTPTransport{Host: cfg.Email.SMTPServer, Port: cfg.Port()},
		cfg.Email.Accounts, cfg.SenderName(), log,
	)
	channel.SetRate(cfg.Email.SendRate)
	renderer := delivery.NewRenderer(cfg.Email.ImagePath, log)

	cycle := monitor.New(cfg, source, store, channel, renderer, log)
	if settings.TelegramEnabled() {
		b, err := bot.New(settings.TelegramBotToken, settings.TelegramChatIDs, log)
		if err != nil {
			log.Warn("telegram mirror disabled", "error", err)
		} else {
			cycle.SetNotifier(b)
		}
	}

	ingestor := registration.NewIngestor(
		registration.CSVSource{Path: settings.RegistrationPath},
		cfg, config.FilePersister{Path: settings.ConfigPath}, channel, renderer, log,
	)

	runRegistration := func(ctx context.Context) error {
		_, err := ingestor.Run(ctx)
		return err
	}
	runMonitoring := func(ctx context.Context) error {
		_, err := cycle.Run(ctx)
		return err
	}

	log.Info("starting monitor",
		"feeds", len(cfg.Feeds),
		"keywords", len(cfg.Keywords),
		"senders", len(cfg.Email.Accounts),
		"recipients", len(cfg.Email.Recipients),
		"poll", cfg.PollSpec(),
		"registration", cfg.RegistrationSpec(),
	)

	if opts.Once {
		if err := runRegistration(ctx); err != nil {
			log.Error("registration", "error", err)
		}
		if err := runMonitoring(ctx); err != nil {
			log.Error("monitoring", "error", err)
			os.Exit(1)
		}
		return
	}

	sched := scheduler.New(log)
	sched.SetTickInterval(settings.TickInterval)
	sched.SetCooldown(settings.Cooldown)
	sched.Add("registration", regSchedule, runRegistration)
	sched.Add("monitoring", pollSchedule, runMonitoring)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify ready", "error", err)
	}

	sched.Run(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("monitor stopped")
}

func openBackend(s *config.Settings) (storage.Backend, error) {
	if s.DedupBackend == config.BackendJSON {
		return storage.NewJSONFile(s.DedupJSONPath)
	}
	if dir := filepath.Dir(s.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return storage.NewSQLite(s.DatabasePath)
}

func newSource(s *config.Settings, log *slog.Logger) *fetcher.Fetcher {
	client := &http.Client{Timeout: httpTimeout}

	creds, err := fetcher.LoadCredentials(s.CookiePath, s.FakeIDPath)
	if err != nil {
		log.Warn("load wechat credentials", "error", err)
	}
	if creds.Token == "" {
		log.Warn("no wechat token, wechat feeds will fail until cookies are refreshed", "path", s.CookiePath)
	}

	return fetcher.New(fetcher.NewContentFetcher(client), map[model.FeedKind]fetcher.Lister{
		model.KindWeChat: fetcher.NewWeChat(client, creds),
		model.KindRSS:    fetcher.NewRSS(client),
	})
}

func newLogger(level, dir string) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if dir == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }, nil
	}

	f, err := newDailyFile(dir)
	if err != nil {
		return nil, nil, err
	}
	w := io.MultiWriter(os.Stderr, f)
	return slog.New(slog.NewTextHandler(w, opts)), f.Close, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
