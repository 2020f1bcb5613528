package registration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wecounts/internal/config"
	"wecounts/internal/delivery"
)

// Mailer broadcasts one message per recipient.
type Mailer interface {
	Broadcast(ctx context.Context, build func(recipient string) *delivery.Message, recipients []string) delivery.Result
}

// Ingestor adds newly registered addresses to the monitor config.
type Ingestor struct {
	source    Source
	cfg       *config.Monitor
	persister config.Persister
	mailer    Mailer
	renderer  *delivery.Renderer
	log       *slog.Logger
}

// NewIngestor creates an Ingestor. It is the only writer of cfg's recipients.
func NewIngestor(source Source, cfg *config.Monitor, persister config.Persister, mailer Mailer, renderer *delivery.Renderer, log *slog.Logger) *Ingestor {
	return &Ingestor{
		source:    source,
		cfg:       cfg,
		persister: persister,
		mailer:    mailer,
		renderer:  renderer,
		log:       log,
	}
}

// Run ingests pending registrations and returns the addresses added.
// When the config cannot be persisted the additions are rolled back and no
// welcome is sent, so the next run retries both.
func (in *Ingestor) Run(ctx context.Context) ([]string, error) {
	raw, err := in.source.ReadPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}

	valid, malformed := Extract(raw)
	if malformed > 0 {
		in.log.Info("skipped malformed registrations", "count", malformed)
	}

	prev := in.cfg.Recipients()
	added := in.cfg.AddRecipients(valid)
	if len(added) == 0 {
		in.log.Info("no new registrations", "rows", len(raw), "recipients", len(prev))
		return nil, nil
	}

	if err := in.persister.Persist(in.cfg); err != nil {
		in.cfg.SetRecipients(prev)
		return nil, fmt.Errorf("persist config: %w", err)
	}
	in.log.Info("added recipients", "count", len(added), "recipients", len(in.cfg.Email.Recipients))

	msg, err := in.renderer.Welcome()
	if err != nil {
		return added, err
	}
	res := in.mailer.Broadcast(ctx, func(string) *delivery.Message { return msg }, added)
	in.log.Info("welcome mails delivered", "sent", res.Sent, "total", res.Total)
	return added, nil
}

// Extract returns the trimmed, deduplicated addresses in raw that contain
// '@', in first-seen order, and the number of values dropped as malformed.
func Extract(raw []string) ([]string, int) {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	malformed := 0
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" || !strings.Contains(v, "@") {
			malformed++
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, malformed
}
