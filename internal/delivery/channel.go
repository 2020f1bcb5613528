// Package delivery sends rendered mail through a list of sender accounts,
// failing over from one account to the next.
package delivery

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"wecounts/internal/model"
)

// Transport delivers one message using one sender account.
type Transport interface {
	Send(ctx context.Context, account model.SenderAccount, msg *Message) error
}

// Result summarises a broadcast.
type Result struct {
	Sent  int
	Total int
}

// Channel delivers messages with sender failover.
type Channel struct {
	transport   Transport
	senders     []model.SenderAccount
	displayName string
	limiter     *rate.Limiter
	log         *slog.Logger
}

// NewChannel creates a Channel trying senders in the given order.
func NewChannel(transport Transport, senders []model.SenderAccount, displayName string, log *slog.Logger) *Channel {
	return &Channel{
		transport:   transport,
		senders:     senders,
		displayName: displayName,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		log:         log,
	}
}

// SetRate limits how many deliveries a broadcast starts per second.
// A non-positive rps removes the limit.
func (c *Channel) SetRate(rps int) {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// Deliver sends msg to recipient, trying each sender account in order until
// one succeeds. It reports whether any account succeeded.
func (c *Channel) Deliver(ctx context.Context, msg *Message, recipient string) bool {
	for i, account := range c.senders {
		attempt := *msg
		attempt.FromName = c.displayName
		attempt.From = account.Username
		attempt.To = recipient

		err := c.transport.Send(ctx, account, &attempt)
		if err == nil {
			if i > 0 {
				c.log.Info("delivered with backup sender", "sender", account.Username, "recipient", recipient)
			}
			return true
		}
		c.log.Warn("send mail", "sender", account.Username, "recipient", recipient, "error", err)
	}
	c.log.Error("all sender accounts failed", "recipient", recipient, "senders", len(c.senders))
	return false
}

// Broadcast delivers one message per recipient concurrently and waits for
// every delivery to finish. build is called once per recipient.
//
// A started batch is not interrupted by cancellation of ctx: every recipient
// is attempted and each attempt is bounded by the transport's own timeout.
func (c *Channel) Broadcast(ctx context.Context, build func(recipient string) *Message, recipients []string) Result {
	ctx = context.WithoutCancel(ctx)

	var sent atomic.Int64
	var g errgroup.Group

	for _, r := range recipients {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warn("pace broadcast", "recipient", r, "error", err)
		}
		g.Go(func() error {
			if c.Deliver(ctx, build(r), r) {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Sent: int(sent.Load()), Total: len(recipients)}
	c.log.Info("broadcast completed", "sent", res.Sent, "total", res.Total)
	return res
}
