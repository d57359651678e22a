// Package notify pushes operational events (batch summaries, pairing
// prompts, disconnects) to an admin Telegram chat. It is fire-and-forget:
// a full queue drops the notification rather than ever blocking dispatch.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"blastbot/internal/dispatch"
	logx "blastbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Token   string
	ChatID  int64

	// RatePerSec caps outgoing notifications. <=0 defaults to 1.
	RatePerSec int
}

type Notifier struct {
	log     logx.Logger
	bot     *tele.Bot
	chat    tele.ChatID
	limiter *rate.Limiter

	queue  chan string
	stop   context.CancelFunc
	doneWG sync.WaitGroup
}

// New returns (nil, nil) when the notifier is disabled; callers treat a nil
// Notifier as a no-op.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, errors.New("notify: token and chat_id are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		log:     log,
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		queue:   make(chan string, 64),
		stop:    cancel,
	}
	n.doneWG.Add(1)
	go func() {
		defer n.doneWG.Done()
		n.worker(ctx)
	}()
	return n, nil
}

func (n *Notifier) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := n.bot.Send(n.chat, msg); err != nil {
				n.log.Warn("admin notification failed", logx.Err(err))
			}
		}
	}
}

func (n *Notifier) enqueue(msg string) {
	if n == nil {
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.log.Debug("admin notification dropped: queue full")
	}
}

// Summary reports a finished batch run.
func (n *Notifier) Summary(name string, sum dispatch.Summary) {
	n.enqueue(fmt.Sprintf("Batch %q finished: %d sent, %d failed of %d total.",
		name, sum.Sent, sum.Failed, sum.Total))
}

// Event reports a transport lifecycle change worth an operator's attention.
func (n *Notifier) Event(text string) {
	n.enqueue(text)
}

// Close stops the worker. Queued notifications that were not yet sent are
// dropped.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.stop()
	n.doneWG.Wait()
}
