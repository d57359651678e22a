// Package dispatch drives per-contact message delivery over a transport
// session: text resolution, placeholder substitution, recipient checks and
// the strictly sequential, delay-paced batch loop.
package dispatch

import (
	"context"
	"strings"
	"time"

	"blastbot/internal/contacts"
	"blastbot/internal/transport"
	logx "blastbot/pkg/logx"
)

// Placeholder is the single template token substituted with the contact name.
const Placeholder = "{name}"

type Engine struct {
	log logx.Logger

	// sleep is swappable so tests can count pauses without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{log: log, sleep: sleepCtx}
}

// SendOne performs a single dispatch attempt and reports whether the message
// was delivered. Transport faults are logged with the contact identity and
// folded into a false result; they never propagate.
//
// The outgoing text is contact.Message falling back to defaultMessage. An
// empty resolved text is a normal "nothing to send" outcome, not an error.
// Only the first occurrence of the {name} token is substituted, matching the
// single-substitution behavior callers rely on for templates that embed the
// token literally more than once.
func (e *Engine) SendOne(ctx context.Context, sess transport.Session, c contacts.Contact, defaultMessage string) bool {
	log := e.log.With(logx.String("name", c.Name), logx.String("to", c.Phone))

	text := c.Message
	if text == "" {
		text = defaultMessage
	}
	if text == "" {
		log.Warn("dispatch skipped: no message to send")
		return false
	}
	text = strings.Replace(text, Placeholder, c.Name, 1)

	registered, err := sess.IsRegistered(ctx, c.Phone)
	if err != nil {
		log.Warn("dispatch failed: recipient check", logx.Err(err))
		return false
	}
	if !registered {
		log.Info("dispatch skipped: recipient not registered")
		return false
	}

	if err := sess.SendText(ctx, c.Phone, text); err != nil {
		log.Warn("dispatch failed: send", logx.Err(err))
		return false
	}

	log.Info("message sent")
	return true
}

// RunBatch dispatches to every contact in input order, pausing for delay
// between consecutive attempts (never after the last one, and regardless of
// the prior outcome; the pause is rate-limit avoidance, not retry backoff).
// An empty contact list returns a zero Summary without touching the session.
//
// Cancelling ctx aborts the run between attempts; contacts not yet attempted
// count as failed in the returned Summary.
func (e *Engine) RunBatch(ctx context.Context, sess transport.Session, list []contacts.Contact, defaultMessage string, delay time.Duration) Summary {
	sum := Summary{Total: len(list)}
	if len(list) == 0 {
		return sum
	}

	start := time.Now()
	e.log.Info("batch started", logx.Int("total", sum.Total), logx.Duration("delay", delay))

	for i, c := range list {
		if e.SendOne(ctx, sess, c, defaultMessage) {
			sum.Sent++
		} else {
			sum.Failed++
		}

		if i == len(list)-1 {
			break
		}
		if err := e.sleep(ctx, delay); err != nil {
			remaining := len(list) - i - 1
			sum.Failed += remaining
			e.log.Warn("batch aborted", logx.Int("remaining", remaining), logx.Err(err))
			break
		}
	}

	fields := []logx.Field{
		logx.Int("total", sum.Total),
		logx.Int("sent", sum.Sent),
		logx.Int("failed", sum.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if sum.Failed > 0 {
		e.log.Warn("batch finished with failures", fields...)
	} else {
		e.log.Info("batch finished", fields...)
	}
	return sum
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
