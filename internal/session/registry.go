// Package session owns the process-wide transport session: exactly one is
// dialed lazily and shared by every batch run and gateway request.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blastbot/internal/transport"
	logx "blastbot/pkg/logx"
)

// ErrInitTimeout reports that the transport did not become ready within the
// configured window (e.g. the QR challenge was never scanned).
var ErrInitTimeout = errors.New("session not ready within timeout")

// DefaultReadyTimeout leaves enough room to scan a QR code on first pairing.
const DefaultReadyTimeout = 3 * time.Minute

// Registry lazily creates and memoizes exactly one Session. The in-flight
// dial itself is memoized, not just its result, so Gets that race during a
// cold start share one dial instead of opening duplicate connections.
type Registry struct {
	dial         transport.DialFunc
	readyTimeout time.Duration
	log          logx.Logger

	mu      sync.Mutex
	pending *dialResult
}

// dialResult is a single-resolution signal: done is closed exactly once,
// after which sess/err are immutable.
type dialResult struct {
	done chan struct{}
	sess transport.Session
	err  error
}

func NewRegistry(dial transport.DialFunc, readyTimeout time.Duration, log logx.Logger) *Registry {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{dial: dial, readyTimeout: readyTimeout, log: log}
}

// Get returns the shared ready session, dialing it on first use. Callers
// block until the session is ready, the ready timeout expires, or ctx is
// cancelled. A failed dial clears the slot so a later Get can try again.
func (r *Registry) Get(ctx context.Context) (transport.Session, error) {
	r.mu.Lock()
	res := r.pending
	if res == nil {
		res = &dialResult{done: make(chan struct{})}
		r.pending = res
		go r.connect(res)
	}
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-res.done:
	}

	if res.err != nil {
		// Allow a retry on the next call; the failed dial stays failed for
		// everyone who was already waiting on it.
		r.mu.Lock()
		if r.pending == res {
			r.pending = nil
		}
		r.mu.Unlock()
		return nil, res.err
	}
	return res.sess, nil
}

func (r *Registry) connect(res *dialResult) {
	defer close(res.done)

	r.log.Info("dialing transport session", logx.Duration("ready_timeout", r.readyTimeout))
	start := time.Now()

	ctx, cancel := context.WithTimeoutCause(context.Background(), r.readyTimeout, ErrInitTimeout)
	defer cancel()

	sess, err := r.dial(ctx)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrInitTimeout) && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w (%s)", ErrInitTimeout, r.readyTimeout)
		}
		r.log.Error("transport session dial failed", logx.Err(err), logx.Duration("dur", time.Since(start)))
		res.err = err
		return
	}

	r.log.Info("transport session ready", logx.Duration("dur", time.Since(start)))
	res.sess = sess
}

// Close shuts the session down if one was ever created. A dial still in
// flight is left to finish; its session will be closed by process exit.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	res := r.pending
	r.mu.Unlock()
	if res == nil {
		return nil
	}
	select {
	case <-res.done:
	default:
		return nil
	}
	if res.err != nil || res.sess == nil {
		return nil
	}
	r.log.Info("closing transport session")
	return res.sess.Close(ctx)
}
