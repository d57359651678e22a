// Package sched runs recurring batch blasts on cron schedules (serve mode).
package sched

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	logx "blastbot/pkg/logx"
)

// Job is one recurring blast. Run receives the service's run context and is
// expected to do its own error handling; a schedule never retries.
type Job struct {
	Name string
	Spec string // standard 5-field cron or @descriptor (robfig/cron)
	Run  func(ctx context.Context)
}

type Service struct {
	log logx.Logger
	c   *cron.Cron

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, c: cron.New()}
}

// Add registers a job. Overlapping runs of the same job are skipped: if the
// previous fire is still sending, the new fire logs and returns (the batch
// loop is strictly sequential, so overlap would double-send and defeat the
// send pacing).
func (s *Service) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("schedule %q: nil run func", job.Name)
	}
	var running atomic.Bool
	_, err := s.c.AddFunc(job.Spec, func() {
		if !running.CompareAndSwap(false, true) {
			s.log.Warn("schedule skipped: previous run still active", logx.String("schedule", job.Name))
			return
		}
		defer running.Store(false)

		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		s.log.Info("schedule fired", logx.String("schedule", job.Name))
		job.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: invalid cron spec %q: %w", job.Name, job.Spec, err)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.c.Entries())))
}

// Stop halts triggering and waits for an in-flight run to finish or ctx to
// expire, whichever comes first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
