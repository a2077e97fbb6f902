// Package scheduler drives the scheduled message processor on a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/service"
)

type DueProcessor interface {
	ProcessDue(ctx context.Context, limit int) (service.ProcessReport, error)
}

// Status is a snapshot of the scheduler for the admin API.
type Status struct {
	Running    bool                  `json:"running"`
	Interval   string                `json:"interval"`
	BatchSize  int                   `json:"batchSize"`
	Runs       int64                 `json:"runs"`
	LastRunAt  *time.Time            `json:"lastRunAt,omitempty"`
	LastReport service.ProcessReport `json:"lastReport"`
	LastError  string                `json:"lastError,omitempty"`
}

type Scheduler struct {
	interval  time.Duration
	batchSize int
	processor DueProcessor

	running atomic.Bool
	runs    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu     sync.Mutex
	lastRunAt  time.Time
	lastReport service.ProcessReport
	lastErr    error
}

func New(interval time.Duration, batchSize int, processor DueProcessor) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if batchSize <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	if processor == nil {
		return nil, errors.New("processor must not be nil")
	}
	return &Scheduler{
		interval:  interval,
		batchSize: batchSize,
		processor: processor,
		done:      make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "interval", s.interval.String(), "batch_size", s.batchSize)

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{
		Running:   s.running.Load(),
		Interval:  s.interval.String(),
		BatchSize: s.batchSize,
		Runs:      s.runs.Load(),
	}
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if !s.lastRunAt.IsZero() {
		at := s.lastRunAt
		st.LastRunAt = &at
	}
	st.LastReport = s.lastReport
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	report, err := s.processor.ProcessDue(ctx, s.batchSize)
	s.runs.Add(1)

	s.lastMu.Lock()
	s.lastRunAt = start.UTC()
	s.lastReport = report
	s.lastErr = err
	s.lastMu.Unlock()

	if err != nil {
		slog.Error("process due messages failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.Info("scheduler tick completed",
		"claimed", report.Claimed,
		"sent", report.Sent,
		"failed", report.Failed,
		"requeued", report.Requeued,
		"locked", report.Locked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
