// Package scheduler runs one-shot jobs at a given instant.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

var (
	ErrDuplicateJob = errors.New("job already scheduled")
	ErrStopped      = errors.New("scheduler stopped")
)

// Func is the work a job performs. ctx is cancelled after the job timeout.
type Func func(ctx context.Context)

type state int

const (
	pending state = iota
	armed
	running
	done
	removed
)

// Job is a single scheduled callback.
type Job struct {
	ID     string
	FireAt time.Time

	s      *Scheduler
	fn     Func
	state  state
	timer  *clock.Timer
	cancel chan struct{}
}

// Remove disarms the job. It reports false when the job already started or was removed,
// in which case nothing happens.
func (j *Job) Remove() bool {
	return j.s.remove(j)
}

// Scheduler owns the table of armed jobs. Each job waits on its own timer and runs on its
// own goroutine, so a slow callback never delays another job.
type Scheduler struct {
	clk     clock.Clock
	log     *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	jobs    map[string]*Job
	started bool
	stopped bool
	done    chan struct{}
	running sync.WaitGroup
}

// New creates a scheduler; jobs get a context bounded by timeout (no bound when zero).
func New(clk clock.Clock, log *zap.Logger, timeout time.Duration) *Scheduler {
	return &Scheduler{
		clk:     clk,
		log:     log.Named("scheduler"),
		timeout: timeout,
		jobs:    make(map[string]*Job),
		done:    make(chan struct{}),
	}
}

// Start arms every job added so far. Later jobs are armed as they are added.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	for _, j := range s.jobs {
		s.arm(j)
	}
	s.log.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// AddOneShot schedules fn to run once at fireAt. An instant in the past runs as soon as
// the scheduler is started.
func (s *Scheduler) AddOneShot(id string, fireAt time.Time, fn Func) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if _, ok := s.jobs[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}

	j := &Job{ID: id, FireAt: fireAt, s: s, fn: fn, state: pending, cancel: make(chan struct{})}
	s.jobs[id] = j
	if s.started {
		s.arm(j)
	}
	return j, nil
}

// GetJob returns the pending or armed job with id, or nil.
func (s *Scheduler) GetJob(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Jobs lists pending and armed jobs ordered by fire time.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].FireAt.Before(out[b].FireAt) })
	return out
}

// Shutdown disarms the remaining jobs and waits for running ones, or for ctx.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.done)
	for id, j := range s.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
		j.state = removed
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		s.running.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(j *Job) {
	delay := j.FireAt.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	j.timer = s.clk.NewTimer(delay)
	j.state = armed
	s.log.Debug("Job armed", zap.String("job", j.ID), zap.Time("fire_at", j.FireAt), zap.Duration("in", delay))

	go func() {
		select {
		case <-j.timer.C:
			s.fire(j)
		case <-j.cancel:
		case <-s.done:
		}
	}()
}

func (s *Scheduler) fire(j *Job) {
	s.mu.Lock()
	if j.state != armed || s.stopped {
		s.mu.Unlock()
		return
	}
	j.state = running
	delete(s.jobs, j.ID)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	defer func() {
		s.mu.Lock()
		j.state = done
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.log.Error("Job panicked", zap.String("job", j.ID), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.log.Debug("Job firing", zap.String("job", j.ID), zap.Duration("late_by", s.clk.Now().Sub(j.FireAt)))
	j.fn(ctx)
}

func (s *Scheduler) remove(j *Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.state != pending && j.state != armed {
		return false
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	j.state = removed
	close(j.cancel)
	if s.jobs[j.ID] == j {
		delete(s.jobs, j.ID)
	}
	return true
}
