package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the debounce delay before an automatic restore point.
const DefaultInterval = 5 * time.Second

// State is the scheduler state.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCreating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCreating:
		return "creating"
	default:
		return "unknown"
	}
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Interval is the delay between the trigger condition becoming true and
	// the automatic create. Default: DefaultInterval.
	Interval time.Duration

	// OnTransition, if set, is called on every state change while the
	// scheduler lock is held. It must not call back into the Scheduler.
	OnTransition func(from, to State)

	Logger  *slog.Logger
	Metrics Metrics
}

// Scheduler takes automatic restore points while the document is dirty and
// visible.
//
//	Idle --(dirty && visible)--> Pending --(timer)--> Creating --> Idle
//	Pending --(!dirty || !visible)--> Idle
//
// At most one create runs at a time and the timer is never armed while one
// runs. When a create finishes and the condition still holds, the timer is
// armed again. Create errors are logged and kept in LastError; they never
// stop the loop.
type Scheduler struct {
	create func(context.Context) error
	cfg    SchedulerConfig

	mu      sync.Mutex
	state   State
	dirty   bool
	visible bool
	timer   *time.Timer
	gen     uint64
	lastErr error
	closed  bool
	running sync.WaitGroup
}

// NewScheduler creates an idle scheduler that calls create on each timer
// fire. The document starts clean and visible.
func NewScheduler(create func(context.Context) error, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Metrics = metricsOrNop(cfg.Metrics)
	cfg.Metrics.SchedulerState(int(StateIdle))
	return &Scheduler{
		create:  create,
		cfg:     cfg,
		visible: true,
	}
}

// SetDirty records whether the document has unsaved changes.
func (s *Scheduler) SetDirty(dirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = dirty
	s.evaluateLocked()
}

// SetVisible records whether the document is currently shown.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
	s.evaluateLocked()
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the most recent automatic create, or nil
// if it succeeded.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close cancels a pending timer and waits for an in-flight create to finish.
// The scheduler does nothing after Close.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.state == StatePending {
		s.stopTimerLocked()
		s.transitionLocked(StateIdle)
	}
	s.mu.Unlock()

	s.running.Wait()
}

func (s *Scheduler) evaluateLocked() {
	ready := s.dirty && s.visible && !s.closed

	switch s.state {
	case StateIdle:
		if ready {
			s.armLocked()
		}
	case StatePending:
		if !ready {
			s.stopTimerLocked()
			s.transitionLocked(StateIdle)
		}
	case StateCreating:
		// Re-evaluated when the create finishes.
	}
}

func (s *Scheduler) armLocked() {
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.cfg.Interval, func() { s.fire(gen) })
	s.transitionLocked(StatePending)
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// A timer that already fired sees a newer generation and does nothing.
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StatePending || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.transitionLocked(StateCreating)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()

	// Once started, a create runs to completion.
	err := s.create(context.Background())
	if err != nil {
		s.cfg.Logger.Warn("automatic restore point failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.transitionLocked(StateIdle)
	s.evaluateLocked()
}

func (s *Scheduler) transitionLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.cfg.Metrics.SchedulerState(int(to))
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(from, to)
	}
}
