// Package scheduler implements the interval-gated autopilot loop: a
// cooperative, bounded tick rather than a persistent cron daemon, built on a
// single checkpoint/interval/maxSteps algorithm. This package does not use
// robfig/cron; cmd/taskctl's serve-scheduler command drives Tick from a
// robfig/cron trigger.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"taskctl/internal/filestore"
)

// Locker is the board lock's minimal surface, mirroring governance.Locker —
// scheduler.state.json shares the single task-board.lock.
type Locker interface {
	Lock(owner string) (*filestore.Lock, error)
}

// Checkpoint gates one tick against governance; scope is "scheduler" or
// "autopilot" depending on which caller invoked the loop.
type Checkpoint func(actor string) (allow bool, reasonCode string, err error)

// Dispatch runs one dispatch iteration with automatic task selection. ok
// reports whether the iteration produced a dispatched/accepted
// task; readyRemains reports whether another ready task might still exist.
type Dispatch func(ctx context.Context, actor string) (ok bool, readyRemains bool, reasonCode string, err error)

// State is scheduler.state.json's contents.
type State struct {
	Enabled     bool      `json:"enabled"`
	IntervalSec int       `json:"intervalSec"`
	LastRunTs   time.Time `json:"lastRunTs"`
	NextDueTs   time.Time `json:"nextDueTs"`
	MaxSteps    int       `json:"maxSteps"`
}

// TickResult summarizes one Tick call for the caller/CLI to report.
type TickResult struct {
	Ran        bool   `json:"ran"`
	Skipped    bool   `json:"skipped"`
	ReasonCode string `json:"reasonCode,omitempty"`
	Steps      int    `json:"steps"`
	State      State  `json:"state"`
}

// Scheduler owns scheduler.state.json and runs bounded tick.
type Scheduler struct {
	path   string
	locker Locker
	now    func() time.Time
}

// New returns a Scheduler rooted at stateDir.
func New(stateDir string, locker Locker) *Scheduler {
	return &Scheduler{
		path:   filepath.Join(stateDir, "scheduler.state.json"),
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) load() (State, error) {
	var st State
	if err := filestore.ReadJSON(s.path, &st); err != nil {
		return State{}, fmt.Errorf("scheduler: read state: %w", err)
	}
	return st, nil
}

func (s *Scheduler) save(st State) error {
	if err := filestore.WriteJSON(s.path, st); err != nil {
		return fmt.Errorf("scheduler: write state: %w", err)
	}
	return nil
}

// Get returns the current persisted state, without mutating it.
func (s *Scheduler) Get(actor string) (State, error) {
	lock, err := s.locker.Lock(actor)
	if err != nil {
		return State{}, err
	}
	defer lock.Release()
	return s.load()
}

// Configure persists the enabled/intervalSec/maxSteps triple, leaving
// lastRunTs/nextDueTs untouched.
func (s *Scheduler) Configure(actor string, enabled bool, intervalSec, maxSteps int) (State, error) {
	lock, err := s.locker.Lock(actor)
	if err != nil {
		return State{}, err
	}
	defer lock.Release()

	st, err := s.load()
	if err != nil {
		return State{}, err
	}
	st.Enabled = enabled
	st.IntervalSec = intervalSec
	st.MaxSteps = maxSteps
	if err := s.save(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Tick implements 4-step algorithm: checkpoint, due check
// (bypassed by force), bounded dispatch loop, then advance lastRunTs /
// nextDueTs once the loop has run, whatever the individual step outcomes.
func (s *Scheduler) Tick(ctx context.Context, actor string, force bool, checkpoint Checkpoint, dispatch Dispatch) (TickResult, error) {
	lock, err := s.locker.Lock(actor)
	if err != nil {
		return TickResult{}, err
	}
	defer lock.Release()

	st, err := s.load()
	if err != nil {
		return TickResult{}, err
	}

	// 1. governance checkpoint: on deny, do not advance lastRunTs/nextDueTs.
	allow, reasonCode, err := checkpoint(actor)
	if err != nil {
		return TickResult{}, err
	}
	if !allow {
		return TickResult{Skipped: true, ReasonCode: reasonCode, State: st}, nil
	}

	now := s.now()

	// 2. not enabled, or not yet due (unless forced): skip as not_due.
	if !force && (!st.Enabled || now.Before(st.NextDueTs)) {
		return TickResult{Skipped: true, ReasonCode: "not_due", State: st}, nil
	}

	maxSteps := st.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	// 3. bounded dispatch loop: stop early on deny or when no ready task
	// remains.
	steps := 0
	var lastReason string
	for steps < maxSteps {
		ok, readyRemains, stepReason, err := dispatch(ctx, actor)
		if err != nil {
			return TickResult{}, err
		}
		steps++
		lastReason = stepReason
		if !ok || !readyRemains {
			break
		}
	}

	// 4. the tick ran (it was neither checkpoint-denied nor not-due):
	// advance lastRunTs/nextDueTs regardless of individual step outcomes.
	interval := st.IntervalSec
	if interval <= 0 {
		interval = 60
	}
	st.LastRunTs = now
	st.NextDueTs = now.Add(time.Duration(interval) * time.Second)
	if err := s.save(st); err != nil {
		return TickResult{}, err
	}
	return TickResult{Ran: true, Steps: steps, ReasonCode: lastReason, State: st}, nil
}
