// Package recovery implements the reason-code-driven recovery chain
// (component G): attempt caps, cooldowns, and chain
// advancement toward a terminal human handoff.
package recovery

import (
	"fmt"
	"path/filepath"
	"time"

	"taskctl/internal/config"
	"taskctl/internal/filestore"
)

// Locker is the board lock's minimal surface, mirroring governance.Locker —
// recovery.state.json shares the single task-board.lock.
type Locker interface {
	Lock(owner string) (*filestore.Lock, error)
}

// Reason codes that trigger the recovery loop.
const (
	ReasonSpawnFailed      = "spawn_failed"
	ReasonIncompleteOutput = "incomplete_output"
	ReasonBlockedSignal    = "blocked_signal"
)

func triggersRecovery(reason string) bool {
	switch reason {
	case ReasonSpawnFailed, ReasonIncompleteOutput, ReasonBlockedSignal:
		return true
	default:
		return false
	}
}

// Action is one recovery decision's action.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionHuman    Action = "human"
	ActionEscalate Action = "escalate"
)

// State is one recovery decision's persisted state.
type State string

const (
	StateRecoveryScheduled State = "recovery_scheduled"
	StateHumanHandoff      State = "human_handoff"
	StateEscalatedToHuman  State = "escalated_to_human"
)

// Entry is one RecoveryEntry keyed by (taskId, reasonCode).
type Entry struct {
	TaskID          string    `json:"taskId"`
	ReasonCode      string    `json:"reasonCode"`
	Attempt         int       `json:"attempt"`
	NextAssignee    string    `json:"nextAssignee"`
	Action          Action    `json:"action"`
	RecoveryState   State     `json:"recoveryState"`
	CooldownUntilTs time.Time `json:"cooldownUntilTs"`
}

type state struct {
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Recovery owns recovery.state.json and evaluates it against a
// RecoveryPolicy.
type Recovery struct {
	path   string
	locker Locker
	policy config.RecoveryPolicy
	now    func() time.Time
}

// New returns a Recovery rooted at stateDir, sharing locker for the board
// lock and evaluating against policy.
func New(stateDir string, locker Locker, policy config.RecoveryPolicy) *Recovery {
	return &Recovery{
		path:   filepath.Join(stateDir, "recovery.state.json"),
		locker: locker,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func key(taskID, reason string) string { return taskID + "|" + reason }

func (r *Recovery) load() (*state, error) {
	s := &state{Entries: make(map[string]Entry)}
	if err := filestore.ReadJSON(r.path, s); err != nil {
		return nil, fmt.Errorf("recovery: read state: %w", err)
	}
	if s.Entries == nil {
		s.Entries = make(map[string]Entry)
	}
	return s, nil
}

func (r *Recovery) save(s *state) error {
	s.UpdatedAt = r.now()
	if err := filestore.WriteJSON(r.path, s); err != nil {
		return fmt.Errorf("recovery: write state: %w", err)
	}
	return nil
}

func (r *Recovery) limitsFor(reason string) config.RecoveryLimits {
	if limits, ok := r.policy.ReasonPolicies[reason]; ok {
		return normalizeLimits(limits)
	}
	return normalizeLimits(r.policy.Default)
}

func normalizeLimits(limits config.RecoveryLimits) config.RecoveryLimits {
	if limits.MaxAttempts < 1 {
		limits.MaxAttempts = 1
	}
	if limits.CooldownSec < 0 {
		limits.CooldownSec = 0
	}
	return limits
}

// Advance implements 7-step algorithm for an incoming
// (taskId, reason, currentAssignee). Non-matching reason codes escalate to
// human without consuming the chain.
func (r *Recovery) Advance(actor, taskID, reason, currentAssignee string) (Entry, error) {
	if !triggersRecovery(reason) {
		return Entry{
			TaskID: taskID, ReasonCode: reason,
			NextAssignee: "human", Action: ActionEscalate, RecoveryState: StateEscalatedToHuman,
		}, nil
	}

	lock, err := r.locker.Lock(actor)
	if err != nil {
		return Entry{}, err
	}
	defer lock.Release()

	s, err := r.load()
	if err != nil {
		return Entry{}, err
	}
	k := key(taskID, reason)
	prev, existed := s.Entries[k]

	now := r.now()
	if existed && now.Before(prev.CooldownUntilTs) {
		return prev, nil
	}

	attempt := prev.Attempt + 1
	nextAssignee := nextInChain(r.policy.RecoveryChain, currentAssignee)
	limits := r.limitsFor(reason)

	entry := Entry{TaskID: taskID, ReasonCode: reason, Attempt: attempt, NextAssignee: nextAssignee}

	switch {
	case attempt > limits.MaxAttempts:
		entry.Action = ActionEscalate
		entry.NextAssignee = "human"
		entry.RecoveryState = StateEscalatedToHuman
	case nextAssignee == "human":
		entry.Action = ActionHuman
		entry.RecoveryState = StateHumanHandoff
	default:
		entry.Action = ActionRetry
		entry.RecoveryState = StateRecoveryScheduled
	}

	entry.CooldownUntilTs = now.Add(time.Duration(limits.CooldownSec) * time.Second)
	s.Entries[k] = entry
	if err := r.save(s); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// nextInChain returns the element strictly after current in chain. If
// current is absent, the chain's head is used. The chain always terminates
// with a human handoff.
func nextInChain(chain []string, current string) string {
	if len(chain) == 0 {
		return "human"
	}
	for i, role := range chain {
		if role == current {
			if i+1 < len(chain) {
				return chain[i+1]
			}
			return "human"
		}
	}
	return chain[0]
}

// Get returns the current entry for (taskId, reason) without mutating it.
func (r *Recovery) Get(actor, taskID, reason string) (Entry, error) {
	lock, err := r.locker.Lock(actor)
	if err != nil {
		return Entry{}, err
	}
	defer lock.Release()

	s, err := r.load()
	if err != nil {
		return Entry{}, err
	}
	entry := s.Entries[key(taskID, reason)]
	entry.TaskID, entry.ReasonCode = taskID, reason
	return entry, nil
}
