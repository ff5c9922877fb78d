// Package budget tracks per-(taskId, agent) token/time/retry usage against
// the configured budget policy (component E), gating
// dispatch with precheck/postcheck semantics against a policy's
// internal/app/context/budget/manager.go usage-ratio/threshold model.
package budget

import (
	"fmt"
	"path/filepath"
	"time"

	"taskctl/internal/config"
	"taskctl/internal/filestore"
)

// Locker is the board lock's minimal surface, mirroring governance.Locker —
// budget.state.json shares the single task-board.lock.
type Locker interface {
	Lock(owner string) (*filestore.Lock, error)
}

// Entry is one BudgetEntry keyed by (taskId, agent).
type Entry struct {
	TaskID     string    `json:"taskId"`
	Agent      string    `json:"agent"`
	TokenUsage int       `json:"tokenUsage"`
	ElapsedMs  int64     `json:"elapsedMs"`
	RetryCount int       `json:"retryCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// state is budget.state.json's contents.
type state struct {
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Usage is the raw consumption reported by one dispatch attempt. Input and
// output token aliases are reconciled by TokensFromReply before they reach
// here, so RecordAttempt adds PromptTokens and CompletionTokens as given.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	WallTimeMs       int64
	Retried          bool
}

// TokensFromReply reconciles a worker reply's usage block, treating
// input_tokens/output_tokens as aliases of prompt_tokens/completion_tokens
// rather than additional consumption.
func TokensFromReply(promptTokens, completionTokens, inputTokens, outputTokens int) int {
	prompt := promptTokens
	if prompt == 0 {
		prompt = inputTokens
	}
	completion := completionTokens
	if completion == 0 {
		completion = outputTokens
	}
	return prompt + completion
}

// Snapshot is what Precheck, PrecheckWithEstimate and RecordAttempt return: exceeded axes plus
// remaining headroom for observability.
type Snapshot struct {
	Entry          Entry    `json:"entry"`
	ExceededKeys   []string `json:"exceededKeys,omitempty"`
	RemainingToken int      `json:"remainingTokens"`
	RemainingMs    int64    `json:"remainingMs"`
	RemainingRetry int      `json:"remainingRetries"`
	DegradeAction  string   `json:"degradeAction,omitempty"`
}

// Exceeded reports whether any axis is over limit.
func (s Snapshot) Exceeded() bool { return len(s.ExceededKeys) > 0 }

// Budget owns budget.state.json and evaluates it against a BudgetPolicy.
type Budget struct {
	path   string
	locker Locker
	policy config.BudgetPolicy
}

// New returns a Budget rooted at stateDir, sharing locker for the board
// lock and evaluating against policy.
func New(stateDir string, locker Locker, policy config.BudgetPolicy) *Budget {
	return &Budget{
		path:   filepath.Join(stateDir, "budget.state.json"),
		locker: locker,
		policy: clampPolicy(policy),
	}
}

func key(taskID, agent string) string { return taskID + "|" + agent }

func (b *Budget) limitsFor(agent string) config.AgentBudgetLimits {
	if limits, ok := b.policy.Agents[agent]; ok {
		return clampLimits(limits)
	}
	return b.policy.Global
}

func (b *Budget) load() (*state, error) {
	s := &state{Entries: make(map[string]Entry)}
	if err := filestore.ReadJSON(b.path, s); err != nil {
		return nil, fmt.Errorf("budget: read state: %w", err)
	}
	if s.Entries == nil {
		s.Entries = make(map[string]Entry)
	}
	return s, nil
}

func (b *Budget) save(s *state) error {
	s.UpdatedAt = time.Now().UTC()
	if err := filestore.WriteJSON(b.path, s); err != nil {
		return fmt.Errorf("budget: write state: %w", err)
	}
	return nil
}

// Precheck evaluates the entry's current usage before a dispatch attempt
// runs: exceeded if usage >= limit on any axis.
func (b *Budget) Precheck(actor, taskID, agent string) (Snapshot, error) {
	lock, err := b.locker.Lock(actor)
	if err != nil {
		return Snapshot{}, err
	}
	defer lock.Release()

	s, err := b.load()
	if err != nil {
		return Snapshot{}, err
	}
	entry := s.Entries[key(taskID, agent)]
	entry.TaskID, entry.Agent = taskID, agent
	limits := b.limitsFor(agent)
	return evaluate(entry, limits, false), nil
}

// RecordAttempt accumulates one dispatch attempt's usage into the entry and
// postchecks it: exceeded if usage > limit after accumulating.
func (b *Budget) RecordAttempt(actor, taskID, agent string, usage Usage) (Snapshot, error) {
	lock, err := b.locker.Lock(actor)
	if err != nil {
		return Snapshot{}, err
	}
	defer lock.Release()

	s, err := b.load()
	if err != nil {
		return Snapshot{}, err
	}
	k := key(taskID, agent)
	entry := s.Entries[k]
	entry.TaskID, entry.Agent = taskID, agent
	entry.TokenUsage += usage.PromptTokens + usage.CompletionTokens
	entry.ElapsedMs += usage.WallTimeMs
	if usage.Retried {
		entry.RetryCount++
	}
	entry.UpdatedAt = time.Now().UTC()
	s.Entries[k] = entry

	if err := b.save(s); err != nil {
		return Snapshot{}, err
	}

	limits := b.limitsFor(agent)
	return evaluate(entry, limits, true), nil
}

// PrecheckWithEstimate is Precheck plus a prompt-token estimate (from
// internal/tokencount) added to current usage before evaluating the token
// axis — the estimate is never persisted, only used to decide whether this
// attempt should be allowed to start.
func (b *Budget) PrecheckWithEstimate(actor, taskID, agent string, estimatedPromptTokens int) (Snapshot, error) {
	lock, err := b.locker.Lock(actor)
	if err != nil {
		return Snapshot{}, err
	}
	defer lock.Release()

	s, err := b.load()
	if err != nil {
		return Snapshot{}, err
	}
	entry := s.Entries[key(taskID, agent)]
	entry.TaskID, entry.Agent = taskID, agent
	projected := entry
	projected.TokenUsage += estimatedPromptTokens
	limits := b.limitsFor(agent)
	snap := evaluate(projected, limits, false)
	snap.Entry = entry // report actual (unprojected) usage back to the caller.
	return snap, nil
}

// Get returns the current entry for (taskId, agent) without mutating it.
func (b *Budget) Get(actor, taskID, agent string) (Entry, error) {
	lock, err := b.locker.Lock(actor)
	if err != nil {
		return Entry{}, err
	}
	defer lock.Release()

	s, err := b.load()
	if err != nil {
		return Entry{}, err
	}
	entry := s.Entries[key(taskID, agent)]
	entry.TaskID, entry.Agent = taskID, agent
	return entry, nil
}

func evaluate(entry Entry, limits config.AgentBudgetLimits, post bool) Snapshot {
	snap := Snapshot{
		Entry:          entry,
		RemainingToken: limits.MaxTaskTokens - entry.TokenUsage,
		RemainingMs:    int64(limits.MaxTaskWallTimeSec)*1000 - entry.ElapsedMs,
		RemainingRetry: limits.MaxTaskRetries - entry.RetryCount,
	}

	overToken := exceeds(entry.TokenUsage, limits.MaxTaskTokens, post)
	overTime := exceeds(int(entry.ElapsedMs), limits.MaxTaskWallTimeSec*1000, post)
	overRetry := exceeds(entry.RetryCount, limits.MaxTaskRetries, post)

	if overToken {
		snap.ExceededKeys = append(snap.ExceededKeys, "maxTaskTokens")
	}
	if overTime {
		snap.ExceededKeys = append(snap.ExceededKeys, "maxTaskWallTimeSec")
	}
	if overRetry {
		snap.ExceededKeys = append(snap.ExceededKeys, "maxTaskRetries")
	}

	if len(snap.ExceededKeys) > 0 {
		snap.DegradeAction = normalizeDegradeAction(limits)
	}
	return snap
}

// exceeds applies precheck (usage >= limit) vs postcheck
// (usage > limit) threshold.
func exceeds(usage, limit int, post bool) bool {
	if post {
		return usage > limit
	}
	return usage >= limit
}

// normalizeDegradeAction resolves onExceeded against degradePolicy: the
// configured action if it's a member of degradePolicy, else the head of
// degradePolicy, else "manual_handoff".
func normalizeDegradeAction(limits config.AgentBudgetLimits) string {
	for _, action := range limits.DegradePolicy {
		if action == limits.OnExceeded {
			return action
		}
	}
	if len(limits.DegradePolicy) > 0 {
		return limits.DegradePolicy[0]
	}
	return "manual_handoff"
}

// clampPolicy clamps every limit in policy to >=1
func clampPolicy(policy config.BudgetPolicy) config.BudgetPolicy {
	policy.Global = clampLimits(policy.Global)
	for agent, limits := range policy.Agents {
		policy.Agents[agent] = clampLimits(limits)
	}
	return policy
}

func clampLimits(limits config.AgentBudgetLimits) config.AgentBudgetLimits {
	if limits.MaxTaskTokens < 1 {
		limits.MaxTaskTokens = 1
	}
	if limits.MaxTaskWallTimeSec < 1 {
		limits.MaxTaskWallTimeSec = 1
	}
	if limits.MaxTaskRetries < 1 {
		limits.MaxTaskRetries = 1
	}
	if limits.OnExceeded == "" {
		limits.OnExceeded = "manual_handoff"
	}
	return limits
}
