// Package knowledge implements the read-only strategy/knowledge-hint
// providers backing prompt assembly and rollout gating: pluggable
// prompt-augmentation lookups that degrade softly rather than block
// dispatch.
package knowledge

import (
	"taskctl/internal/canon"
	"taskctl/internal/config"
)

// StrategyProvider resolves the ROLE_STRATEGY prompt block for a task,
// gated by a stable per-task rollout bucket (hash(taskID)[0:8] as u32 mod
// 100; active iff bucket < rolloutPercent).
type StrategyProvider struct {
	policy config.RoleStrategiesPolicy
}

// NewStrategyProvider returns a StrategyProvider evaluated against policy.
func NewStrategyProvider(policy config.RoleStrategiesPolicy) *StrategyProvider {
	return &StrategyProvider{policy: policy}
}

// Resolve returns the strategy block text for (taskID, taskKind, agent) and
// whether the rollout gate admitted it. An empty, ok=false result means the
// ROLE_STRATEGY block is omitted from the prompt entirely.
func (p *StrategyProvider) Resolve(taskID, taskKind, agent string) (string, bool) {
	if !p.InRollout(taskID) {
		return "", false
	}
	if strategy, ok := p.policy.TaskKinds[taskKind]; ok && strategy != "" {
		return strategy, true
	}
	if strategy, ok := p.policy.Agents[agent]; ok && strategy != "" {
		return strategy, true
	}
	if p.policy.Default != "" {
		return p.policy.Default, true
	}
	return "", false
}

// InRollout reports whether taskID falls within the configured rollout
// percentage, using canon.Bucket's deterministic per-task-id bucket in
// [0, 100).
func (p *StrategyProvider) InRollout(taskID string) bool {
	pct := p.policy.RolloutPercent
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	return canon.Bucket(taskID) < uint32(pct)
}
