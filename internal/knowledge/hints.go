package knowledge

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskctl/internal/config"
	"taskctl/internal/logging"
)

// HintSource is the pluggable, read-only knowledge backend. Implementations look up hints for a task by
// whatever mechanism the sourceCandidates name.
type HintSource interface {
	Lookup(ctx context.Context, taskID, taskKind string) ([]string, error)
}

// StaticSource is a HintSource backed by an in-memory map, used when no
// external source is wired — e.g. in tests or a minimal deployment.
type StaticSource struct {
	ByTaskKind map[string][]string
}

// Lookup returns the static hints registered for taskKind.
func (s StaticSource) Lookup(_ context.Context, _ string, taskKind string) ([]string, error) {
	return s.ByTaskKind[taskKind], nil
}

// HintProvider resolves the KNOWLEDGE_HINTS prompt block, caching recent
// lookups and degrading softly on timeout or source error (the block is
// omitted and a warning is logged) rather than blocking dispatch.
type HintProvider struct {
	policy config.KnowledgeFeedbackPolicy
	source HintSource
	cache  *lru.Cache[string, []string]
	logger logging.Logger
}

// NewHintProvider returns a HintProvider. cacheSize<=0 defaults to 256
// entries.
func NewHintProvider(policy config.KnowledgeFeedbackPolicy, source HintSource, cacheSize int, logger logging.Logger) (*HintProvider, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &HintProvider{policy: policy, source: source, cache: cache, logger: logging.OrNop(logger)}, nil
}

// Resolve returns the KNOWLEDGE_HINTS block text and whether it should be
// included in the prompt. Disabled policy, a nil source, an empty result, a
// source error, or a timeout all produce an omitted (not failed) block.
func (p *HintProvider) Resolve(ctx context.Context, taskID, taskKind string) (string, bool) {
	if !p.policy.Enabled || p.source == nil {
		return "", false
	}

	cacheKey := taskID + "|" + taskKind
	if cached, ok := p.cache.Get(cacheKey); ok {
		return joinHints(cached, p.policy.MaxItems)
	}

	timeout := time.Duration(p.policy.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hints, err := p.source.Lookup(lookupCtx, taskID, taskKind)
	if err != nil {
		p.logger.Warn("knowledge: lookup failed, degrading softly: %v", err)
		return "", false
	}

	p.cache.Add(cacheKey, hints)
	return joinHints(hints, p.policy.MaxItems)
}

func joinHints(hints []string, maxItems int) (string, bool) {
	if len(hints) == 0 {
		return "", false
	}
	if maxItems > 0 && len(hints) > maxItems {
		hints = hints[:maxItems]
	}
	return strings.Join(hints, "\n"), true
}
