package dispatch

import (
	"encoding/json"

	"taskctl/internal/acceptance"
	"taskctl/internal/budget"
	"taskctl/internal/executor"
)

// tokenFields is the subset of a worker's raw stdout this package looks at
// for token accounting — independent of the reply schema's status/summary
// fields, and tolerant of the nested {"usage": {...}} shape some workers
// emit as well as flat top-level fields.
type tokenFields struct {
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	InputTokens      int          `json:"input_tokens"`
	OutputTokens     int          `json:"output_tokens"`
	Usage            *tokenFields `json:"usage,omitempty"`
}

// parseReplyAdapter delegates to executor.ParseReply, kept as a named call
// site so the dispatch pipeline reads in step order.
func parseReplyAdapter(stdout string) acceptance.Reply {
	return executor.ParseReply(stdout)
}

// tokenUsageFromStdout extracts and dedups a worker's reported token usage
// from its raw stdout scenario 4 (budget.TokensFromReply).
// Best-effort: stdout that doesn't carry a usage block evaluates to 0.
func tokenUsageFromStdout(stdout string) int {
	var fields tokenFields
	if err := json.Unmarshal([]byte(stdout), &fields); err != nil {
		return 0
	}
	if fields.Usage != nil {
		fields = *fields.Usage
	}
	return budget.TokensFromReply(fields.PromptTokens, fields.CompletionTokens, fields.InputTokens, fields.OutputTokens)
}

func budgetUsage(tokenUsage int, elapsedMs int64, retried bool) budget.Usage {
	return budget.Usage{PromptTokens: tokenUsage, WallTimeMs: elapsedMs, Retried: retried}
}
