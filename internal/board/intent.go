// Package board routes a single line of text into an intent
// and applies it against the event-sourced store under the board lock,
// enforcing the status transition matrix.
package board

import (
	"regexp"
	"strings"
)

// Kind enumerates the intents the board router recognizes.
type Kind string

const (
	KindCreateTask    Kind = "create_task"
	KindClaimTask     Kind = "claim_task"
	KindMarkDone      Kind = "mark_done"
	KindBlockTask     Kind = "block_task"
	KindEscalateTask  Kind = "escalate_task"
	KindStatus        Kind = "status"
	KindSynthesize    Kind = "synthesize"
	KindUnrecognized  Kind = "unrecognized"
)

// Intent is the parsed form of one inbound command line.
type Intent struct {
	Kind         Kind
	Agent        string // @agent override, empty if absent
	TaskID       string // empty for create_task when unspecified, or status/synthesize with no id
	Title        string // create_task only
	Text         string // mark_done result / block_task,escalate_task reason
	OriginalText string
}

var agentPrefix = regexp.MustCompile(`^@(\S+)\s+(.*)$`)

// Both English keyword forms ("create task") and the snake_case
// shorthand ("create_task") are accepted in every pattern below.
var (
	createTaskRe = regexp.MustCompile(`(?i)^create[\s_]task\s*(T-\w+)?\s*:\s*(.*)$`)
	claimTaskRe  = regexp.MustCompile(`(?i)^claim[\s_]task\s+(T-\w+)\s*$`)
	markDoneRe   = regexp.MustCompile(`(?i)^mark[\s_]done\s+(T-\w+)\s*(?::\s*(.*))?$`)
	blockTaskRe  = regexp.MustCompile(`(?i)^block[\s_]task\s+(T-\w+)\s*(?::\s*(.*))?$`)
	escalateRe   = regexp.MustCompile(`(?i)^escalate[\s_]task\s+(T-\w+)\s*(?::\s*(.*))?$`)
	statusRe     = regexp.MustCompile(`(?i)^status\s*(T-\w+)?\s*$`)
	synthesizeRe = regexp.MustCompile(`(?i)^synthesize\s*(T-\w+)?\s*$`)
)

// ParseIntent routes a single text input into an Intent. Parsing of the
// intent keyword is case-insensitive; task ids are case-preserving.
func ParseIntent(text string) Intent {
	original := text
	trimmed := strings.TrimSpace(text)

	agent := ""
	if m := agentPrefix.FindStringSubmatch(trimmed); m != nil {
		agent = m[1]
		trimmed = strings.TrimSpace(m[2])
	}

	switch {
	case createTaskRe.MatchString(trimmed):
		m := createTaskRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindCreateTask, Agent: agent, TaskID: m[1], Title: strings.TrimSpace(m[2]), OriginalText: original}
	case claimTaskRe.MatchString(trimmed):
		m := claimTaskRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindClaimTask, Agent: agent, TaskID: m[1], OriginalText: original}
	case markDoneRe.MatchString(trimmed):
		m := markDoneRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindMarkDone, Agent: agent, TaskID: m[1], Text: strings.TrimSpace(m[2]), OriginalText: original}
	case blockTaskRe.MatchString(trimmed):
		m := blockTaskRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindBlockTask, Agent: agent, TaskID: m[1], Text: strings.TrimSpace(m[2]), OriginalText: original}
	case escalateRe.MatchString(trimmed):
		m := escalateRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindEscalateTask, Agent: agent, TaskID: m[1], Text: strings.TrimSpace(m[2]), OriginalText: original}
	case statusRe.MatchString(trimmed):
		m := statusRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindStatus, Agent: agent, TaskID: m[1], OriginalText: original}
	case synthesizeRe.MatchString(trimmed):
		m := synthesizeRe.FindStringSubmatch(trimmed)
		return Intent{Kind: KindSynthesize, Agent: agent, TaskID: m[1], OriginalText: original}
	default:
		return Intent{Kind: KindUnrecognized, Agent: agent, OriginalText: original}
	}
}
