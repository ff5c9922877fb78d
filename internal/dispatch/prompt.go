// Package dispatch wires governance, priority, budget, the executor,
// acceptance, and recovery into the single dispatch iteration of component
// I.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"taskctl/internal/knowledge"
	"taskctl/internal/store"
)

const recentHistoryWindow = 10

// outputSchemaBlock is the literal textual description of the worker reply
// schema step 4 requires in every prompt.
const outputSchemaBlock = `OUTPUT_SCHEMA:
Reply with a single JSON object: {"status": "done"|"blocked"|"progress", "summary": string, "changes": [{"path": string, "summary": string}], "evidence": [string], "risks": [string], "nextActions": [string]}`

// buildPrompt concatenates the fixed prompt blocks in step 4's
// order, omitting any block whose source returned nothing.
func buildPrompt(ctx context.Context, task *store.Task, snap *store.Snapshot, events []store.Event, strategies *knowledge.StrategyProvider, hints *knowledge.HintProvider, taskKind, agent string) string {
	var blocks []string

	if strategies != nil {
		if block, ok := strategies.Resolve(task.TaskID, taskKind, agent); ok {
			blocks = append(blocks, "ROLE_STRATEGY:\n"+block)
		}
	}
	if hints != nil {
		if block, ok := hints.Resolve(ctx, task.TaskID, taskKind); ok {
			blocks = append(blocks, "KNOWLEDGE_HINTS:\n"+block)
		}
	}
	blocks = append(blocks, "BOARD_SNAPSHOT:\n"+boardSnapshotBlock(snap))
	blocks = append(blocks, "TASK_RECENT_HISTORY:\n"+recentHistoryBlock(events))
	blocks = append(blocks, outputSchemaBlock)

	return strings.Join(blocks, "\n\n")
}

// boardSnapshotBlock is a compact view of current tasks: one line per task,
// id/status/title.
func boardSnapshotBlock(snap *store.Snapshot) string {
	var b strings.Builder
	for _, id := range store.SortedTaskIDs(snap) {
		task := snap.Tasks[id]
		fmt.Fprintf(&b, "%s [%s] %s\n", task.TaskID, task.Status, task.Title)
	}
	if b.Len() == 0 {
		return "(no tasks)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// recentHistoryBlock renders the last N events for this task.
func recentHistoryBlock(events []store.Event) string {
	if len(events) == 0 {
		return "(no history)"
	}
	start := 0
	if len(events) > recentHistoryWindow {
		start = len(events) - recentHistoryWindow
	}
	var b strings.Builder
	for _, ev := range events[start:] {
		fmt.Fprintf(&b, "%s by %s\n", ev.Type, ev.Actor)
	}
	return strings.TrimRight(b.String(), "\n")
}
