package board

import (
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskctl/internal/filestore"
	"taskctl/internal/logging"
	"taskctl/internal/store"
)

// dedupCacheSize bounds the inbound-message-id cache. Dedup mechanics beyond this invariant are
// a transport concern and out of scope.
const dedupCacheSize = 4096

// Error kinds from taxonomy that originate in the board.
var (
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrTaskNotFound      = errors.New("task_not_found")
	ErrTaskExists        = errors.New("exists")
	ErrMissingResult     = errors.New("result_required")
	ErrUnrecognized      = errors.New("unrecognized_intent")
)

// Board routes intents against the event-sourced store under its lock.
type Board struct {
	store  *store.Store
	logger logging.Logger
	dedup  *lru.Cache[string, *Result]
}

// New returns a Board backed by s.
func New(s *store.Store, logger logging.Logger) *Board {
	dedup, _ := lru.New[string, *Result](dedupCacheSize) // only fails for a non-positive size.
	return &Board{store: s, logger: logging.OrNop(logger), dedup: dedup}
}

// Result is what Apply (and the read-only Status/Synthesize paths) return.
type Result struct {
	OK      bool         `json:"ok"`
	Intent  Kind         `json:"intent"`
	TaskID  string       `json:"taskId,omitempty"`
	Task    *store.Task  `json:"task,omitempty"`
	EventID string       `json:"eventId,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ApplyWithMessageID is Apply, but skips the mutation and replays the prior
// result when messageID has already been seen — the inbound chat transport's
// duplicate-delivery invariant, not a general dedup subsystem.
// An empty messageID disables dedup for that call.
func (b *Board) ApplyWithMessageID(text, actor, messageID string) (*Result, error) {
	if messageID == "" {
		return b.Apply(text, actor)
	}
	if prior, ok := b.dedup.Get(messageID); ok {
		return prior, nil
	}
	result, err := b.Apply(text, actor)
	if err == nil {
		b.dedup.Add(messageID, result)
	}
	return result, err
}

// Apply parses text into an intent and, for mutating intents, applies it
// under the board lock. actor is the audit/event actor name.
func (b *Board) Apply(text, actor string) (*Result, error) {
	intent := ParseIntent(text)

	switch intent.Kind {
	case KindStatus:
		return b.Status(intent.TaskID)
	case KindSynthesize:
		return b.Synthesize(intent.TaskID)
	case KindUnrecognized:
		return &Result{OK: false, Intent: KindUnrecognized, Error: ErrUnrecognized.Error()}, ErrUnrecognized
	}

	lock, err := b.store.Lock(actor)
	if err != nil {
		return &Result{OK: false, Intent: intent.Kind, Error: filestore.ErrLockBusy.Error()}, err
	}
	defer lock.Release()

	switch intent.Kind {
	case KindCreateTask:
		return b.createTask(intent, actor)
	case KindClaimTask:
		return b.claimTask(intent, actor)
	case KindMarkDone:
		return b.markDone(intent, actor)
	case KindBlockTask:
		return b.blockTask(intent, actor)
	case KindEscalateTask:
		return b.escalateTask(intent, actor)
	default:
		return &Result{OK: false, Intent: KindUnrecognized, Error: ErrUnrecognized.Error()}, ErrUnrecognized
	}
}

func (b *Board) createTask(intent Intent, actor string) (*Result, error) {
	snap, err := b.store.Snapshot()
	if err != nil {
		return nil, err
	}

	taskID := intent.TaskID
	if taskID == "" {
		taskID, err = b.store.NextTaskID()
		if err != nil {
			return nil, err
		}
	} else if _, exists := snap.Tasks[taskID]; exists {
		return &Result{OK: false, Intent: KindCreateTask, TaskID: taskID, Error: ErrTaskExists.Error()}, ErrTaskExists
	}

	now := time.Now().UTC()
	task := &store.Task{
		TaskID:       taskID,
		Title:        intent.Title,
		Status:       store.StatusPending,
		AssigneeHint: intent.Agent,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	task.SanitizeNumbers()

	ev := store.Event{
		TaskID:      taskID,
		Type:        store.EventTaskCreated,
		MessageType: string(KindCreateTask),
		Actor:       actor,
		Payload:     map[string]any{"task": task},
	}
	if err := b.store.AppendEvent(ev); err != nil {
		return nil, err
	}
	return &Result{OK: true, Intent: KindCreateTask, TaskID: taskID, Task: task, EventID: ev.EventID}, nil
}

func (b *Board) claimTask(intent Intent, actor string) (*Result, error) {
	task, err := b.mustGetTask(intent.TaskID)
	if err != nil {
		return b.notFoundResult(KindClaimTask, intent.TaskID, err)
	}

	next := store.StatusClaimed
	if task.Status == store.StatusClaimed || task.Status == store.StatusBlocked {
		next = store.StatusInProgress
	}
	if !store.IsAllowedTransition(task.Status, next) {
		return b.invalidTransitionResult(KindClaimTask, intent.TaskID, task.Status, next)
	}

	owner := actor
	if intent.Agent != "" {
		owner = intent.Agent
	}

	ev := store.Event{
		TaskID:      intent.TaskID,
		Type:        store.EventTaskClaimed,
		MessageType: string(KindClaimTask),
		Actor:       actor,
		Payload:     map[string]any{"status": string(next), "owner": owner},
	}
	if err := b.store.AppendEvent(ev); err != nil {
		return nil, err
	}
	updated, _ := b.mustGetTask(intent.TaskID)
	return &Result{OK: true, Intent: KindClaimTask, TaskID: intent.TaskID, Task: updated, EventID: ev.EventID}, nil
}

func (b *Board) markDone(intent Intent, actor string) (*Result, error) {
	task, err := b.mustGetTask(intent.TaskID)
	if err != nil {
		return b.notFoundResult(KindMarkDone, intent.TaskID, err)
	}
	if intent.Text == "" {
		return &Result{OK: false, Intent: KindMarkDone, TaskID: intent.TaskID, Error: ErrMissingResult.Error()}, ErrMissingResult
	}
	if !store.IsAllowedTransition(task.Status, store.StatusDone) {
		return b.invalidTransitionResult(KindMarkDone, intent.TaskID, task.Status, store.StatusDone)
	}

	ev := store.Event{
		TaskID:      intent.TaskID,
		Type:        store.EventTaskDone,
		MessageType: string(KindMarkDone),
		Actor:       actor,
		Payload:     map[string]any{"status": string(store.StatusDone), "result": intent.Text},
	}
	if err := b.store.AppendEvent(ev); err != nil {
		return nil, err
	}
	updated, _ := b.mustGetTask(intent.TaskID)
	return &Result{OK: true, Intent: KindMarkDone, TaskID: intent.TaskID, Task: updated, EventID: ev.EventID}, nil
}

func (b *Board) blockTask(intent Intent, actor string) (*Result, error) {
	task, err := b.mustGetTask(intent.TaskID)
	if err != nil {
		return b.notFoundResult(KindBlockTask, intent.TaskID, err)
	}
	if !store.IsAllowedTransition(task.Status, store.StatusBlocked) {
		return b.invalidTransitionResult(KindBlockTask, intent.TaskID, task.Status, store.StatusBlocked)
	}

	ev := store.Event{
		TaskID:      intent.TaskID,
		Type:        store.EventTaskBlocked,
		MessageType: string(KindBlockTask),
		Actor:       actor,
		Payload:     map[string]any{"status": string(store.StatusBlocked), "blockedReason": intent.Text},
	}
	if err := b.store.AppendEvent(ev); err != nil {
		return nil, err
	}
	updated, _ := b.mustGetTask(intent.TaskID)
	return &Result{OK: true, Intent: KindBlockTask, TaskID: intent.TaskID, Task: updated, EventID: ev.EventID}, nil
}

// escalateTask blocks the task and additionally creates a diagnostic task
// with assigneeHint=debugger and a relatedTo back-pointer
func (b *Board) escalateTask(intent Intent, actor string) (*Result, error) {
	task, err := b.mustGetTask(intent.TaskID)
	if err != nil {
		return b.notFoundResult(KindEscalateTask, intent.TaskID, err)
	}
	if !store.IsAllowedTransition(task.Status, store.StatusBlocked) {
		return b.invalidTransitionResult(KindEscalateTask, intent.TaskID, task.Status, store.StatusBlocked)
	}

	blockEv := store.Event{
		TaskID:      intent.TaskID,
		Type:        store.EventTaskBlocked,
		MessageType: string(KindEscalateTask),
		Actor:       actor,
		Payload:     map[string]any{"status": string(store.StatusBlocked), "blockedReason": intent.Text},
	}
	if err := b.store.AppendEvent(blockEv); err != nil {
		return nil, err
	}

	diagID, err := b.store.NextTaskID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	diagTask := &store.Task{
		TaskID:       diagID,
		Title:        fmt.Sprintf("diagnose %s: %s", intent.TaskID, intent.Text),
		Status:       store.StatusPending,
		AssigneeHint: "debugger",
		RelatedTo:    intent.TaskID,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	diagEv := store.Event{
		TaskID:      diagID,
		Type:        store.EventDiagTaskCreated,
		MessageType: string(KindEscalateTask),
		Actor:       actor,
		Payload:     map[string]any{"task": diagTask},
	}
	if err := b.store.AppendEvent(diagEv); err != nil {
		return nil, err
	}

	updated, _ := b.mustGetTask(intent.TaskID)
	return &Result{OK: true, Intent: KindEscalateTask, TaskID: intent.TaskID, Task: updated, EventID: diagEv.EventID}, nil
}

// Status is the read-only summary path — it does not take the board lock
//.
func (b *Board) Status(taskID string) (*Result, error) {
	snap, err := b.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if taskID == "" {
		return &Result{OK: true, Intent: KindStatus}, nil
	}
	task, ok := snap.Tasks[taskID]
	if !ok {
		return &Result{OK: false, Intent: KindStatus, TaskID: taskID, Error: ErrTaskNotFound.Error()}, ErrTaskNotFound
	}
	return &Result{OK: true, Intent: KindStatus, TaskID: taskID, Task: task}, nil
}

// Synthesize is the read-only report path over done/review/blocked tasks.
func (b *Board) Synthesize(taskID string) (*Result, error) {
	snap, err := b.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if taskID != "" {
		task, ok := snap.Tasks[taskID]
		if !ok {
			return &Result{OK: false, Intent: KindSynthesize, TaskID: taskID, Error: ErrTaskNotFound.Error()}, ErrTaskNotFound
		}
		return &Result{OK: true, Intent: KindSynthesize, TaskID: taskID, Task: task}, nil
	}
	return &Result{OK: true, Intent: KindSynthesize}, nil
}

func (b *Board) mustGetTask(taskID string) (*store.Task, error) {
	snap, err := b.store.Snapshot()
	if err != nil {
		return nil, err
	}
	task, ok := snap.Tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (b *Board) notFoundResult(kind Kind, taskID string, err error) (*Result, error) {
	return &Result{OK: false, Intent: kind, TaskID: taskID, Error: err.Error()}, err
}

func (b *Board) invalidTransitionResult(kind Kind, taskID string, from, to store.Status) (*Result, error) {
	err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	return &Result{OK: false, Intent: kind, TaskID: taskID, Error: err.Error()}, err
}
