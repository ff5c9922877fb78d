package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskctl/internal/acceptance"
	"taskctl/internal/board"
	"taskctl/internal/budget"
	"taskctl/internal/config"
	"taskctl/internal/executor"
	"taskctl/internal/governance"
	"taskctl/internal/knowledge"
	"taskctl/internal/metrics"
	"taskctl/internal/priority"
	"taskctl/internal/recovery"
	"taskctl/internal/store"
	"taskctl/internal/tokencount"
)

const tracerScope = "taskctl.dispatch"

// Decision is the dispatch iteration's top-level verdict.
type Decision string

const (
	DecisionDone    Decision = "done"
	DecisionBlocked Decision = "blocked"
	DecisionDenied  Decision = "denied"
)

// Reason codes specific to the dispatcher's own steps (governance/priority
// reasons are carried through as reported by their components).
const (
	ReasonBudgetExceeded = "budget_exceeded"
)

// ExecutorResolver selects the worker executor for one agent id.
type ExecutorResolver func(agent string) executor.Executor

// Output is what one Dispatch call returns.
type Output struct {
	OK                   bool                `json:"ok"`
	Decision             Decision            `json:"decision"`
	ReasonCode           string              `json:"reasonCode,omitempty"`
	AcceptanceReasonCode string              `json:"acceptanceReasonCode,omitempty"`
	ExceededKeys         []string            `json:"exceededKeys,omitempty"`
	Metrics              OutputMetrics       `json:"metrics"`
	Selection            *priority.Selection `json:"selection,omitempty"`
	Recovery             *recovery.Entry     `json:"recovery,omitempty"`
}

// OutputMetrics is the Output's embedded per-attempt metrics.
type OutputMetrics struct {
	TokenUsage int   `json:"tokenUsage"`
	ElapsedMs  int64 `json:"elapsedMs"`
}

// Dispatcher wires every other component into the iteration.
type Dispatcher struct {
	Store         *store.Store
	Board         *board.Board
	Governance    *governance.Governance
	Budget        *budget.Budget
	Recovery      *recovery.Recovery
	Metrics       *metrics.Sink
	Acceptance    config.AcceptancePolicy
	Strategies    *knowledge.StrategyProvider
	Hints         *knowledge.HintProvider
	Executors     ExecutorResolver
	WorkDir       string
	WorkerTimeout time.Duration
}

// Dispatch runs one dispatch iteration for (taskID, agent). taskID may be
// empty, in which case the priority engine selects one.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID, agent, actor string) (*Output, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerScope).Start(ctx, "taskctl.dispatch.iteration",
		trace.WithAttributes(attribute.String("taskctl.task_id", taskID), attribute.String("taskctl.agent", agent)))
	defer span.End()

	output, err := d.dispatch(ctx, taskID, agent, actor, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if output != nil {
		span.SetAttributes(attribute.String("taskctl.decision", string(output.Decision)), attribute.String("taskctl.reason_code", output.ReasonCode))
	}
	return output, err
}

func (d *Dispatcher) dispatch(ctx context.Context, taskID, agent, actor string, start time.Time) (*Output, error) {
	// 1. governance checkpoint.
	decision, err := d.Governance.CheckpointDispatch(taskID, agent, actor)
	if err != nil {
		return nil, fmt.Errorf("dispatch: governance checkpoint: %w", err)
	}
	if !decision.Allow {
		d.emit(metrics.Event{Kind: metrics.EventDispatchBlocked, TaskID: taskID, ReasonCode: decision.ReasonCode})
		return &Output{OK: false, Decision: DecisionDenied, ReasonCode: decision.ReasonCode}, nil
	}

	// 2. select a task if none given.
	snap, err := d.Store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("dispatch: snapshot: %w", err)
	}
	selection, err := priority.Select(snap, taskID)
	if err != nil {
		d.emit(metrics.Event{Kind: metrics.EventDispatchBlocked, TaskID: taskID, ReasonCode: "task_not_ready"})
		return &Output{OK: false, Decision: DecisionDenied, ReasonCode: "task_not_ready", Selection: selection}, nil
	}
	resolvedID := selection.TaskID

	// 3. load the task; not-runnable/not-ready already excluded by Select.
	task, ok := snap.Tasks[resolvedID]
	if !ok {
		return &Output{OK: false, Decision: DecisionDenied, ReasonCode: "task_not_found", Selection: selection}, nil
	}

	// 4. build the prompt.
	events, err := d.Store.Events(resolvedID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load task history: %w", err)
	}
	prompt := buildPrompt(ctx, task, snap, events, d.Strategies, d.Hints, "", agent)

	// 5. budget precheck, biased by an estimate of this prompt's cost since
	// actual usage is unknown until the worker replies.
	preSnap, err := d.Budget.PrecheckWithEstimate(actor, resolvedID, agent, tokencount.Count(prompt))
	if err != nil {
		return nil, fmt.Errorf("dispatch: budget precheck: %w", err)
	}
	if preSnap.Exceeded() {
		d.emit(metrics.Event{Kind: metrics.EventDispatchBlocked, TaskID: resolvedID, ReasonCode: ReasonBudgetExceeded})
		return &Output{
			OK: false, Decision: DecisionBlocked, ReasonCode: ReasonBudgetExceeded,
			ExceededKeys: preSnap.ExceededKeys, Selection: selection,
		}, nil
	}

	// 6. spawn the worker.
	exec := d.resolveExecutor(agent)
	attemptStart := time.Now()
	result, execErr := exec.Execute(ctx, executor.Request{
		TaskID: resolvedID, Agent: agent, Prompt: prompt,
		WorkingDir: d.WorkDir, Timeout: d.WorkerTimeout,
	})
	elapsedMs := time.Since(attemptStart).Milliseconds()

	var reply acceptance.Reply
	var tokenUsage int
	if execErr != nil {
		reply = acceptance.Reply{Status: string(acceptance.StatusBlocked), Summary: recovery.ReasonSpawnFailed}
	} else {
		// 7. parse the worker reply.
		reply = parseReplyAdapter(result.Stdout)
		// 8. normalize token usage (dedups prompt/input and completion/output aliases).
		tokenUsage = tokenUsageFromStdout(result.Stdout)
	}

	// 9. acceptance gate. A spawn failure never reaches the gate — it is
	// always a recovery-qualifying block in its own right.
	var acceptDecision acceptance.Decision
	if execErr != nil {
		acceptDecision = acceptance.Decision{
			Accept: false, Status: acceptance.StatusBlocked,
			ReasonCode: recovery.ReasonSpawnFailed, Detail: execErr.Error(),
		}
	} else {
		acceptDecision, err = acceptance.Evaluate(ctx, reply, agent, d.Acceptance, d.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("dispatch: acceptance gate: %w", err)
		}
	}
	if err := d.applyBoardIntent(resolvedID, agent, actor, acceptDecision); err != nil {
		return nil, fmt.Errorf("dispatch: apply board intent: %w", err)
	}

	// 10. budget postcheck.
	postSnap, err := d.Budget.RecordAttempt(actor, resolvedID, agent, budgetUsage(tokenUsage, elapsedMs, execErr != nil))
	if err != nil {
		return nil, fmt.Errorf("dispatch: budget record: %w", err)
	}

	output := &Output{
		OK:                   acceptDecision.Accept,
		Decision:             decisionFromAcceptance(acceptDecision),
		ReasonCode:           acceptDecision.ReasonCode,
		AcceptanceReasonCode: acceptDecision.AcceptanceReasonCode,
		Metrics:              OutputMetrics{TokenUsage: tokenUsage, ElapsedMs: time.Since(start).Milliseconds()},
		Selection:            selection,
	}

	if postSnap.Exceeded() {
		output.Decision = DecisionBlocked
		output.ReasonCode = ReasonBudgetExceeded
		output.ExceededKeys = postSnap.ExceededKeys
		output.OK = false
	}

	// 11. recovery loop for qualifying non-done decisions.
	if output.Decision != DecisionDone && recoveryQualifies(output.ReasonCode) {
		entry, err := d.Recovery.Advance(actor, resolvedID, output.ReasonCode, agent)
		if err != nil {
			return nil, fmt.Errorf("dispatch: recovery advance: %w", err)
		}
		output.Recovery = &entry
	}

	// 12. emit metrics.
	d.emitFinal(output, resolvedID)

	return output, nil
}

func (d *Dispatcher) resolveExecutor(agent string) executor.Executor {
	if d.Executors != nil {
		if e := d.Executors(agent); e != nil {
			return e
		}
	}
	return &executor.FakeExecutor{Stdout: `{"status":"blocked","summary":"no executor configured"}`}
}

func (d *Dispatcher) applyBoardIntent(taskID, agent, actor string, decision acceptance.Decision) error {
	var text string
	switch decision.Status {
	case acceptance.StatusDone:
		text = fmt.Sprintf("mark done %s: %s", taskID, summaryOrDefault(decision))
	case acceptance.StatusBlocked:
		text = fmt.Sprintf("block task %s: %s", taskID, decision.Detail)
	default:
		return nil // progress: no board transition.
	}
	if _, err := d.Board.Apply(text, actor); err != nil {
		if errors.Is(err, board.ErrInvalidTransition) {
			return nil // already in the target state or a no-op edge; not fatal to dispatch.
		}
		return err
	}
	return nil
}

func summaryOrDefault(decision acceptance.Decision) string {
	if decision.Detail != "" {
		return decision.Detail
	}
	return decision.AcceptanceReasonCode
}

func (d *Dispatcher) emit(event metrics.Event) {
	if d.Metrics == nil {
		return
	}
	_ = d.Metrics.Emit(event)
}

func (d *Dispatcher) emitFinal(output *Output, taskID string) {
	switch output.Decision {
	case DecisionDone:
		d.emit(metrics.Event{Kind: metrics.EventDispatchDone, TaskID: taskID, CycleMs: output.Metrics.ElapsedMs})
	default:
		d.emit(metrics.Event{Kind: metrics.EventDispatchBlocked, TaskID: taskID, ReasonCode: output.ReasonCode, CycleMs: output.Metrics.ElapsedMs})
	}
	if output.Recovery != nil {
		switch output.Recovery.RecoveryState {
		case recovery.StateRecoveryScheduled:
			d.emit(metrics.Event{Kind: metrics.EventRecoveryScheduled, TaskID: taskID})
		case recovery.StateEscalatedToHuman:
			d.emit(metrics.Event{Kind: metrics.EventRecoveryEscalated, TaskID: taskID})
		}
	}
}

func decisionFromAcceptance(decision acceptance.Decision) Decision {
	switch decision.Status {
	case acceptance.StatusDone:
		return DecisionDone
	default:
		return DecisionBlocked
	}
}

func recoveryQualifies(reasonCode string) bool {
	switch reasonCode {
	case recovery.ReasonSpawnFailed, recovery.ReasonIncompleteOutput, recovery.ReasonBlockedSignal:
		return true
	default:
		return false
	}
}
