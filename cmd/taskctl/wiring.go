package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"taskctl/internal/board"
	"taskctl/internal/budget"
	"taskctl/internal/config"
	"taskctl/internal/dispatch"
	"taskctl/internal/executor"
	"taskctl/internal/governance"
	"taskctl/internal/knowledge"
	"taskctl/internal/logging"
	"taskctl/internal/metrics"
	"taskctl/internal/priority"
	"taskctl/internal/recovery"
	"taskctl/internal/scheduler"
	"taskctl/internal/store"
)

// App bundles every wired component for one CLI invocation, rooted at a
// single state directory sharing the board lock.
type App struct {
	Store      *store.Store
	Board      *board.Board
	Governance *governance.Governance
	Budget     *budget.Budget
	Recovery   *recovery.Recovery
	Metrics    *metrics.Sink
	Registry   *prometheus.Registry
	Scheduler  *scheduler.Scheduler
	Dispatcher *dispatch.Dispatcher
	Policies   config.Policies
	Logger     logging.Logger
}

// newApp loads config/ under configDir and wires every component against
// state/ under stateDir.
func newApp(stateDir, configDir string) (*App, error) {
	policies, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	logger := logging.NewComponentLogger("taskctl")
	st := store.New(stateDir, logger)
	registry := prometheus.NewRegistry()
	prom := metrics.NewPrometheusRecorder(registry)
	sink := metrics.New(stateDir, prom)

	hintSource := knowledge.StaticSource{}
	hints, err := knowledge.NewHintProvider(policies.Knowledge, hintSource, 0, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := &dispatch.Dispatcher{
		Store:         st,
		Board:         board.New(st, logger),
		Governance:    governance.New(stateDir, st, logger),
		Budget:        budget.New(stateDir, st, policies.Budget),
		Recovery:      recovery.New(stateDir, st, policies.Recovery),
		Metrics:       sink,
		Acceptance:    policies.Acceptance,
		Strategies:    knowledge.NewStrategyProvider(policies.Strategies),
		Hints:         hints,
		Executors:     buildExecutorResolver(policies.Runtime),
		WorkDir:       stateDir,
		WorkerTimeout: 2 * time.Minute,
	}

	return &App{
		Store:      st,
		Board:      dispatcher.Board,
		Governance: dispatcher.Governance,
		Budget:     dispatcher.Budget,
		Recovery:   dispatcher.Recovery,
		Metrics:    sink,
		Registry:   registry,
		Scheduler:  scheduler.New(stateDir, st),
		Dispatcher: dispatcher,
		Policies:   policies,
		Logger:     logger,
	}, nil
}

// buildExecutorResolver maps each agent id to the executor kind its
// runtime-policy.json entry names, defaulting to a fake executor so an
// un-configured agent degrades to a harmless blocked reply instead of a
// crash.
func buildExecutorResolver(policy config.RuntimePolicy) dispatch.ExecutorResolver {
	return func(agent string) executor.Executor {
		cfg, ok := policy.Agents[agent]
		if !ok {
			cfg, ok = policy.Agents["default"]
		}
		if !ok {
			return &executor.FakeExecutor{Stdout: `{"status":"blocked","summary":"no runtime policy configured for this agent"}`}
		}

		var base executor.Executor
		switch cfg.Executor {
		case "bridge":
			base = executor.NewBridgeExecutor(cfg.BinaryPath, nil)
		case "fake":
			base = &executor.FakeExecutor{Stdout: `{"status":"done","summary":"fake executor"}`}
		default:
			base = executor.NewSubprocessExecutor(cfg.BinaryPath, nil)
		}
		if cfg.TimeoutSec > 0 {
			return &timeoutExecutor{inner: base, timeout: time.Duration(cfg.TimeoutSec) * time.Second}
		}
		return base
	}
}

// timeoutExecutor fills in Request.Timeout from the agent's runtime-policy
// config when the caller left it unset.
type timeoutExecutor struct {
	inner   executor.Executor
	timeout time.Duration
}

func (t *timeoutExecutor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	if req.Timeout <= 0 {
		req.Timeout = t.timeout
	}
	return t.inner.Execute(ctx, req)
}

// selectNext picks the next ready task and its agent (the task's assignee
// hint, defaulting to "coder"), for the operator-triggered autopilot loop
// and the scheduler's per-tick dispatch step — both select-then-dispatch
// rather than dispatching a caller-supplied (taskId, agent) pair.
func selectNext(st *store.Store) (taskID, agent string, err error) {
	snap, err := st.Snapshot()
	if err != nil {
		return "", "", err
	}
	sel, err := priority.Select(snap, "")
	if err != nil {
		return "", "", err
	}
	agent = snap.Tasks[sel.TaskID].AssigneeHint
	if agent == "" {
		agent = "coder"
	}
	return sel.TaskID, agent, nil
}

// resolveAgent looks up a caller-supplied task's assignee hint when the
// command did not pass --agent explicitly.
func resolveAgent(st *store.Store, taskID, explicitAgent string) (string, error) {
	if explicitAgent != "" {
		return explicitAgent, nil
	}
	snap, err := st.Snapshot()
	if err != nil {
		return "", err
	}
	task, ok := snap.Tasks[taskID]
	if !ok || task.AssigneeHint == "" {
		return "coder", nil
	}
	return task.AssigneeHint, nil
}
