// Package governance implements the pause/freeze/abort/approval control
// plane (component D) and its hash-chained audit log.
package governance

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"taskctl/internal/filestore"
	"taskctl/internal/logging"
)

// Locker is the board lock's minimal surface — satisfied by *store.Store
// without governance importing the store package, since every mutator of
// state/ shares the single task-board.lock.
type Locker interface {
	Lock(owner string) (*filestore.Lock, error)
}

// Deny reason codes returned alongside a rejected command.
const (
	ReasonFrozen           = "governance_frozen"
	ReasonPaused           = "governance_paused"
	ReasonAborted          = "governance_aborted"
	ReasonApprovalRequired = "approval_required"
	ReasonApprovalRejected = "approval_rejected"
)

// ApprovalStatus is an approval's terminal/pending state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalTarget restricts an approval to a dispatch task/agent, or leaves
// it unrestricted.
type ApprovalTarget struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId,omitempty"`
	Agent  string `json:"agent,omitempty"`
}

// Approval is one governance approval record.
type Approval struct {
	ID        string         `json:"id"`
	Status    ApprovalStatus `json:"status"`
	Target    ApprovalTarget `json:"target"`
	Decider   string         `json:"decider,omitempty"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
}

// Aborts holds the one-shot abort credit counters.
type Aborts struct {
	Global    int            `json:"global"`
	Autopilot int            `json:"autopilot"`
	Scheduler int            `json:"scheduler"`
	Tasks     map[string]int `json:"tasks,omitempty"`
}

// Control is governance.control.json's contents.
type Control struct {
	Paused    bool                `json:"paused"`
	Frozen    bool                `json:"frozen"`
	Aborts    Aborts              `json:"aborts"`
	Approvals map[string]Approval `json:"approvals,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Governance owns governance.control.json and governance.audit.jsonl.
type Governance struct {
	controlPath string
	auditPath   string
	locker      Locker
	logger      logging.Logger
}

// New returns a Governance rooted at stateDir, sharing locker (typically the
// Store) for the board lock.
func New(stateDir string, locker Locker, logger logging.Logger) *Governance {
	return &Governance{
		controlPath: filepath.Join(stateDir, "governance.control.json"),
		auditPath:   filepath.Join(stateDir, "governance.audit.jsonl"),
		locker:      locker,
		logger:      logging.OrNop(logger),
	}
}

func (g *Governance) load() (*Control, error) {
	ctrl := &Control{Aborts: Aborts{Tasks: make(map[string]int)}}
	if err := filestore.ReadJSON(g.controlPath, ctrl); err != nil {
		return nil, fmt.Errorf("governance: read control: %w", err)
	}
	if ctrl.Aborts.Tasks == nil {
		ctrl.Aborts.Tasks = make(map[string]int)
	}
	if ctrl.Approvals == nil {
		ctrl.Approvals = make(map[string]Approval)
	}
	return ctrl, nil
}

func (g *Governance) save(ctrl *Control) error {
	ctrl.UpdatedAt = time.Now().UTC()
	if err := filestore.WriteJSON(g.controlPath, ctrl); err != nil {
		return fmt.Errorf("governance: write control: %w", err)
	}
	return nil
}

// Decision is a checkpoint's outcome.
type Decision struct {
	Allow      bool   `json:"allow"`
	ReasonCode string `json:"reasonCode,omitempty"`
}

// CheckpointDispatch implements dispatch checkpoint: frozen
// denies outright; otherwise one task-scoped (then global) abort credit is
// consumed if present; otherwise matching approvals gate the call.
func (g *Governance) CheckpointDispatch(taskID, agent, actor string) (Decision, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return Decision{}, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return Decision{}, err
	}

	if ctrl.Frozen {
		g.appendAuditLocked(actor, "checkpoint_dispatch", taskID, "deny:"+ReasonFrozen)
		return Decision{Allow: false, ReasonCode: ReasonFrozen}, nil
	}

	if consumeTaskOrGlobalAbort(ctrl, taskID) {
		if err := g.save(ctrl); err != nil {
			return Decision{}, err
		}
		g.appendAuditLocked(actor, "checkpoint_dispatch", taskID, "deny:"+ReasonAborted)
		return Decision{Allow: false, ReasonCode: ReasonAborted}, nil
	}

	for _, approval := range ctrl.Approvals {
		if !approvalTargetsDispatch(approval.Target, taskID, agent) {
			continue
		}
		switch approval.Status {
		case ApprovalPending:
			g.appendAuditLocked(actor, "checkpoint_dispatch", taskID, "deny:"+ReasonApprovalRequired)
			return Decision{Allow: false, ReasonCode: ReasonApprovalRequired}, nil
		case ApprovalRejected:
			g.appendAuditLocked(actor, "checkpoint_dispatch", taskID, "deny:"+ReasonApprovalRejected)
			return Decision{Allow: false, ReasonCode: ReasonApprovalRejected}, nil
		}
	}

	g.appendAuditLocked(actor, "checkpoint_dispatch", taskID, "allow")
	return Decision{Allow: true}, nil
}

func approvalTargetsDispatch(target ApprovalTarget, taskID, agent string) bool {
	if target.Type != "dispatch" {
		return false
	}
	if target.TaskID != "" && target.TaskID != taskID {
		return false
	}
	if target.Agent != "" && !strings.EqualFold(target.Agent, agent) {
		return false
	}
	return true
}

// CheckpointAutopilot implements autopilot checkpoint.
func (g *Governance) CheckpointAutopilot(actor string) (Decision, error) {
	return g.checkpointScope("autopilot", actor)
}

// CheckpointScheduler implements scheduler checkpoint.
func (g *Governance) CheckpointScheduler(actor string) (Decision, error) {
	return g.checkpointScope("scheduler", actor)
}

func (g *Governance) checkpointScope(scope, actor string) (Decision, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return Decision{}, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return Decision{}, err
	}

	action := "checkpoint_" + scope
	if ctrl.Frozen {
		g.appendAuditLocked(actor, action, scope, "deny:"+ReasonFrozen)
		return Decision{Allow: false, ReasonCode: ReasonFrozen}, nil
	}
	if ctrl.Paused {
		g.appendAuditLocked(actor, action, scope, "deny:"+ReasonPaused)
		return Decision{Allow: false, ReasonCode: ReasonPaused}, nil
	}

	consumed := false
	switch scope {
	case "autopilot":
		if ctrl.Aborts.Autopilot > 0 {
			ctrl.Aborts.Autopilot--
			consumed = true
		}
	case "scheduler":
		if ctrl.Aborts.Scheduler > 0 {
			ctrl.Aborts.Scheduler--
			consumed = true
		}
	}
	if !consumed && ctrl.Aborts.Global > 0 {
		ctrl.Aborts.Global--
		consumed = true
	}
	if consumed {
		if err := g.save(ctrl); err != nil {
			return Decision{}, err
		}
		g.appendAuditLocked(actor, action, scope, "deny:"+ReasonAborted)
		return Decision{Allow: false, ReasonCode: ReasonAborted}, nil
	}

	g.appendAuditLocked(actor, action, scope, "allow")
	return Decision{Allow: true}, nil
}

func consumeTaskOrGlobalAbort(ctrl *Control, taskID string) bool {
	if taskID != "" {
		if n, ok := ctrl.Aborts.Tasks[taskID]; ok && n > 0 {
			ctrl.Aborts.Tasks[taskID] = n - 1
			return true
		}
	}
	if ctrl.Aborts.Global > 0 {
		ctrl.Aborts.Global--
		return true
	}
	return false
}
