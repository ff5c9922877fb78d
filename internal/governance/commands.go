package governance

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// CommandResult is what ApplyCommand returns.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Command string `json:"command"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

var (
	abortRe   = regexp.MustCompile(`(?i)^(abort|治理\s*中止)\s+(.+)$`)
	approveRe = regexp.MustCompile(`(?i)^(approve|治理\s*审批\s*通过)\s+(\S+)$`)
	rejectRe  = regexp.MustCompile(`(?i)^(reject|治理\s*审批\s*拒绝)\s+(\S+)$`)
)

// ApplyCommand routes one governance text command (English or the Chinese
// forms from) and appends the corresponding audit row.
func (g *Governance) ApplyCommand(text, actor string) (*CommandResult, error) {
	trimmed := strings.TrimSpace(text)
	normalized := normalizeCommand(trimmed)

	switch normalized {
	case "status", "治理状态":
		return g.commandStatus(actor)
	case "pause", "治理暂停":
		return g.toggle(actor, "pause", func(c *Control) { c.Paused = true })
	case "resume", "治理恢复":
		return g.toggle(actor, "resume", func(c *Control) { c.Paused = false })
	case "freeze", "治理冻结":
		return g.toggle(actor, "freeze", func(c *Control) { c.Frozen = true })
	case "unfreeze", "治理解冻":
		return g.toggle(actor, "unfreeze", func(c *Control) { c.Frozen = false })
	}

	if m := abortRe.FindStringSubmatch(trimmed); m != nil {
		return g.abort(actor, strings.TrimSpace(m[2]))
	}
	if m := approveRe.FindStringSubmatch(trimmed); m != nil {
		return g.decideApproval(actor, m[2], ApprovalApproved)
	}
	if m := rejectRe.FindStringSubmatch(trimmed); m != nil {
		return g.decideApproval(actor, m[2], ApprovalRejected)
	}

	return &CommandResult{OK: false, Command: trimmed, Error: "unrecognized_command"}, fmt.Errorf("governance: unrecognized command %q", trimmed)
}

func normalizeCommand(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	return strings.Join(strings.Fields(lower), "")
}

func (g *Governance) toggle(actor, action string, mutate func(*Control)) (*CommandResult, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return nil, err
	}
	mutate(ctrl)
	if err := g.save(ctrl); err != nil {
		return nil, err
	}
	g.appendAuditLocked(actor, action, "", "allow")
	return &CommandResult{OK: true, Command: action, Summary: fmt.Sprintf("paused=%v frozen=%v", ctrl.Paused, ctrl.Frozen)}, nil
}

// target ∈ {all, global, autopilot, scheduler, T-###}.
func (g *Governance) abort(actor, target string) (*CommandResult, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return nil, err
	}

	lowered := strings.ToLower(strings.TrimSpace(target))
	switch {
	case lowered == "all" || lowered == "global" || lowered == "全部":
		ctrl.Aborts.Global++
	case lowered == "autopilot" || lowered == "自动推进":
		ctrl.Aborts.Autopilot++
	case lowered == "scheduler" || lowered == "调度":
		ctrl.Aborts.Scheduler++
	default:
		if ctrl.Aborts.Tasks == nil {
			ctrl.Aborts.Tasks = make(map[string]int)
		}
		ctrl.Aborts.Tasks[target]++
	}
	if err := g.save(ctrl); err != nil {
		return nil, err
	}
	g.appendAuditLocked(actor, "abort", target, "allow")
	return &CommandResult{OK: true, Command: "abort", Summary: "aborted " + target}, nil
}

func (g *Governance) decideApproval(actor, approvalID string, status ApprovalStatus) (*CommandResult, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return nil, err
	}
	approval, ok := ctrl.Approvals[approvalID]
	if !ok {
		g.appendAuditLocked(actor, "decide_approval", approvalID, "deny:not_found")
		return &CommandResult{OK: false, Command: "decide_approval", Error: "approval_not_found"}, fmt.Errorf("governance: approval %q not found", approvalID)
	}
	now := time.Now().UTC()
	approval.Status = status
	approval.Decider = actor
	approval.DecidedAt = &now
	ctrl.Approvals[approvalID] = approval
	if err := g.save(ctrl); err != nil {
		return nil, err
	}
	g.appendAuditLocked(actor, "decide_approval", approvalID, "allow:"+string(status))
	return &CommandResult{OK: true, Command: "decide_approval", Summary: fmt.Sprintf("%s -> %s", approvalID, status)}, nil
}

func (g *Governance) commandStatus(actor string) (*CommandResult, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return nil, err
	}
	g.appendAuditLocked(actor, "status", "", "allow")
	return &CommandResult{OK: true, Command: "status", Summary: fmt.Sprintf("paused=%v frozen=%v approvals=%d", ctrl.Paused, ctrl.Frozen, len(ctrl.Approvals))}, nil
}

// PutApproval writes or overwrites an approval record directly (used by
// operator tooling/tests that seed approvals ahead of a dispatch).
func (g *Governance) PutApproval(actor string, approval Approval) error {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return err
	}
	if ctrl.Approvals == nil {
		ctrl.Approvals = make(map[string]Approval)
	}
	ctrl.Approvals[approval.ID] = approval
	return g.save(ctrl)
}

// PendingApprovals lists approvals still awaiting a decision, oldest id
// first, for the govern CLI's interactive approve/reject prompt.
func (g *Governance) PendingApprovals(actor string) ([]Approval, error) {
	lock, err := g.locker.Lock(actor)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ctrl, err := g.load()
	if err != nil {
		return nil, err
	}
	pending := make([]Approval, 0, len(ctrl.Approvals))
	for _, approval := range ctrl.Approvals {
		if approval.Status == ApprovalPending {
			pending = append(pending, approval)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}
