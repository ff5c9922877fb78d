package governance

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"taskctl/internal/canon"
	"taskctl/internal/filestore"
)

// AuditRow is one hash-chained row of governance.audit.jsonl: hash = SHA-256(canonicalJSON(row without hash)); rows form a chain
// through prevHash.
type AuditRow struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	Result   string    `json:"result"`
	PrevHash string    `json:"prevHash,omitempty"`
	Hash     string    `json:"hash"`
}

// hashableRow is AuditRow without Hash, the exact body the SHA-256 digest
// covers.
type hashableRow struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	Result   string    `json:"result"`
	PrevHash string    `json:"prevHash,omitempty"`
}

// appendAuditLocked appends one audit row. Callers must already hold the
// board lock — this is invoked from inside the checkpoint/command methods
// that have already acquired it, so it never locks itself.
func (g *Governance) appendAuditLocked(actor, action, target, result string) {
	if err := g.appendAudit(actor, action, target, result); err != nil {
		g.logger.Warn("governance: failed to append audit row: %v", err)
	}
}

func (g *Governance) appendAudit(actor, action, target, result string) error {
	prevHash, err := g.lastHash()
	if err != nil {
		return err
	}

	body := hashableRow{
		At:       time.Now().UTC(),
		Actor:    actor,
		Action:   action,
		Target:   target,
		Result:   result,
		PrevHash: prevHash,
	}
	hash, err := canon.Hash(body)
	if err != nil {
		return fmt.Errorf("governance: hash audit row: %w", err)
	}
	row := AuditRow{
		At: body.At, Actor: body.Actor, Action: body.Action,
		Target: body.Target, Result: body.Result, PrevHash: body.PrevHash, Hash: hash,
	}
	line, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("governance: marshal audit row: %w", err)
	}
	return filestore.AppendLine(g.auditPath, line)
}

func (g *Governance) lastHash() (string, error) {
	f, err := os.Open(g.auditPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("governance: open audit log: %w", err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var row AuditRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		last = row.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("governance: scan audit log: %w", err)
	}
	return last, nil
}

// ReadAuditRows returns every row currently in the audit log, in append
// order.
func (g *Governance) ReadAuditRows() ([]AuditRow, error) {
	data, err := filestore.ReadFileOrEmpty(g.auditPath)
	if err != nil {
		return nil, err
	}
	var rows []AuditRow
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var row AuditRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

// VerifyChain checks that for every row i>0, row[i].prevHash ==
// row[i-1].hash, and that each row's hash matches the canonical-JSON
// digest of its own body.
func VerifyChain(rows []AuditRow) (bool, error) {
	var prev string
	for i, row := range rows {
		if i > 0 && row.PrevHash != prev {
			return false, nil
		}
		body := hashableRow{At: row.At, Actor: row.Actor, Action: row.Action, Target: row.Target, Result: row.Result, PrevHash: row.PrevHash}
		want, err := canon.Hash(body)
		if err != nil {
			return false, err
		}
		if want != row.Hash {
			return false, nil
		}
		prev = row.Hash
	}
	return true, nil
}
