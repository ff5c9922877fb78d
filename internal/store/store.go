package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskctl/internal/filestore"
	"taskctl/internal/logging"
)

// Store owns state/tasks.jsonl (the journal) and state/tasks.snapshot.json
// (the derived cache) under stateDir, plus the exclusive lock at
// state/locks/task-board.lock that every mutation must hold.
type Store struct {
	stateDir string
	logger   logging.Logger

	mu       sync.Mutex
	snapshot *Snapshot
	loaded   bool
}

// New returns a Store rooted at stateDir. stateDir is created lazily on
// first write.
func New(stateDir string, logger logging.Logger) *Store {
	return &Store{stateDir: stateDir, logger: logging.OrNop(logger)}
}

func (s *Store) journalPath() string  { return filepath.Join(s.stateDir, "tasks.jsonl") }
func (s *Store) snapshotPath() string { return filepath.Join(s.stateDir, "tasks.snapshot.json") }
func (s *Store) lockPath() string     { return filepath.Join(s.stateDir, "locks", "task-board.lock") }

// Lock acquires the exclusive board lock. Callers MUST Release it.
func (s *Store) Lock(owner string) (*filestore.Lock, error) {
	return filestore.Acquire(s.lockPath(), filestore.LockOptions{Owner: owner})
}

// Snapshot returns the current in-memory snapshot, loading it from disk
// (or rebuilding it from the journal if absent) on first call. Read-only
// callers (status, synthesize) use this directly without taking the lock,
//
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.snapshot, nil
	}
	return s.loadOrRebuildLocked()
}

func (s *Store) loadOrRebuildLocked() (*Snapshot, error) {
	data, err := filestore.ReadFileOrEmpty(s.snapshotPath())
	if err != nil {
		return nil, fmt.Errorf("store: read snapshot: %w", err)
	}
	if len(data) > 0 {
		snap := NewSnapshot()
		if err := filestore.ReadJSON(s.snapshotPath(), snap); err != nil {
			return nil, fmt.Errorf("store: parse snapshot: %w", err)
		}
		if snap.Tasks == nil {
			snap.Tasks = make(map[string]*Task)
		}
		s.snapshot = snap
		s.loaded = true
		return snap, nil
	}
	snap, err := s.rebuildLocked()
	if err != nil {
		return nil, err
	}
	s.snapshot = snap
	s.loaded = true
	return snap, nil
}

// Rebuild replays the journal into a fresh snapshot and persists it,
// discarding whatever snapshot file currently exists. Callers must hold the
// board lock, since this is a full-state rewrite.
func (s *Store) Rebuild() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.rebuildLocked()
	if err != nil {
		return nil, err
	}
	if err := s.writeSnapshotLocked(snap); err != nil {
		return nil, err
	}
	s.snapshot = snap
	s.loaded = true
	return snap, nil
}

func (s *Store) rebuildLocked() (*Snapshot, error) {
	snap := NewSnapshot()
	events, err := s.readJournalLocked()
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		applyEventToSnapshot(snap, ev)
	}
	return snap, nil
}

func (s *Store) readJournalLocked() ([]Event, error) {
	f, err := os.Open(s.journalPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open journal: %w", err)
	}
	defer f.Close()

	var events []Event
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := unmarshalEvent(line, &ev); err != nil {
			s.logger.Warn("store: skipping malformed journal line: %v", err)
			continue
		}
		if _, dup := seen[ev.EventID]; dup {
			continue // journal compaction dedup
		}
		seen[ev.EventID] = struct{}{}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan journal: %w", err)
	}
	return events, nil
}

// AppendEvent appends ev to the journal and applies it to the in-memory
// snapshot, then rewrites the snapshot file — event-append precedes
// snapshot-write Callers must hold the board lock.
func (s *Store) AppendEvent(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.At == 0 {
		ev.At = time.Now().UTC().Unix()
	}

	if !s.loaded {
		if _, err := s.loadOrRebuildLocked(); err != nil {
			return err
		}
	}

	line, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	if err := filestore.AppendLine(s.journalPath(), line); err != nil {
		return fmt.Errorf("store: append journal: %w", err)
	}

	applyEventToSnapshot(s.snapshot, ev)
	return s.writeSnapshotLocked(s.snapshot)
}

func (s *Store) writeSnapshotLocked(snap *Snapshot) error {
	snap.Meta.UpdatedAt = time.Now().UTC()
	if err := filestore.WriteJSON(s.snapshotPath(), snap); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	return nil
}

// NextTaskID allocates the next monotonic T-### id by scanning the current
// snapshot's ids for the highest numeric suffix. Callers must hold the
// board lock to avoid a race with a concurrent create.
func (s *Store) NextTaskID() (string, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return "", err
	}
	max := 0
	for id := range snap.Tasks {
		if n, ok := parseTaskSeq(id); ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("T-%03d", max+1), nil
}

func parseTaskSeq(id string) (int, bool) {
	const prefix = "T-"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// applyEventToSnapshot is the single place that turns one journaled event
// into a snapshot mutation — used identically by AppendEvent (incremental)
// and rebuildLocked (full replay), guaranteeing byte-identical snapshots
// from the same journal.
func applyEventToSnapshot(snap *Snapshot, ev Event) {
	switch ev.Type {
	case EventTaskCreated, EventDiagTaskCreated:
		task := taskFromPayload(ev.Payload)
		if task == nil {
			return
		}
		task.SanitizeNumbers()
		task.DependsOn = DedupPreserveOrder(task.DependsOn)
		task.BlockedBy = DedupPreserveOrder(task.BlockedBy)
		task.History = append(task.History, ev.EventID)
		snap.Tasks[task.TaskID] = task
	case EventTaskClaimed, EventTaskDone, EventTaskBlocked:
		task, ok := snap.Tasks[ev.TaskID]
		if !ok {
			return
		}
		mutateTaskFromPayload(task, ev.Payload)
		task.SanitizeNumbers()
		task.UpdatedAt = time.Unix(ev.At, 0).UTC()
		task.History = append(task.History, ev.EventID)
	}
}

func taskFromPayload(payload map[string]any) *Task {
	if payload == nil {
		return nil
	}
	task, ok := payload["task"]
	if !ok {
		return nil
	}
	reencoded, err := marshalAny(task)
	if err != nil {
		return nil
	}
	var t Task
	if err := unmarshalInto(reencoded, &t); err != nil {
		return nil
	}
	return &t
}

func mutateTaskFromPayload(task *Task, payload map[string]any) {
	if payload == nil {
		return
	}
	if status, ok := payload["status"].(string); ok {
		task.Status = Status(status)
	}
	if owner, ok := payload["owner"].(string); ok {
		task.Owner = owner
	}
	if result, ok := payload["result"].(string); ok {
		task.Result = result
	}
	if reason, ok := payload["blockedReason"].(string); ok {
		task.BlockedReason = reason
	}
	if review, ok := payload["review"].(string); ok {
		task.Review = review
	}
}

// Events returns every journaled event for taskID, in append order. It does
// not take the board lock — like Snapshot, it is a read path that may
// observe an event slightly ahead of the snapshot.
func (s *Store) Events(taskID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.readJournalLocked()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range events {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// SortedTaskIDs returns a snapshot's task ids in ascending lexical order —
// the deterministic tie-break order used throughout the board and priority
// engine.
func SortedTaskIDs(snap *Snapshot) []string {
	ids := make([]string, 0, len(snap.Tasks))
	for id := range snap.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
