// Package metrics implements the append-only ops.metrics.jsonl event log
// and its windowed aggregation (component K), plus live
// Prometheus counters/histograms for the same event stream.
package metrics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"taskctl/internal/filestore"
)

// Recognized event kinds.
const (
	EventDispatchDone      = "dispatch_done"
	EventDispatchBlocked   = "dispatch_blocked"
	EventRecoveryScheduled = "recovery_scheduled"
	EventRecoveryEscalated = "recovery_escalated"
	EventSchedulerTick     = "scheduler_tick"
)

// Event is one ops.metrics.jsonl row.
type Event struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	TaskID     string    `json:"taskId,omitempty"`
	ReasonCode string    `json:"reasonCode,omitempty"`
	CycleMs    int64     `json:"cycleMs,omitempty"`
}

// Sink owns ops.metrics.jsonl. Appends bypass the board lock — the file is
// opened O_APPEND each call, which is append-atomic for writes at or under
// PIPE_BUF on typical filesystems.
type Sink struct {
	path       string
	prometheus *PrometheusRecorder
}

// New returns a Sink rooted at stateDir. prom may be nil to skip live
// Prometheus recording (e.g. in tests).
func New(stateDir string, prom *PrometheusRecorder) *Sink {
	return &Sink{path: filepath.Join(stateDir, "ops.metrics.jsonl"), prometheus: prom}
}

// Emit appends one event and records it against the live Prometheus
// counters, if wired.
func (s *Sink) Emit(event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("metrics: marshal event: %w", err)
	}
	if err := filestore.AppendLine(s.path, line); err != nil {
		return fmt.Errorf("metrics: append event: %w", err)
	}
	if s.prometheus != nil {
		s.prometheus.Observe(event)
	}
	return nil
}

// ReadEvents returns every event currently in the log, in append order.
func (s *Sink) ReadEvents() ([]Event, error) {
	data, err := filestore.ReadFileOrEmpty(s.path)
	if err != nil {
		return nil, err
	}
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

// Aggregation is the windowed rollup names.
type Aggregation struct {
	WindowDays        int           `json:"windowDays"`
	Throughput        int           `json:"throughput"`
	SuccessRate       float64       `json:"successRate"`
	BlockedReasonTop3 []ReasonCount `json:"blockedReasonTop3,omitempty"`
	RecoveryRate      float64       `json:"recoveryRate"`
	AverageCycleMs    float64       `json:"averageCycleMs"`
}

// ReasonCount is one blocked-reason distribution entry.
type ReasonCount struct {
	ReasonCode string `json:"reasonCode"`
	Count      int    `json:"count"`
}

// Aggregate computes the rollup over events from the last
// windowDays, as measured against now.
func Aggregate(events []Event, windowDays int, now time.Time) Aggregation {
	cutoff := now.AddDate(0, 0, -windowDays)

	var done, blocked, scheduled, escalated int
	var cycleSum int64
	var cycleCount int
	reasonCounts := make(map[string]int)

	for _, e := range events {
		if e.At.Before(cutoff) {
			continue
		}
		switch e.Kind {
		case EventDispatchDone:
			done++
			if e.CycleMs > 0 {
				cycleSum += e.CycleMs
				cycleCount++
			}
		case EventDispatchBlocked:
			blocked++
			if e.ReasonCode != "" {
				reasonCounts[e.ReasonCode]++
			}
			if e.CycleMs > 0 {
				cycleSum += e.CycleMs
				cycleCount++
			}
		case EventRecoveryScheduled:
			scheduled++
		case EventRecoveryEscalated:
			escalated++
		}
	}

	agg := Aggregation{WindowDays: windowDays, Throughput: done}
	if total := done + blocked; total > 0 {
		agg.SuccessRate = float64(done) / float64(total)
	}
	if total := scheduled + escalated; total > 0 {
		agg.RecoveryRate = float64(scheduled) / float64(total)
	}
	if cycleCount > 0 {
		agg.AverageCycleMs = float64(cycleSum) / float64(cycleCount)
	}
	agg.BlockedReasonTop3 = top3(reasonCounts)
	return agg
}

func top3(counts map[string]int) []ReasonCount {
	out := make([]ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonCount{ReasonCode: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ReasonCode < out[j].ReasonCode
	})
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
