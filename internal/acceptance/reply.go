// Package acceptance implements the worker-reply acceptance gate
// (component F): reply normalization, hard/soft evidence
// extraction, failure-signal detection, and verify-command execution.
package acceptance

import "strings"

// Status is a normalized worker reply status.
type Status string

const (
	StatusDone     Status = "done"
	StatusBlocked  Status = "blocked"
	StatusProgress Status = "progress"
)

// Change is one entry of a reply's changes list.
type Change struct {
	Path    string `json:"path"`
	Summary string `json:"summary"`
}

// Reply is a worker's raw response, normalized Unknown or
// missing Status coerces to progress.
type Reply struct {
	Status      string   `json:"status"`
	Summary     string   `json:"summary,omitempty"`
	Message     string   `json:"message,omitempty"`
	Result      string   `json:"result,omitempty"`
	Output      string   `json:"output,omitempty"`
	Text        string   `json:"text,omitempty"`
	Changes     []Change `json:"changes,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	Risks       []string `json:"risks,omitempty"`
	NextActions []string `json:"nextActions,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// NormalizedStatus coerces Status to one of the three recognized values.
func (r Reply) NormalizedStatus() Status {
	switch Status(strings.ToLower(strings.TrimSpace(r.Status))) {
	case StatusDone:
		return StatusDone
	case StatusBlocked:
		return StatusBlocked
	default:
		return StatusProgress
	}
}

// Corpus assembles the text blob the evidence normalizer scans: summary,
// message, result, output, text, each evidence item, and each change's
// "path: summary" joined string.
func (r Reply) Corpus() string {
	var b strings.Builder
	for _, field := range []string{r.Summary, r.Message, r.Result, r.Output, r.Text} {
		if field != "" {
			b.WriteString(field)
			b.WriteString("\n")
		}
	}
	for _, e := range r.Evidence {
		b.WriteString(e)
		b.WriteString("\n")
	}
	for _, c := range r.Changes {
		b.WriteString(c.Path)
		b.WriteString(": ")
		b.WriteString(c.Summary)
		b.WriteString("\n")
	}
	return b.String()
}
