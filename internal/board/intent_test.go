package board

import "testing"

func TestParseIntentCreateTask(t *testing.T) {
	tests := []struct {
		text      string
		wantAgent string
		wantID    string
		wantTitle string
	}{
		{"@coder create task T-001: demo", "coder", "T-001", "demo"},
		{"create task: no id yet", "", "", "no id yet"},
		{"create_task T-009: snake case form", "", "T-009", "snake case form"},
	}
	for _, tt := range tests {
		intent := ParseIntent(tt.text)
		if intent.Kind != KindCreateTask {
			t.Fatalf("text=%q: kind = %v, want create_task", tt.text, intent.Kind)
		}
		if intent.Agent != tt.wantAgent || intent.TaskID != tt.wantID || intent.Title != tt.wantTitle {
			t.Fatalf("text=%q: got %+v", tt.text, intent)
		}
	}
}

func TestParseIntentCaseInsensitiveKeywordCasePreservingID(t *testing.T) {
	intent := ParseIntent("CLAIM TASK t-001")
	if intent.Kind != KindClaimTask {
		t.Fatalf("kind = %v, want claim_task", intent.Kind)
	}
	if intent.TaskID != "t-001" {
		t.Fatalf("task id = %q, want case preserved as t-001", intent.TaskID)
	}
}

func TestParseIntentMarkDoneWithAndWithoutResult(t *testing.T) {
	withResult := ParseIntent("mark done T-001: all tests pass")
	if withResult.Kind != KindMarkDone || withResult.TaskID != "T-001" || withResult.Text != "all tests pass" {
		t.Fatalf("got %+v", withResult)
	}
	withoutResult := ParseIntent("mark done T-002")
	if withoutResult.Kind != KindMarkDone || withoutResult.Text != "" {
		t.Fatalf("got %+v", withoutResult)
	}
}

func TestParseIntentStatusAndSynthesizeOptionalID(t *testing.T) {
	s1 := ParseIntent("status")
	if s1.Kind != KindStatus || s1.TaskID != "" {
		t.Fatalf("got %+v", s1)
	}
	s2 := ParseIntent("status T-003")
	if s2.Kind != KindStatus || s2.TaskID != "T-003" {
		t.Fatalf("got %+v", s2)
	}
	s3 := ParseIntent("synthesize T-003")
	if s3.Kind != KindSynthesize || s3.TaskID != "T-003" {
		t.Fatalf("got %+v", s3)
	}
}

func TestParseIntentUnrecognized(t *testing.T) {
	intent := ParseIntent("do something unrelated")
	if intent.Kind != KindUnrecognized {
		t.Fatalf("kind = %v, want unrecognized", intent.Kind)
	}
}
