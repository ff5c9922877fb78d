package executor

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"taskctl/internal/acceptance"
)

// ParseReply implements step 7: accept a bare JSON object or
// the largest {…} substring; on parse failure (even after jsonrepair),
// synthesize a blocked reply rather than erroring the dispatch.
func ParseReply(stdout string) acceptance.Reply {
	candidate := largestBraceSubstring(stdout)
	if candidate == "" {
		return blockedEmptyReply()
	}

	var reply acceptance.Reply
	if err := json.Unmarshal([]byte(candidate), &reply); err == nil {
		return reply
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return blockedEmptyReply()
	}
	if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
		return blockedEmptyReply()
	}
	return reply
}

func blockedEmptyReply() acceptance.Reply {
	return acceptance.Reply{Status: string(acceptance.StatusBlocked), Summary: "output is empty or invalid"}
}

// largestBraceSubstring returns the widest balanced-looking {...} span in s:
// the first '{' through the last '}'. It does not validate JSON — that is
// ParseReply's job — it only narrows the search space before parsing.
func largestBraceSubstring(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}
