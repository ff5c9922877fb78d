package acceptance

import (
	"regexp"
	"strings"
)

var (
	urlRe      = regexp.MustCompile(`https?://\S+`)
	pathLikeRe = regexp.MustCompile(`\S*/\S+`)
	// name.ext where ext is 1-8 chars from a fixed code/config/log set.
	fileExtRe = regexp.MustCompile(`\b[\w-]+\.(go|py|js|ts|tsx|jsx|java|rb|rs|c|h|cpp|hpp|json|yaml|yml|toml|ini|cfg|conf|log|md|sh|txt)\b`)

	testRunnerKeywordRe = regexp.MustCompile(`(?i)\b(go test|pytest|jest|mocha|rspec|junit|cargo test|npm test)\b`)
	passSignalRe        = regexp.MustCompile(`(?i)\b(PASS|ok)\b|\b\d+\s+passed\b|测试通过`)
	standaloneResultRe  = regexp.MustCompile(`(?i)\b\d+\s+passed\b|^ok\b|测试通过`)

	failureSignalRe = regexp.MustCompile(`(?i)\b\d+\s+failed\b|FAILED\s+\S+::\S+|Traceback \(most recent call last\)|测试未通过`)

	hintWordRe = regexp.MustCompile(`(?i)\b(evidence|proof|log|output|result|summary)\b|证据|日志|结果|摘要`)
)

// Evidence is the corpus's hard/soft evidence extraction result.
type Evidence struct {
	Hard []string
	Soft []string
}

// ExtractEvidence implements evidence normalizer: hard
// evidence is URLs, file-like paths, and test-result lines; soft evidence is
// hint-word lines not already counted as hard.
func ExtractEvidence(corpus string) Evidence {
	var ev Evidence
	hardSet := make(map[string]struct{})

	addHard := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := hardSet[s]; ok {
			return
		}
		hardSet[s] = struct{}{}
		ev.Hard = append(ev.Hard, s)
	}

	for _, m := range urlRe.FindAllString(corpus, -1) {
		addHard(m)
	}
	for _, m := range fileExtRe.FindAllString(corpus, -1) {
		addHard(m)
	}
	for _, tok := range pathLikeRe.FindAllString(corpus, -1) {
		addHard(tok)
	}

	lines := strings.Split(corpus, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		isTestLine := (testRunnerKeywordRe.MatchString(trimmed) && passSignalRe.MatchString(trimmed)) || standaloneResultRe.MatchString(trimmed)
		if isTestLine {
			addHard(trimmed)
			continue
		}
		if hintWordRe.MatchString(trimmed) {
			if _, already := hardSet[trimmed]; !already {
				ev.Soft = append(ev.Soft, trimmed)
			}
		}
	}

	return ev
}

// HasFailureSignal reports whether the corpus contains a recognized
// failure marker.
func HasFailureSignal(corpus string) bool {
	return failureSignalRe.MatchString(corpus)
}
