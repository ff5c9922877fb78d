// Package tokencount estimates prompt token counts ahead of a dispatch
// attempt, for the budget policy's precheck — actual usage
// is only known once a worker replies, so the precheck needs a cheap
// estimate of what the about-to-be-sent prompt will cost.
package tokencount

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

var encoding = loadEncoding()

func loadEncoding() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return enc
}

// Count returns text's token count under cl100k_base. If the encoding's BPE
// ranks could not be loaded (e.g. no network access), it falls back to a
// word/rune estimate rather than failing the caller.
func Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return estimateFast(text)
}

// estimateFast approximates token count without a tokenizer: roughly one
// token per word, biased up for dense/non-whitespace text.
func estimateFast(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	runes := len([]rune(text))
	if runes/4 > words {
		return runes / 4
	}
	return words
}
