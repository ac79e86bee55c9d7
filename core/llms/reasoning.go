package llms

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

const (
	reasoningOpenTag  = "<think>"
	reasoningCloseTag = "</think>"
)

var reasoningBlock = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(reasoningOpenTag) + `(.*?)` + regexp.QuoteMeta(reasoningCloseTag))

// ExtractReasoning splits a completion into its visible answer and the
// content of the first reasoning block. Every reasoning block is removed from
// the answer. Tags are matched case-sensitively and non-greedily across lines.
func ExtractReasoning(completion string) (answer string, reasoning string) {
	match := reasoningBlock.FindStringSubmatch(completion)
	if match == nil {
		return strings.TrimSpace(completion), ""
	}

	reasoning = strings.TrimSpace(match[1])
	answer = strings.TrimSpace(reasoningBlock.ReplaceAllString(completion, ""))
	return answer, reasoning
}

// StripReasoning returns the completion without any reasoning blocks.
func StripReasoning(completion string) string {
	answer, _ := ExtractReasoning(completion)
	return answer
}

// CleanSymbols removes emoji and other pictographic symbols that speech
// synthesizers would either read out literally or skip with a glitch.
func CleanSymbols(text string) string {
	return strings.TrimSpace(gomoji.RemoveEmojis(text))
}
