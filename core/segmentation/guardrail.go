package segmentation

import "strings"

// Guardrail rewrites segments into the form the synthesizer expects. It is a
// deterministic formatter, not a content filter: every segment is upper-cased
// and order is preserved. The input slice is left untouched.
func Guardrail(segments []string) []string {
	refined := make([]string, 0, len(segments))
	for _, segment := range segments {
		refined = append(refined, strings.ToUpper(segment))
	}
	return refined
}
