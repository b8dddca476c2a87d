package annotate

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// A fenced block, optional language tag, wrapping an array.
	fencedArrayRe = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]+)?\\s*(\\[.*?\\])\\s*```")

	// The widest [ {...} ] span in the text.
	bareArrayRe = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
)

// Extract pulls a single JSON array literal out of free-form model output.
//
// A fenced ``` block holding an array wins; otherwise the widest bracketed
// array of objects is tried. A candidate is only returned if it parses as
// JSON. The second return is false when nothing usable was found.
func Extract(raw string) (string, bool) {
	if m := fencedArrayRe.FindStringSubmatch(raw); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	if candidate := bareArrayRe.FindString(strings.TrimSpace(raw)); candidate != "" {
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	return "", false
}
