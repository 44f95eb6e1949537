package classifier

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedBlock  = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
	looseObject  = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// ExtractJSON pulls a JSON object out of a model response. Models wrap JSON
// in markdown fences or surround it with prose more often than they return it
// bare, so fenced blocks are tried first, then the whole response, then the
// first object-shaped substring.
func ExtractJSON(text string, out any) bool {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if json.Unmarshal([]byte(strings.TrimSpace(m[1])), out) == nil {
			return true
		}
	}

	if json.Unmarshal([]byte(strings.TrimSpace(text)), out) == nil {
		return true
	}

	if m := looseObject.FindString(text); m != "" {
		if json.Unmarshal([]byte(m), out) == nil {
			return true
		}
	}

	return false
}
