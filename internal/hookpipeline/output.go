package hookpipeline

import (
	"encoding/json"
	"strings"
)

// extractJSON scans stdout for the first balanced JSON object and
// attempts to decode it as an Output. Per SPEC_FULL.md's Design Notes
// (mirroring spec.md §9), this must tolerate mixed output — log lines
// before or after the JSON — and must never panic on malformed input;
// it returns ok=false so the caller falls back to exit-code semantics.
func extractJSON(stdout string) (out Output, ok bool) {
	start := strings.IndexByte(stdout, '{')
	if start < 0 {
		return Output{}, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(stdout); i++ {
		c := stdout[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := stdout[start : i+1]
				var o Output
				if err := json.Unmarshal([]byte(candidate), &o); err != nil {
					return Output{}, false
				}
				return o, true
			}
		}
	}
	return Output{}, false
}
