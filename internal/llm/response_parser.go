package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON extracts the first valid JSON object from a string that may
// contain extra text. This handles cases where LLMs add explanations before
// or after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // no JSON found, return as-is and let the parser fail
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text[start:]
}

// ParseVerdict parses the arbiter's response text into a Verdict, clamping
// the adjusted confidence into [0,1].
func ParseVerdict(response string) (*Verdict, error) {
	var verdict Verdict
	if err := json.Unmarshal([]byte(extractJSON(response)), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse disambiguation verdict: %w", err)
	}

	if verdict.AdjustedConfidence < 0 {
		verdict.AdjustedConfidence = 0
	}
	if verdict.AdjustedConfidence > 1 {
		verdict.AdjustedConfidence = 1
	}

	return &verdict, nil
}
