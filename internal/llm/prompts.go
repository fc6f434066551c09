package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildDisambiguationPrompt renders the prompt sent to the arbiter for an
// ambiguous duplicate decision. When req.CustomPrompt is set it replaces the
// built-in instruction block; candidate, match, and score are always
// appended so the arbiter sees the actual data.
func BuildDisambiguationPrompt(req DisambiguationRequest) string {
	var b strings.Builder

	if req.CustomPrompt != "" {
		b.WriteString(req.CustomPrompt)
		b.WriteString("\n\n")
	} else {
		b.WriteString(`You are a deduplication arbiter for an agent memory store.
Decide whether the CANDIDATE record refers to the same real-world thing as the STORED record.
Account for typos, casing, grammatical inflection, aliases, and paraphrase: different surface text can denote the same entity.
Do not treat two genuinely different events, people, or places as the same merely because they are similar.

Respond with ONLY a JSON object in this exact format:
{"is_match": true|false, "adjusted_confidence": 0.0-1.0, "explanation": "one sentence"}

`)
	}

	if req.AgentGoal != "" {
		fmt.Fprintf(&b, "The calling agent's goal: %s\n\n", req.AgentGoal)
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", req.Context)
	}

	fmt.Fprintf(&b, "Heuristic confidence score: %.2f\n\n", req.Confidence)
	fmt.Fprintf(&b, "CANDIDATE:\n%s\n\n", compactJSON(req.Candidate))
	fmt.Fprintf(&b, "STORED:\n%s\n", compactJSON(req.Match))

	return b.String()
}

// compactJSON renders a value as single-line JSON, falling back to %v on
// marshal failure so a bad value never blocks the prompt.
func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
