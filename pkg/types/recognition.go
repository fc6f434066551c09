package types

// RecognitionResult is the decision returned by the Recognition Service.
// Recognition always returns a decision: upstream LLM failures surface as
// a non-match with confidence 0 and an explanation, never as an error.
type RecognitionResult struct {
	IsMatch      bool                   `json:"is_match"`
	Confidence   float64                `json:"confidence"`
	MatchingKey  string                 `json:"matching_key,omitempty"`
	MatchingData map[string]interface{} `json:"matching_data,omitempty"`
	UsedLLM      bool                   `json:"used_llm"`
	Explanation  string                 `json:"explanation,omitempty"`
}
