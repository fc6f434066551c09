package types

import "time"

// Record mirrors a stored memory entry (key, JSON value, tags) as seen by
// the identity-resolution layer. The surrounding memory store owns the
// record lifecycle; this subsystem only reads records during recognition
// and filter evaluation.
type Record struct {
	TenantID  string                 `json:"tenant_id"`
	Key       string                 `json:"key"`
	Value     map[string]interface{} `json:"value"`
	Tags      []string               `json:"tags,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// CandidateMatch is an ephemeral scored candidate produced during one
// Recognize call. Never persisted.
type CandidateMatch struct {
	Key        string                 `json:"key"`
	Data       map[string]interface{} `json:"data"`
	Confidence float64                `json:"confidence"`
}
