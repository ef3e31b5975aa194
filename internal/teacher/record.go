package teacher

import (
	"encoding/json"
	"time"
)

// Status is the terminal outcome of one teacher invocation.
type Status string

const (
	// StatusSuccess means the transport call succeeded, post-validation
	// passed, and no blocking safety flag matched.
	StatusSuccess Status = "success"
	// StatusFailed means the call could not be completed, including after
	// exhausting retries.
	StatusFailed Status = "failed"
	// StatusRejected means the call succeeded but the response failed
	// post-validation or matched a blocking safety rule.
	StatusRejected Status = "rejected"
)

// PostValidation is the structural/content acceptance check applied to a
// candidate response before it is trusted.
type PostValidation struct {
	HasContent     bool     `json:"has_content"`
	MentionsSafety bool     `json:"mentions_safety_or_load_control"`
	IsValid        bool     `json:"is_valid"`
	Reasons        []string `json:"reasons,omitempty"`
}

// OutputRecord is the terminal, audited result of one teacher invocation.
// Exactly one exists per (query_id, run_id); it is immutable once written.
type OutputRecord struct {
	ResponseID string `json:"response_id"`
	QueryID    string `json:"query_id"`
	ScenarioID string `json:"scenario_id"`
	UserID     string `json:"user_id"`
	PromptType string `json:"prompt_type"`
	PromptText string `json:"prompt_text"`
	RunID      string `json:"run_id"`
	Provider   string `json:"provider"`
	ModelName  string `json:"model_name"`

	Status       Status `json:"status"`
	AttemptCount int    `json:"attempt_count"`
	// LatencyMS is the latency of the terminal attempt.
	LatencyMS int64 `json:"latency_ms"`
	// AttemptLatenciesMS records every attempt for audit, including the
	// ones that failed and were retried.
	AttemptLatenciesMS []int64 `json:"attempt_latencies_ms"`

	RequestPayload json.RawMessage `json:"request_payload,omitempty"`
	ResponseText   string          `json:"response_text"`
	RawResponse    json.RawMessage `json:"raw_response,omitempty"`
	// Error is present iff status is failed or rejected.
	Error string `json:"error,omitempty"`

	SafetyFlags    []string       `json:"safety_flags"`
	PostValidation PostValidation `json:"post_validation"`

	SourceQueryRunID string    `json:"source_query_run_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RunSummary describes one completed capture run.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	RunDir           string    `json:"run_dir"`
	SourceQueryRunID string    `json:"source_query_run_id,omitempty"`
	Provider         string    `json:"provider"`
	ModelName        string    `json:"model_name"`
	NumRequests      int       `json:"num_requests"`
	SuccessCount     int       `json:"success_count"`
	FailedCount      int       `json:"failed_count"`
	RejectedCount    int       `json:"rejected_count"`
	CreatedAt        time.Time `json:"created_at"`
}
