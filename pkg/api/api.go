// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the tag registry service.
package api

import "time"

// RunTagsResponse is the response body for run tag queries. SysTags use the
// "key:value" form; the first ':' separates key from value.
type RunTagsResponse struct {
	User    string   `json:"user"`
	SysTags []string `json:"sys_tags"`
}

// RegisterAttemptRequest announces a launched task attempt to the registry.
type RegisterAttemptRequest struct {
	Pathspec string `json:"pathspec"`
	Attempt  int    `json:"attempt"`
	JobName  string `json:"job_name"`
	Backend  string `json:"backend"`
	Image    string `json:"image"`
}

// RegisterAttemptResponse is the response body after registering an attempt.
type RegisterAttemptResponse struct {
	AttemptID string `json:"attempt_id"`
}

// CompleteAttemptRequest records the terminal outcome of an attempt.
type CompleteAttemptRequest struct {
	Outcome     string     `json:"outcome"`
	ExitCode    int        `json:"exit_code"`
	Reason      string     `json:"reason,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
