package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxQuestionLen bounds the inbound question so a single oversized
// field cannot exhaust the embedding pipeline or fill the runs table
// with caller-controlled garbage.
const MaxQuestionLen = 8 * 1024

// MaxHistoryItems bounds the number of prior turns fed to the
// generation collaborator.
const MaxHistoryItems = 50

// AskRequest is the request body for POST /v1/ask.
type AskRequest struct {
	Question  string        `json:"question"`
	History   []HistoryItem `json:"history,omitempty"`
	TopK      *int          `json:"topk,omitempty"`
	Threshold *float64      `json:"threshold,omitempty"`
}

// Validate rejects requests that must not reach pipeline start.
// Out-of-range topk/threshold are not errors — they are clamped by the
// orchestrator — but a missing question is terminal.
func (r AskRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("question is required")
	}
	if len(r.Question) > MaxQuestionLen {
		return fmt.Errorf("question exceeds maximum length of %d bytes", MaxQuestionLen)
	}
	if len(r.History) > MaxHistoryItems {
		return fmt.Errorf("history exceeds maximum of %d items", MaxHistoryItems)
	}
	for i, h := range r.History {
		if h.Role != "user" && h.Role != "assistant" {
			return fmt.Errorf("history[%d].role must be \"user\" or \"assistant\" (got %q)", i, h.Role)
		}
	}
	return nil
}

// APIResponse is the standard response envelope for non-streaming
// HTTP responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// RunList is the response payload for GET /v1/runs.
type RunList struct {
	Items    []RunRecord `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Retriever string `json:"retriever,omitempty"`
	Uptime    int64  `json:"uptime_seconds"`
}

// ParseRunID parses a run ID path parameter.
func ParseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}
