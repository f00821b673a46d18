package handler

import (
	"time"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
)

// Response is the API response envelope.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// RecordDTO is the wire form of a restore point record.
type RecordDTO struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Type      string   `json:"type"`
	CreatedAt int64    `json:"created_at"`
	Assets    []string `json:"assets"`
}

// NewRecordDTO converts a record.
func NewRecordDTO(r domain.Record) RecordDTO {
	assets := r.Assets
	if assets == nil {
		assets = []string{}
	}
	return RecordDTO{
		ID:        r.ID,
		Title:     r.Title,
		Type:      r.Type.String(),
		CreatedAt: r.CreatedAt,
		Assets:    assets,
	}
}

// CreateRequest is the body of POST /v1/restorepoints.
type CreateRequest struct {
	Title string `json:"title"`
}

// StatusDTO is the body of GET /v1/status.
type StatusDTO struct {
	Supported       bool   `json:"supported"`
	Autosave        string `json:"autosave,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	BackgroundError string `json:"background_error,omitempty"`
}
