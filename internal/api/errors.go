package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status int
	Method string
	Path   string

	// Detail is the server's "detail" message, if it sent one.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Status)
}

// IsUnauthorized reports whether err (or any error in its chain) is a 401.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message returns the text to show a user for err: the server's detail
// when present, otherwise fallback.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// errorBody is the FastAPI error envelope. detail is either a string or a
// list of validation errors.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type validationIssue struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseDetail extracts a readable detail from an error response body.
func parseDetail(body []byte) string {
	var envelope errorBody
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if json.Unmarshal(envelope.Detail, &text) == nil {
		return text
	}

	var issues []validationIssue
	if json.Unmarshal(envelope.Detail, &issues) == nil {
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			field := ""
			if n := len(issue.Loc); n > 0 {
				field = fmt.Sprint(issue.Loc[n-1]) + ": "
			}
			msgs = append(msgs, field+issue.Msg)
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
