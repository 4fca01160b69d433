package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized matches any *UnauthorizedError with errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response from the posting service other than 401.
type Error struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// UnauthorizedError is returned for any 401. By the time it is returned the
// session has been cleared; Redirect is where the console must navigate.
type UnauthorizedError struct {
	Path     string
	Detail   string
	Redirect string
}

func (e *UnauthorizedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: unauthorized: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("%s: unauthorized", e.Path)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// Detail returns the server-provided detail message carried by err, or
// fallback when there is none.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	var authErr *UnauthorizedError
	if errors.As(err, &authErr) && authErr.Detail != "" {
		return authErr.Detail
	}
	return fallback
}

// RedirectFor returns the navigation intent carried by err, if any.
func RedirectFor(err error) (string, bool) {
	var authErr *UnauthorizedError
	if errors.As(err, &authErr) {
		return authErr.Redirect, true
	}
	return "", false
}

// parseDetail extracts the detail field of an error body. FastAPI-style
// validation errors carry a list of {msg} objects instead of a string.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
