package matchapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response. Detail is the server's "detail" field,
// flattened when it is a list of validation errors.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("matchapi: status %d", e.Status)
	}
	return fmt.Sprintf("matchapi: status %d: %s", e.Status, e.Detail)
}

// AlreadyExists reports whether the server rejected a create because the
// resource is already there, e.g. a second prediction for the same ball.
func (e *APIError) AlreadyExists() bool {
	if e.Status == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(e.Detail), "already")
}

// IsAlreadyExists unwraps err looking for an APIError that AlreadyExists.
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.AlreadyExists()
}

type validationError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		e.Detail = strings.TrimSpace(string(body))
		return e
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		e.Detail = s
		return e
	}

	var list []validationError
	if err := json.Unmarshal(envelope.Detail, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, v := range list {
			msgs = append(msgs, v.Msg)
		}
		e.Detail = strings.Join(msgs, "; ")
		return e
	}

	e.Detail = string(envelope.Detail)
	return e
}
