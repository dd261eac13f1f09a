package remote

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kthezelais/budget-tracker/internal/domain"
)

// Error is a failed call to the accounting service
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("remote %s: %d %s", e.Op, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// problem is the RFC 7807 body returned by the service
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// statusError maps a non-2xx response onto the domain error taxonomy
func statusError(op string, statusCode int, body []byte) error {
	var p problem
	_ = json.Unmarshal(body, &p)
	msg := p.Detail
	if msg == "" {
		msg = p.Title
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}

	e := &Error{Op: op, StatusCode: statusCode, Message: msg}
	switch statusCode {
	case http.StatusNotFound:
		e.Err = domain.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		e.Err = domain.ErrInvalidInput
	case http.StatusConflict:
		e.Err = domain.ErrAlreadyExists
	case http.StatusForbidden:
		e.Err = domain.ErrForbidden
	default:
		e.Err = domain.ErrRemoteUnavailable
	}
	return e
}

// transportError wraps a failure to reach the service at all
func transportError(op string, err error) error {
	return &Error{Op: op, Message: err.Error(), Err: domain.ErrRemoteUnavailable}
}
