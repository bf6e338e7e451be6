package remote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrThrottled marks a request rejected because the cost bucket was empty.
var ErrThrottled = errors.New("remote: throttled")

// TransportError reports a failure to obtain a well-formed response: network
// errors, non-2xx statuses and undecodable bodies.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorEntry is one element of a GraphQL errors[] array.
type ErrorEntry struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code when present.
func (e ErrorEntry) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// GraphQLError carries the errors[] array of an otherwise successful response.
type GraphQLError struct {
	Entries []ErrorEntry
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		msgs = append(msgs, entry.Message)
	}
	return "remote graphql: " + strings.Join(msgs, "; ")
}

// Is reports ErrThrottled when any entry carries the THROTTLED code.
func (e *GraphQLError) Is(target error) bool {
	if target != ErrThrottled {
		return false
	}
	for _, entry := range e.Entries {
		if entry.Code() == "THROTTLED" {
			return true
		}
	}
	return false
}

// UserError is one mutation userErrors entry.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserErrors is returned when a mutation payload reports validation failures.
type UserErrors struct {
	Op     string
	Errors []UserError
}

func (e *UserErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		if len(ue.Field) > 0 {
			parts = append(parts, strings.Join(ue.Field, ".")+": "+ue.Message)
			continue
		}
		parts = append(parts, ue.Message)
	}
	return fmt.Sprintf("remote %s rejected: %s", e.Op, strings.Join(parts, "; "))
}

// CheckUserErrors converts a non-empty userErrors list into *UserErrors.
func CheckUserErrors(op string, errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	return &UserErrors{Op: op, Errors: errs}
}

// IsTransport reports whether err came from the transport layer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsApplication reports whether err is an application-level error returned
// inside a successful response envelope.
func IsApplication(err error) bool {
	var ge *GraphQLError
	var ue *UserErrors
	return errors.As(err, &ge) || errors.As(err, &ue)
}
