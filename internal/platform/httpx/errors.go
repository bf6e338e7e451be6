// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for handlers. Wrap a cause with fmt.Errorf("%w: ...") to
// pick the response status.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
	ErrUnavailable  = errors.New("service unavailable")
)

// RespondError maps handler errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	p := ProblemFor(err)
	JSON(w, p.Status, p)
}

// ProblemFor builds the problem document RespondError would send for err.
// Unclassified errors become a 500 without detail.
func ProblemFor(err error) ProblemDetail {
	switch {
	case errors.Is(err, ErrNotFound):
		return problem(http.StatusNotFound, "Not Found", err)
	case errors.Is(err, ErrConflict):
		return problem(http.StatusConflict, "Conflict", err)
	case errors.Is(err, ErrValidation):
		return problem(http.StatusBadRequest, "Validation Failed", err)
	case errors.Is(err, ErrUnauthorized):
		return problem(http.StatusUnauthorized, "Unauthorized", err)
	case errors.Is(err, ErrUpstream):
		return problem(http.StatusBadGateway, "Upstream Failure", err)
	case errors.Is(err, ErrUnavailable):
		return problem(http.StatusServiceUnavailable, "Unavailable", err)
	default:
		return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError}
	}
}

func problem(status int, title string, err error) ProblemDetail {
	return ProblemDetail{Title: title, Status: status, Detail: err.Error()}
}
