package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: entity widget", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: product sync already running", ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: fetch products page 2", ErrUpstream), http.StatusBadGateway},
		{ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))
	require.NotContains(t, rec.Body.String(), "password")
}

func TestProblemFor(t *testing.T) {
	p := ProblemFor(fmt.Errorf("%w: fetch products page 2: timeout", ErrUpstream))
	require.Equal(t, http.StatusBadGateway, p.Status)
	require.Equal(t, "Upstream Failure", p.Title)
	require.Contains(t, p.Detail, "page 2")

	p = ProblemFor(errors.New("pool closed"))
	require.Equal(t, http.StatusInternalServerError, p.Status)
	require.Empty(t, p.Detail)
}
