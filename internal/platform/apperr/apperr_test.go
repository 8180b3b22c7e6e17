package apperr

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotAuthenticated, http.StatusUnauthorized},
		{ErrNotAuthorized, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrInsufficientStock, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrMalformedResponse, http.StatusBadRequest},
		{ErrStorage, http.StatusInternalServerError},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHTTPStatus_Wrapped(t *testing.T) {
	err := fmt.Errorf("dispensing record %s: %w", "abc", ErrNotFound)
	if got := HTTPStatus(err); got != http.StatusNotFound {
		t.Errorf("wrapped error: got %d, want %d", got, http.StatusNotFound)
	}
}

func TestToHTTP(t *testing.T) {
	he := ToHTTP(fmt.Errorf("drug aspirin: %w", ErrInsufficientStock))
	if he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", he.Code)
	}
}
