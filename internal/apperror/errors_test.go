package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsNotFound_Wrapped(t *testing.T) {
	err := fmt.Errorf("loading shortcode: %w", NewNotFound("shortcode not found"))
	if !IsNotFound(err) {
		t.Fatal("expected wrapped not-found to be detected")
	}
	if IsNotFound(NewConflict("x")) {
		t.Error("conflict must not be reported as not found")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("plain error must not be reported as not found")
	}
}

func TestSafeMessage_HidesInternal(t *testing.T) {
	err := NewInternal(errors.New("Error 1146: Table 'documents' doesn't exist"))
	if got := SafeMessage(err); got != "An unexpected error occurred. Please try again." {
		t.Errorf("unexpected message %q", got)
	}
	if got := SafeMessage(errors.New("raw")); got != "an unexpected error occurred" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestSafeCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewNotFound("x"), http.StatusNotFound},
		{NewLocked("x"), http.StatusLocked},
		{fmt.Errorf("wrap: %w", NewValidation("x")), http.StatusUnprocessableEntity},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := SafeCode(tc.err); got != tc.want {
			t.Errorf("SafeCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
