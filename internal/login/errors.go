package login

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kuitang/e2eauth/internal/errs"
)

// AuthenticationError reports a non-2xx response from the login endpoint.
type AuthenticationError struct {
	StatusCode int
	Status     string // status text, e.g. "Unauthorized"
}

func newAuthenticationError(resp *http.Response) *AuthenticationError {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &AuthenticationError{StatusCode: resp.StatusCode, Status: text}
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("API login failed: %d %s", e.StatusCode, e.Status)
}

func (e *AuthenticationError) ErrorCode() errs.Code { return errs.Unauthenticated }

// VerificationError reports a login strategy that returned without error
// while CheckSession still saw no session.
type VerificationError struct {
	Strategy string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s login completed but no session was detected", e.Strategy)
}

func (e *VerificationError) ErrorCode() errs.Code { return errs.Unverified }

// Attempt is one failed strategy run.
type Attempt struct {
	Strategy string
	Err      error
}

// AggregateAuthenticationError is returned by EnsureSession when every
// strategy failed. Attempts are in the order they ran.
type AggregateAuthenticationError struct {
	Attempts []Attempt
}

func (e *AggregateAuthenticationError) Error() string {
	if len(e.Attempts) == 0 {
		return "all login strategies failed: no strategies configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Strategy + ": " + a.Err.Error()
	}
	return "all login strategies failed: " + strings.Join(parts, "; ")
}

func (e *AggregateAuthenticationError) Unwrap() []error {
	out := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Err
	}
	return out
}

func (e *AggregateAuthenticationError) ErrorCode() errs.Code { return errs.Exhausted }
