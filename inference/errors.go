package inference

import "fmt"

// AuthError reports a rejected credential (provider 401/403). It is never
// retried and its message must not reach HTTP clients verbatim.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("inference: authentication rejected (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RequestError reports a request the provider refused (other 4xx, e.g. an
// unknown model). It is never retried.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("inference: provider rejected request (status %d): %v", e.Status, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// UnavailableError reports that every attempt failed transiently. It carries
// the last underlying error for diagnostics.
type UnavailableError struct {
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("inference: provider unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
