package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrConfiguration      = fmt.Errorf("configuration error")
	ErrMissingConfig      = fmt.Errorf("%w: configuration not found", ErrConfiguration)
	ErrInvalidConfig      = fmt.Errorf("%w: invalid configuration", ErrConfiguration)
	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", ErrConfiguration)
	ErrAuthMisconfigured  = fmt.Errorf("%w: provider rejected credentials", ErrConfiguration)

	// Provider errors
	ErrQuotaExceeded      = fmt.Errorf("provider quota exceeded")
	ErrTransientNetwork   = fmt.Errorf("transient network failure")
	ErrMalformedResponse  = fmt.Errorf("malformed response")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Cache errors
	ErrStorage     = fmt.Errorf("storage error")
	ErrUnavailable = fmt.Errorf("community cache unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// UserError is an error meant to be shown to whoever issued the query, with a hint on how to fix it.
type UserError struct {
	Err     error
	Message string
	Hint    string
}

func (e *UserError) Error() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + " " + e.Hint
}

func (e *UserError) Unwrap() error { return e.Err }

// NewUserError wraps err with a message and remediation hint.
func NewUserError(err error, message, hint string) *UserError {
	return &UserError{Err: err, Message: message, Hint: hint}
}

// IsUserFacing reports whether err belongs to the kinds that must reach the caller:
// configuration problems and exhausted provider quota.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrQuotaExceeded)
}

// ClassifyNetworkError maps timeouts and connection resets onto [ErrTransientNetwork].
//
// Other errors are returned unchanged.
func ClassifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientNetwork) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTransientNetwork, err)
	}
	return err
}
