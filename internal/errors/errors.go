package errors

import (
	"errors"
	"fmt"
)

// Error kinds for the login server
var (
	// Configuration errors
	ErrConfigMissing = errors.New("missing required configuration")
	ErrConfigInvalid = errors.New("invalid configuration")

	// Authentication errors
	ErrAuthDenied    = errors.New("authorization denied")
	ErrProviderError = errors.New("identity provider error")
	ErrInvalidState  = errors.New("invalid state")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionInvalid  = errors.New("invalid session")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
