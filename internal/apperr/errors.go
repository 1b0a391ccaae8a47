// Package apperr holds the error kinds shared by the link store and its callers.
// Callers wrap them with fmt.Errorf("%w: ...") and test them with errors.Is.
package apperr

import "errors"

var (
	// ErrValidation marks malformed input. Not retryable.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks a business-rule conflict such as a repeated (owner, url) pair.
	ErrDuplicate = errors.New("duplicate")
	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAuthorization marks an ownership mismatch.
	ErrAuthorization = errors.New("not authorized")
	// ErrCapacity means no free short code was found within the retry budget.
	ErrCapacity = errors.New("short code space exhausted")
	// ErrConfiguration marks unusable startup configuration.
	ErrConfiguration = errors.New("invalid configuration")
)

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsDuplicate reports whether err is a uniqueness conflict.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAuthorization reports whether err is an ownership mismatch.
func IsAuthorization(err error) bool { return errors.Is(err, ErrAuthorization) }

// IsCapacity reports whether err is code-space exhaustion.
func IsCapacity(err error) bool { return errors.Is(err, ErrCapacity) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
