package errors

import (
	"errors"
	"fmt"
)

// Cross-cutting error kinds shared by the HTTP layer and the stores.
var (
	// ErrStoreFailure covers store/cache failures that match no known
	// not-found condition. It translates to a generic failure response;
	// internal detail is never exposed to the caller.
	ErrStoreFailure = errors.New("store failure")

	// ErrOutputShape marks a response payload that failed its declared
	// contract on the way out. It signals a programming defect, not a
	// runtime condition, and is kept distinct from every other kind.
	ErrOutputShape = errors.New("response shape invalid")
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

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
