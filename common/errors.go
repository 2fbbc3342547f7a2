package common

import (
	"github.com/cockroachdb/errors"
)

// error kinds surfaced by the optimizer core. callers classify with errors.Is.
var (
	// missing cost formula, too many metrics, mismatched cost vectors...
	ErrConfiguration = errors.New("configuration error")
	// the plan space could not produce a complete plan for the query
	ErrEmptySearchSpace = errors.New("empty search space")
	// a safe mode check failed
	ErrInvariantViolation = errors.New("invariant violation")
)

func NewConfigurationError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

func NewEmptySearchSpaceError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrEmptySearchSpace)
}

func NewInvariantViolation(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvariantViolation)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsEmptySearchSpace(err error) bool {
	return errors.Is(err, ErrEmptySearchSpace)
}

func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
