package models

import "errors"

var (
	ErrMissingField   = errors.New("required field missing")
	ErrNonFinite      = errors.New("value is not a finite number")
	ErrOutOfRange     = errors.New("value out of range")
	ErrLengthMismatch = errors.New("array lengths do not match")
	ErrNotFound       = errors.New("not found")
)
