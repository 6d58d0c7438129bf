package reset

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("reset token not found")
	ErrNotActive    = errors.New("reset token not active")
)
