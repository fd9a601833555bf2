package errval

import (
	"errors"
)

var (
	ErrInternal        = errors.New("internal server error")
	ErrUnavailable     = errors.New("backing store unavailable")
	ErrUnauthorized    = errors.New("not authenticated")
	ErrForbidden       = errors.New("insufficient role")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("operation not permitted in current task state")
	ErrConflict        = errors.New("duplicate unique key")
)
