package availability

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidTemplate = errors.New("invalid weekly template")
	ErrSlotNotFound    = errors.New("slot not found")
)
