package appointments

import "errors"

var (
	ErrValidation              = errors.New("validation error")
	ErrNotFound                = errors.New("appointment not found")
	ErrForbidden               = errors.New("actor may not modify this appointment")
	ErrNotAvailable            = errors.New("requested time is not available")
	ErrOverbooking             = errors.New("overbooking constraint violation")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotRecurring            = errors.New("appointment is not a recurring base rule")
	ErrNotAnOccurrence         = errors.New("date is not an occurrence of the rule")
)
