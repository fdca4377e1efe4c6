package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrMissingBookingID    = errors.New("missing booking id")
	ErrOrderCodeMissing    = errors.New("order code missing")
	ErrFeeConfigMissing    = errors.New("fee config missing")
	ErrGateway             = errors.New("payment gateway error")
	ErrMeeting             = errors.New("meeting provider error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBookingUpdate       = errors.New("booking update failed")
	ErrBusy                = errors.New("job already running")
)
