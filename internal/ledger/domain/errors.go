package domain

import "errors"

// Error taxonomy for ledger operations. Every precondition failure is a
// normal, recoverable outcome for the caller, never a fault.
var (
	ErrNotAuthorized           = errors.New("not authorized")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyCompleted = errors.New("payment already completed")
	ErrInsufficientAmount      = errors.New("amount must be positive")
	ErrInvalidMerchant         = errors.New("merchant not registered")
	ErrDuplicatePayment        = errors.New("payment id already exists")
)
