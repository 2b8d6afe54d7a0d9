package contract

import "errors"

// Error taxonomy. NotFound and Validation are recoverable and surface to the
// user as a message; Transient is retried at the handler boundary; Permanent
// is fatal at startup only. AlreadyProcessed carries the prior outcome of a
// leave request that was approved or rejected before.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrTransient        = errors.New("transient io failure")
	ErrPermanent        = errors.New("permanent io failure")
	ErrAlreadyProcessed = errors.New("leave request already processed")
)
