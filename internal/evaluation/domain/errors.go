package domain

import "errors"

var (
	ErrFrozen           = errors.New("tax_set_frozen")
	ErrInvalidItinerary = errors.New("invalid_itinerary")
	ErrNoSnapshot       = errors.New("rule_snapshot_unavailable")
)

// Failure reasons reported on incomplete sets.
const (
	ReasonConversion = "conversion_failed"
	ReasonAmount     = "amount_failed"
	ReasonAborted    = "aborted"
	ReasonPanic      = "panic"
	ReasonInvalid    = "invalid_itinerary"
)
