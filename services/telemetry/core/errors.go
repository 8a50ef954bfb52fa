package core

import "errors"

// ErrClockSkew signals a reading with a timestamp outside the accepted clock-skew window
var ErrClockSkew = errors.New("reading timestamp outside the accepted clock-skew window")

// ErrStaleOrDuplicate signals a reading with a sequence number not greater than the last one seen for the device
var ErrStaleOrDuplicate = errors.New("stale or duplicate sequence number")

// ErrInvalidPayload signals a malformed or incomplete reading
var ErrInvalidPayload = errors.New("invalid payload")

// ErrStoreUnavailable signals that the durable store rejected or timed out on an operation
var ErrStoreUnavailable = errors.New("durable store unavailable")

// ErrSummaryNotFound signals a missing rack health summary
var ErrSummaryNotFound = errors.New("rack summary not found")

// ErrLeaseNotHeld signals a renew or release attempt on a lease owned by another holder
var ErrLeaseNotHeld = errors.New("lease not held by this instance")

// ErrCircuitOpen signals a send short-circuited by an open circuit breaker
var ErrCircuitOpen = errors.New("circuit breaker is open")
