package domain

import "errors"

// Engine error taxonomy. Callers classify failures with errors.Is so that
// wrapped errors from collaborators keep their recovery semantics:
//
//   - ErrTransient:     retried with bounded backoff
//   - ErrInvalidData:   the affected link is skipped for the cycle
//   - ErrOrderRejected: reserved capital is released, no retry
//   - ErrCircuitBroken: new entries halt until the trading day rolls over
//   - ErrFatal:         the engine loop stops and surfaces to the operator
var (
	ErrTransient     = errors.New("transient failure")
	ErrInvalidData   = errors.New("invalid data")
	ErrOrderRejected = errors.New("order rejected")
	ErrCircuitBroken = errors.New("daily loss circuit breaker open")
	ErrFatal         = errors.New("fatal failure")
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrMatchEnded          = errors.New("match ended")
	ErrMarketClosed        = errors.New("market closed")
	ErrInsufficientCapital = errors.New("insufficient available capital")
	ErrExposureCeiling     = errors.New("exposure ceiling reached")
	ErrMaxPositions        = errors.New("max concurrent positions reached")
	ErrSlippageExceeded    = errors.New("projected slippage exceeds tolerance")
	ErrPositionOpen        = errors.New("position already open for link")
	ErrIllegalTransition   = errors.New("illegal order state transition")
	ErrLockHeld            = errors.New("lock already held")
	ErrRateLimited         = errors.New("rate limited")
)
