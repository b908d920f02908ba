package ports

import (
	"context"
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Transient I/O errors, retried by the call wrapper
	ErrTransient           = errors.New("transient network or API failure")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrDataUnavailable     = errors.New("market data unavailable")
	ErrPriceUnavailable    = errors.New("no price data for symbol")
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")

	// Business rejections, never retried
	ErrOrderRejected        = errors.New("order rejected by the exchange")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrPositionNotFound     = errors.New("position not found on the exchange")
	ErrPositionUnprotected  = errors.New("position filled but its protective orders failed")

	// Local durable state
	ErrPersistence = errors.New("persistent state read/write failed")
)

// ExchangeError carries the venue specific code and message of a failed API call.
type ExchangeError struct {
	Op      string
	Code    int64
	Message string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s: exchange error %d: %s", e.Op, e.Code, e.Message)
}

// IsRetryable reports whether err may succeed if the same call is repeated.
// Business rejections, configuration problems, authentication failures and
// context cancellation are terminal; everything else is treated as transient.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrContextCanceled),
		errors.Is(err, ErrOrderRejected),
		errors.Is(err, ErrConfigurationError),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrPositionUnprotected),
		errors.Is(err, ErrPersistence):
		return false
	default:
		return true
	}
}
