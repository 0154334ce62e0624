package marketdata

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the failure class of a lookup operation.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"            // empty/invalid upstream payload
	KindRequestRejected     ErrorKind = "request_rejected"     // 4xx other than 429, not retried
	KindRateLimited         ErrorKind = "rate_limited"         // 429 observed, retries exhausted
	KindQuotaExceeded       ErrorKind = "quota_exceeded"       // local ceiling reached, no call attempted
	KindUnsupportedExchange ErrorKind = "unsupported_exchange" // symbol pre-filtered
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable" // retries exhausted on 5xx
	KindNetworkError        ErrorKind = "network_error"        // transport-level failure
)

// LookupError is the typed failure surfaced by every core operation.
type LookupError struct {
	Kind    ErrorKind
	Symbol  string
	Message string
	Status  int // last observed HTTP status, 0 if none
	Cause   error
}

func (e *LookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Kind, e.Symbol, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Kind, e.Symbol, e.Message)
}

func (e *LookupError) Unwrap() error { return e.Cause }

// IsKind reports whether err is a LookupError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var le *LookupError
	return errors.As(err, &le) && le.Kind == kind
}

func NewNotFoundError(symbol, message string) *LookupError {
	return &LookupError{Kind: KindNotFound, Symbol: symbol, Message: message}
}

func NewRequestRejectedError(symbol string, status int, body string) *LookupError {
	return &LookupError{Kind: KindRequestRejected, Symbol: symbol, Status: status,
		Message: fmt.Sprintf("HTTP %d: %s", status, body)}
}

func NewRateLimitedError(symbol, message string) *LookupError {
	return &LookupError{Kind: KindRateLimited, Symbol: symbol, Status: 429, Message: message}
}

func NewQuotaExceededError(symbol, message string) *LookupError {
	return &LookupError{Kind: KindQuotaExceeded, Symbol: symbol, Message: message}
}

func NewUnsupportedExchangeError(symbol, message string) *LookupError {
	return &LookupError{Kind: KindUnsupportedExchange, Symbol: symbol, Message: message}
}

func NewUpstreamUnavailableError(symbol string, status int, message string) *LookupError {
	return &LookupError{Kind: KindUpstreamUnavailable, Symbol: symbol, Status: status, Message: message}
}

func NewNetworkError(symbol, message string, cause error) *LookupError {
	return &LookupError{Kind: KindNetworkError, Symbol: symbol, Message: message, Cause: cause}
}
