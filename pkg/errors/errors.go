package errors

import (
	"errors"
	"fmt"
	"time"
)

// Type represents different types of errors that can occur
type Type string

const (
	TypeNetwork   Type = "network"
	TypeRateLimit Type = "rate_limit"
	TypeUsageCap  Type = "usage_cap"
	TypeAuth      Type = "auth"
	TypeServer    Type = "server_error"
	TypeParsing   Type = "parsing"
	TypeUnknown   Type = "unknown"
)

// Error represents an upstream error with type information
type Error struct {
	Type    Type
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// PoolExhaustedError signals that no account in the pool is eligible for
// an operation class at call time. It is a hard stop: the caller may try
// again later, but the core never retries it internally.
type PoolExhaustedError struct {
	Op string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("account pool exhausted: no eligible %s account", e.Op)
}

// IsPoolExhausted checks whether err is (or wraps) a PoolExhaustedError
func IsPoolExhausted(err error) bool {
	var pe *PoolExhaustedError
	return errors.As(err, &pe)
}

// AllAccountsFailedError is returned when every candidate account in
// rotation failed. It wraps the last observed error for diagnostics.
type AllAccountsFailedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *AllAccountsFailedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all %d accounts failed for %s", e.Attempts, e.Op)
	}
	return fmt.Sprintf("all %d accounts failed for %s: %v", e.Attempts, e.Op, e.Last)
}

func (e *AllAccountsFailedError) Unwrap() error {
	return e.Last
}

// IsAllAccountsFailed checks whether err is (or wraps) an AllAccountsFailedError
func IsAllAccountsFailed(err error) bool {
	var ae *AllAccountsFailedError
	return errors.As(err, &ae)
}

// CapPeriod identifies which quota window an account ran into.
type CapPeriod string

const (
	CapMonthly  CapPeriod = "monthly"
	CapWindowed CapPeriod = "windowed"
)

// AccountCapExceededError is a per-account quota rejection. The dispatcher
// absorbs it by locking the account and rotating; it only reaches a caller
// as the Last error inside an AllAccountsFailedError.
type AccountCapExceededError struct {
	BotID  string
	Op     string
	Period CapPeriod
	Until  time.Time
}

func (e *AccountCapExceededError) Error() string {
	return fmt.Sprintf("account %s hit %s cap for %s, locked until %s", e.BotID, e.Period, e.Op, e.Until.Format(time.RFC3339))
}

// IsAccountCapExceeded checks whether err is (or wraps) an AccountCapExceededError
func IsAccountCapExceeded(err error) bool {
	var ce *AccountCapExceededError
	return errors.As(err, &ce)
}

// TransientUpstreamError is an account-scoped upstream failure worth
// rotating past without locking the account: the next candidate may
// succeed, and this one may recover on its own.
type TransientUpstreamError struct {
	BotID string
	Err   error
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("transient upstream error on account %s: %v", e.BotID, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error {
	return e.Err
}

// IsTransientUpstream checks whether err is (or wraps) a TransientUpstreamError
func IsTransientUpstream(err error) bool {
	var te *TransientUpstreamError
	return errors.As(err, &te)
}

// FatalUpstreamError is a failure that is not account-specific. It aborts
// the rotation immediately; trying further accounts would just repeat it.
type FatalUpstreamError struct {
	Op  string
	Err error
}

func (e *FatalUpstreamError) Error() string {
	return fmt.Sprintf("fatal upstream error on %s: %v", e.Op, e.Err)
}

func (e *FatalUpstreamError) Unwrap() error {
	return e.Err
}

// IsFatalUpstream checks whether err is (or wraps) a FatalUpstreamError
func IsFatalUpstream(err error) bool {
	var fe *FatalUpstreamError
	return errors.As(err, &fe)
}

// JobError records a scheduled job handler failure. Jobs failing this way
// are marked failed and not retried automatically.
type JobError struct {
	JobID  string
	Action string
	Err    error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s) failed: %v", e.JobID, e.Action, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller should treat the failure as
// "try again later" rather than an invalid request. Pool exhaustion and
// cap-driven rotation failures clear up on their own once quota windows
// reset; everything else needs operator attention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsPoolExhausted(err) || IsAllAccountsFailed(err) {
		return true
	}
	if IsAccountCapExceeded(err) || IsTransientUpstream(err) {
		return true
	}
	if IsFatalUpstream(err) {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case TypeNetwork, TypeRateLimit, TypeUsageCap, TypeServer:
			return true
		}
	}
	return false
}

// IsRetryableStatusCode checks if an HTTP status code indicates a
// transiently failing upstream
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
