// Package quota derives account lock state from stored timestamps.
//
// There is no independent quota state: an account carries at most one
// lock-until timestamp per operation class, and eligibility is a pure
// function of that timestamp and the current wall-clock time. Clock skew
// between processes is not compensated.
package quota

import "time"

// OpClass distinguishes the two externally rate-limited operation
// classes. Accounts may be restricted to one of them.
type OpClass string

const (
	// Fetch covers read calls against the search endpoint.
	Fetch OpClass = "fetch"
	// Reply covers write calls that post a reply.
	Reply OpClass = "reply"
)

// Lockable exposes the per-class lock timestamp stored on an account.
// The boolean result is false when no lock is recorded for the class.
type Lockable interface {
	LockedUntil(op OpClass) (time.Time, bool)
}

// IsLocked reports whether the account must not be selected for op at
// the given instant. An absent lock or a lock at or before now means the
// account is available again; no manual intervention is required.
func IsLocked(l Lockable, op OpClass, now time.Time) bool {
	until, ok := l.LockedUntil(op)
	if !ok {
		return false
	}
	return now.Before(until)
}

// RemainingLock returns how long the account stays locked for op from
// now, or zero if it is not locked.
func RemainingLock(l Lockable, op OpClass, now time.Time) time.Duration {
	until, ok := l.LockedUntil(op)
	if !ok || !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}
