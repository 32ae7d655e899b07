package account

import (
	"time"

	"xpromo/pkg/quota"
)

// Role constrains which operation classes an account may serve.
type Role string

const (
	// RoleAll serves both fetch and reply rotations.
	RoleAll Role = "all"
	// RoleFetch serves read calls only.
	RoleFetch Role = "fetch"
	// RoleReply serves write calls only.
	RoleReply Role = "reply"
	// RoleTrack accounts are reserved for metrics collection and never
	// participate in either rotation.
	RoleTrack Role = "track"
)

// Allows reports whether the role permits the given operation class.
func (r Role) Allows(op quota.OpClass) bool {
	switch op {
	case quota.Fetch:
		return r == RoleAll || r == RoleFetch
	case quota.Reply:
		return r == RoleAll || r == RoleReply
	default:
		return false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAll, RoleFetch, RoleReply, RoleTrack:
		return true
	}
	return false
}

// Account represents one credentialed identity capable of calling the
// external API, with its own quota windows per operation class.
type Account struct {
	BotID             string
	Role              Role
	APIKey            string
	APISecret         string
	BearerToken       string
	AccessToken       string
	AccessTokenSecret string
	Plan              string

	// MonthlyReset is seeded from billing-cycle data by the import
	// process; the dispatcher uses it as the lock target when the
	// monthly usage cap is exceeded.
	MonthlyReset *time.Time

	// NextFetchReset and NextReplyReset are the runtime locks: the
	// account must not be selected for the class before the timestamp.
	NextFetchReset *time.Time
	NextReplyReset *time.Time

	FetchCount int64
	ReplyCount int64
	LastUsedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockedUntil returns the runtime lock timestamp for the operation
// class, satisfying quota.Lockable.
func (a *Account) LockedUntil(op quota.OpClass) (time.Time, bool) {
	var ts *time.Time
	switch op {
	case quota.Fetch:
		ts = a.NextFetchReset
	case quota.Reply:
		ts = a.NextReplyReset
	}
	if ts == nil {
		return time.Time{}, false
	}
	return *ts, true
}

// Eligible reports whether the account may serve op at the given
// instant: the role must permit the class and no unexpired lock may be
// recorded for it.
func (a *Account) Eligible(op quota.OpClass, now time.Time) bool {
	return a.Role.Allows(op) && !quota.IsLocked(a, op, now)
}
