package authz

import "time"

// Reason is the machine-readable explanation attached to a Verdict.
type Reason string

const (
	ReasonGranted                Reason = "granted"
	ReasonUnauthenticated        Reason = "unauthenticated"
	ReasonAccountLocked          Reason = "account_locked"
	ReasonRateLimited            Reason = "rate_limited"
	ReasonInsufficientRole       Reason = "insufficient_role"
	ReasonInsufficientPermission Reason = "insufficient_permission"
	ReasonPolicyLookupFailed     Reason = "policy_lookup_failed"
)

// Verdict is the outcome of one authorization decision. RetryAfter is
// populated only for rate-limited denials.
type Verdict struct {
	Allow      bool
	Reason     Reason
	Identity   *Identity
	RetryAfter time.Duration
}

// Identity is the guard's read view of an authenticated caller. The
// record is owned by the user store; the core only reads it.
type Identity struct {
	ID             string
	Role           Role
	Active         bool
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the identity's lock is still in force at now.
// Expiry is checked lazily; nobody flips the stored state back.
func (i *Identity) Locked(now time.Time) bool {
	return i != nil && now.Before(i.LockedUntil)
}
