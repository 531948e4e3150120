package users

import (
	"time"

	"github.com/keystone-pm/keystone/internal/authz"
)

// User is a platform account. The authorization core reads role,
// active flag, and lockout counters from here; the rest belongs to
// account management.
type User struct {
	ID             int64
	Email          string
	Name           string
	PasswordHash   string
	Role           authz.Role
	IsActive       bool
	FailedAttempts int
	// LockedUntil is zero while the account is unlocked.
	LockedUntil time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
