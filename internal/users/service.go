package users

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/keystone-pm/keystone/internal/authz"
	"github.com/keystone-pm/keystone/internal/lockout"
	"github.com/keystone-pm/keystone/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	IncrementFailedAttempts(ctx context.Context, id int64) (int, error)
	Lock(ctx context.Context, id int64, until time.Time) error
	ResetLock(ctx context.Context, id int64) error
}

// Service handles account business logic. It doubles as the
// authorization core's identity reader and as the lockout tracker's
// store, both keyed by the opaque identity id the session carries.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// FindByEmail returns one account by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// Identity resolves the authorization read view for an identity id.
func (s *Service) Identity(ctx context.Context, id string) (*authz.Identity, error) {
	numericID, err := parseIdentityID(id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, numericID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, authz.ErrIdentityNotFound
		}
		return nil, err
	}
	return &authz.Identity{
		ID:             id,
		Role:           user.Role,
		Active:         user.IsActive,
		FailedAttempts: user.FailedAttempts,
		LockedUntil:    user.LockedUntil,
	}, nil
}

// IncrementFailedAttempts implements lockout.Store.
func (s *Service) IncrementFailedAttempts(ctx context.Context, identityID string) (int, error) {
	id, err := parseIdentityID(identityID)
	if err != nil {
		return 0, err
	}
	return s.repo.IncrementFailedAttempts(ctx, id)
}

// Lock implements lockout.Store.
func (s *Service) Lock(ctx context.Context, identityID string, until time.Time) error {
	id, err := parseIdentityID(identityID)
	if err != nil {
		return err
	}
	return s.repo.Lock(ctx, id, until)
}

// ResetLock implements lockout.Store.
func (s *Service) ResetLock(ctx context.Context, identityID string) error {
	id, err := parseIdentityID(identityID)
	if err != nil {
		return err
	}
	return s.repo.ResetLock(ctx, id)
}

func parseIdentityID(id string) (int64, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, authz.ErrIdentityNotFound
	}
	return numericID, nil
}

var (
	_ authz.IdentityReader = (*Service)(nil)
	_ lockout.Store        = (*Service)(nil)
)
