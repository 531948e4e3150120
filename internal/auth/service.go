package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/keystone-pm/keystone/internal/lockout"
	"github.com/keystone-pm/keystone/internal/shared"
	"github.com/keystone-pm/keystone/internal/users"
)

// UserDirectory resolves accounts for credential checks.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps authentication business rules. Every failed credential
// check is reported to the lockout tracker; every successful one
// clears the failure counter.
type Service struct {
	directory UserDirectory
	lockout   *lockout.Tracker
	repo      Repository
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a new Service.
func NewService(directory UserDirectory, tracker *lockout.Tracker, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		directory: directory,
		lockout:   tracker,
		repo:      repo,
		logger:    logger,
		now:       time.Now,
	}
}

// Authenticate validates email/password credentials. Locked accounts
// are refused before the password is even checked, so an attacker
// cannot keep probing a locked account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	identityID := strconv.FormatInt(user.ID, 10)
	if s.now().Before(user.LockedUntil) {
		return nil, shared.ErrAccountLocked
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		locked, lockErr := s.lockout.ReportFailure(ctx, identityID)
		if lockErr != nil {
			s.logger.Warn("report auth failure", slog.Any("error", lockErr))
		}
		if locked {
			return nil, shared.ErrAccountLocked
		}
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.lockout.ReportSuccess(ctx, identityID); err != nil {
		s.logger.Warn("reset lockout counter", slog.Any("error", err))
	}
	return user, nil
}

// RegisterSession persists the session metadata for auditing.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	err := s.repo.DeleteSession(ctx, id)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	return nil
}
