package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	DeleteWithEnrollments(ctx context.Context, user *models.User) (int64, error)
}

// UserService manages learner accounts.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
}

// NewUserService constructs UserService.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// Delete removes a user together with all of their enrollments.
func (s *UserService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if !actor.IsAdmin() {
		return appErrors.ErrForbidden
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.ID == actor.UserID {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete own account")
	}
	removed, err := s.repo.DeleteWithEnrollments(ctx, user)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.logger.Info("user deleted",
		zap.String("user_id", user.ID),
		zap.String("actor_id", actor.UserID),
		zap.Int64("enrollments_removed", removed))
	return nil
}
