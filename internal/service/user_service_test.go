package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

type fakeUserRepo struct {
	users     map[string]*models.User
	deleted   []string
	deleteErr error
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) DeleteWithEnrollments(ctx context.Context, user *models.User) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted = append(f.deleted, user.ID)
	delete(f.users, user.ID)
	return 2, nil
}

func TestUserServiceDelete(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*models.User{
		"u-1":     {ID: "u-1", Email: "ada@example.com"},
		"admin-1": {ID: "admin-1", Email: "root@example.com", Role: models.RoleAdmin},
	}}
	svc := NewUserService(repo, nil)

	err := svc.Delete(context.Background(), "u-1", learner())
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "admin-1", admin())
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "u-1", admin()))
	assert.Equal(t, []string{"u-1"}, repo.deleted)

	err = svc.Delete(context.Background(), "u-1", admin())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo.users["u-2"] = &models.User{ID: "u-2"}
	repo.deleteErr = errors.New("tx aborted")
	err = svc.Delete(context.Background(), "u-2", admin())
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
