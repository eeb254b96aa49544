package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursedeep-api/internal/models"
	"github.com/noah-isme/coursedeep-api/pkg/response"
)

type userService interface {
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// UserHandler handles account administration.
type UserHandler struct {
	users userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users userService) *UserHandler {
	return &UserHandler{users: users}
}

// Delete godoc
// @Summary Delete a user and their enrollments
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
