package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursedeep-api/pkg/response"
)

type courseCache interface {
	FlushCache(ctx context.Context) error
}

// CourseHandler exposes course catalogue maintenance.
type CourseHandler struct {
	courses courseCache
}

// NewCourseHandler constructs handler.
func NewCourseHandler(courses courseCache) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// FlushCache godoc
// @Summary Drop every cached course
// @Description Run after editing courses so new enrollments and course details read the database.
// @Tags Courses
// @Success 204
// @Failure 500 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/cache [delete]
func (h *CourseHandler) FlushCache(c *gin.Context) {
	if err := h.courses.FlushCache(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
