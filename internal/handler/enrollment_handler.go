package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursedeep-api/internal/models"
	"github.com/noah-isme/coursedeep-api/internal/service"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
	"github.com/noah-isme/coursedeep-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error)
	Enroll(ctx context.Context, req service.EnrollRequest) (*models.EnrollmentDetail, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.EnrollmentDetail, error)
	ListByUserEmail(ctx context.Context, email string, actor *models.JWTClaims) ([]models.EnrollmentDetail, error)
	CheckDuplicate(ctx context.Context, courseID, email string, actor *models.JWTClaims) (*service.DuplicateCheck, error)
	CourseContent(ctx context.Context, id string, actor *models.JWTClaims) (*models.CourseContent, error)
	UpdateProgress(ctx context.Context, id string, req service.ProgressUpdateRequest, actor *models.JWTClaims) (*models.Enrollment, error)
	CompleteLesson(ctx context.Context, id string, req service.CompleteLessonRequest, actor *models.JWTClaims) (*models.Enrollment, error)
}

// EnrollmentHandler exposes enrollment and progress endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param userEmail query string false "Filter by learner email"
// @Param courseId query string false "Filter by course"
// @Param status query string false "active or completed"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		UserEmail: c.Query("userEmail"),
		CourseID:  c.Query("courseId"),
		Status:    models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Create godoc
// @Summary Enroll the caller in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Course and payment confirmation"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.UserID = claims.UserID
	req.UserEmail = claims.Email
	req.UserName = claims.FullName

	detail, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, service.EnrolledMessage, detail)
}

// ListByUser godoc
// @Summary List a learner's enrollments with course details
// @Tags Enrollments
// @Produce json
// @Param email path string true "Learner email"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/user/{email} [get]
func (h *EnrollmentHandler) ListByUser(c *gin.Context) {
	details, err := h.enrollments.ListByUserEmail(c.Request.Context(), c.Param("email"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// CheckDuplicate godoc
// @Summary Check whether a learner is already enrolled
// @Tags Enrollments
// @Produce json
// @Param courseId path string true "Course ID"
// @Param userEmail query string true "Learner email"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/check-duplicate/{courseId} [get]
func (h *EnrollmentHandler) CheckDuplicate(c *gin.Context) {
	result, err := h.enrollments.CheckDuplicate(c.Request.Context(), c.Param("courseId"), c.Query("userEmail"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	detail, err := h.enrollments.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// CourseContent godoc
// @Summary Course content for the video player
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/course-content [get]
func (h *EnrollmentHandler) CourseContent(c *gin.Context) {
	content, err := h.enrollments.CourseContent(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, content, nil)
}

// UpdateProgress godoc
// @Summary Update enrollment progress
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ProgressUpdateRequest true "Partial progress update"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/progress [patch]
func (h *EnrollmentHandler) UpdateProgress(c *gin.Context) {
	var req service.ProgressUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.UpdateProgress(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// CompleteLesson godoc
// @Summary Mark a lesson as completed
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.CompleteLessonRequest true "Lesson completion"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/complete-lesson [post]
func (h *EnrollmentHandler) CompleteLesson(c *gin.Context) {
	var req service.CompleteLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.CompleteLesson(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
