package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coursedeep-api/internal/models"
	"github.com/noah-isme/coursedeep-api/internal/service"
	"github.com/noah-isme/coursedeep-api/pkg/response"
)

type reportService interface {
	ProgressReport(ctx context.Context, courseID string, format service.ReportFormat, actor *models.JWTClaims) (*service.ReportFile, error)
	Certificate(ctx context.Context, enrollmentID string, actor *models.JWTClaims) (*service.ReportFile, error)
}

// ReportHandler exposes report downloads.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ProgressReport godoc
// @Summary Download the progress roster of a course
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/progress-report [get]
func (h *ReportHandler) ProgressReport(c *gin.Context) {
	file, err := h.reports.ProgressReport(c.Request.Context(), c.Param("id"), service.ReportFormat(c.DefaultQuery("format", "csv")), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Filename, file.Payload)
}

// Certificate godoc
// @Summary Download the completion certificate of an enrollment
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/certificate [get]
func (h *ReportHandler) Certificate(c *gin.Context) {
	file, err := h.reports.Certificate(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.ContentType, file.Filename, file.Payload)
}
