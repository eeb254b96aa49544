package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
	"github.com/noah-isme/coursedeep-api/pkg/export"
)

// ReportFormat enumerates the progress report encodings.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportFile is a rendered download.
type ReportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type reportEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
}

type courseGetter interface {
	Get(ctx context.Context, id string) (*models.Course, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderCertificate(cert export.Certificate) ([]byte, error)
}

// ReportConfig tunes report output.
type ReportConfig struct {
	CertificateIssuer string
}

var progressReportHeaders = []string{"user_name", "user_email", "progress", "completed_lessons", "status", "enrolled_at", "last_accessed_at", "completed_at"}

// certificateNamespace seeds deterministic certificate serials.
var certificateNamespace = uuid.MustParse("6f1c3c8e-3b0e-4f55-9d61-2f7f5a4c9e10")

// ReportService renders course progress rosters and completion certificates.
type ReportService struct {
	enrollments reportEnrollmentReader
	courses     courseGetter
	csv         csvRenderer
	pdf         pdfRenderer
	cfg         ReportConfig
	logger      *zap.Logger
}

// NewReportService constructs ReportService. Nil renderers fall back to the defaults.
func NewReportService(enrollments reportEnrollmentReader, courses courseGetter, cfg ReportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{enrollments: enrollments, courses: courses, csv: csv, pdf: pdf, cfg: cfg, logger: logger}
}

// ProgressReport renders every enrollment of a course. Admins may export any course, instructors
// only the courses they teach.
func (s *ReportService) ProgressReport(ctx context.Context, courseID string, format ReportFormat, actor *models.JWTClaims) (*ReportFile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	format = ReportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ReportFormatCSV
	}
	if format != ReportFormatCSV && format != ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	course, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Teaches(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course instructor may export its progress")
	}
	enrollments, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course enrollments")
	}

	dataset := export.Dataset{Headers: progressReportHeaders, Rows: make([]map[string]string, 0, len(enrollments))}
	for _, e := range enrollments {
		completedAt := ""
		if e.CompletedAt != nil {
			completedAt = e.CompletedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"user_name":         e.UserName,
			"user_email":        e.UserEmail,
			"progress":          strconv.Itoa(e.Progress),
			"completed_lessons": fmt.Sprintf("%d/%d", len(e.CompletedLessons), len(e.AllLessons)),
			"status":            string(e.Status),
			"enrolled_at":       e.EnrolledAt.UTC().Format(time.RFC3339),
			"last_accessed_at":  e.LastAccessedAt.UTC().Format(time.RFC3339),
			"completed_at":      completedAt,
		})
	}

	base := "progress-" + course.ID
	var file *ReportFile
	switch format {
	case ReportFormatPDF:
		payload, err := s.pdf.Render(dataset, course.Name+" progress")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		file = &ReportFile{Filename: base + ".pdf", ContentType: "application/pdf", Payload: payload}
	default:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		file = &ReportFile{Filename: base + ".csv", ContentType: "text/csv", Payload: payload}
	}
	s.logger.Info("progress report rendered",
		zap.String("course_id", course.ID),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)))
	return file, nil
}

// Certificate renders the completion certificate of a completed enrollment.
func (s *ReportService) Certificate(ctx context.Context, enrollmentID string, actor *models.JWTClaims) (*ReportFile, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := authorize(actor, enrollment.UserEmail); err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusCompleted || enrollment.CompletedAt == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course not completed yet")
	}

	name := enrollment.UserName
	if name == "" {
		name = enrollment.UserEmail
	}
	serial := uuid.NewSHA1(certificateNamespace, []byte(enrollment.ID)).String()
	payload, err := s.pdf.RenderCertificate(export.Certificate{
		Issuer:      s.cfg.CertificateIssuer,
		LearnerName: name,
		CourseTitle: enrollment.CourseTitle,
		Instructor:  enrollment.InstructorName,
		CompletedAt: *enrollment.CompletedAt,
		Serial:      serial,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return &ReportFile{
		Filename:    "certificate-" + enrollment.ID + ".pdf",
		ContentType: "application/pdf",
		Payload:     payload,
	}, nil
}
