package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/coursedeep-api/internal/curriculum"
	"github.com/noah-isme/coursedeep-api/internal/models"
	"github.com/noah-isme/coursedeep-api/internal/progress"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

// EnrolledMessage accompanies a successful enrollment.
const EnrolledMessage = "Successfully enrolled in the course!"

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByUserAndCourse(ctx context.Context, userEmail, courseID string) (*models.Enrollment, error)
	ListByUserEmail(ctx context.Context, userEmail string) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Mutate(ctx context.Context, id string, fn func(*models.Enrollment) (models.EnrollmentChanges, error)) (*models.Enrollment, error)
}

type courseCatalog interface {
	Get(ctx context.Context, id string) (*models.Course, error)
	GetFresh(ctx context.Context, id string) (*models.Course, error)
	FindMany(ctx context.Context, ids []string) (map[string]*models.Course, error)
	IncrementEnrollmentCount(ctx context.Context, id string) error
}

// EnrollRequest describes an enrollment attempt. Identity fields come from the caller's token.
type EnrollRequest struct {
	UserID          string   `json:"-"`
	UserEmail       string   `json:"-" validate:"required,email"`
	UserName        string   `json:"-"`
	CourseID        string   `json:"course_id" validate:"required"`
	PaymentIntentID *string  `json:"payment_intent_id"`
	PaymentStatus   *string  `json:"payment_status"`
	PaymentAmount   *float64 `json:"payment_amount" validate:"omitempty,gte=0"`
	PaymentCurrency *string  `json:"payment_currency"`
}

// ProgressUpdateRequest is a partial progress update.
type ProgressUpdateRequest struct {
	Progress   *int    `json:"progress"`
	LessonID   *string `json:"lesson_id"`
	Completed  bool    `json:"completed"`
	CurrentDay *int    `json:"current_day" validate:"omitempty,gte=1"`
}

// CompleteLessonRequest marks a lesson as done.
type CompleteLessonRequest struct {
	LessonID     string  `json:"lesson_id" validate:"required"`
	NextLessonID *string `json:"next_lesson_id"`
	CurrentDay   *int    `json:"current_day" validate:"omitempty,gte=1"`
}

// DuplicateCheck reports whether a user already holds an enrollment in a course.
type DuplicateCheck struct {
	IsEnrolled bool               `json:"is_enrolled"`
	Enrollment *models.Enrollment `json:"enrollment"`
}

// EnrollmentService orchestrates enrollment and progress workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseCatalog
	engine    *progress.Engine
	locks     curriculum.LockPolicy
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseCatalog, engine *progress.Engine, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if engine == nil {
		engine = progress.NewEngine(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		engine:    engine,
		locks:     curriculum.DayPointerPolicy{},
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	filter.UserEmail = normalizeEmail(filter.UserEmail)
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Enroll creates an enrollment holding a snapshot of the course curriculum.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	req.UserEmail = normalizeEmail(req.UserEmail)
	req.CourseID = strings.TrimSpace(req.CourseID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	existing, err := s.repo.FindByUserAndCourse(ctx, req.UserEmail, req.CourseID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}

	course, err := s.courses.GetFresh(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.IsFree && (req.PaymentIntentID == nil || *req.PaymentIntentID == "" ||
		req.PaymentStatus == nil || *req.PaymentStatus != models.PaymentStatusSucceeded) {
		return nil, appErrors.Clone(appErrors.ErrPaymentRequired, "payment required for this course")
	}

	lessons := curriculum.Flatten(course.Curriculum)
	enrollment := &models.Enrollment{
		UserID:            req.UserID,
		UserEmail:         req.UserEmail,
		UserName:          req.UserName,
		CourseID:          course.ID,
		CourseTitle:       course.Name,
		CourseDescription: course.ShortDescription,
		CourseImage:       course.Image,
		InstructorName:    course.Teacher.Name,
		CoursePrice:       course.Price,
		IsFree:            course.IsFree,
		Curriculum:        course.Curriculum,
		AllLessons:        lessons,
		CurrentLesson:     curriculum.FirstLessonID(lessons),
		CurrentDay:        1,
		Status:            models.EnrollmentStatusActive,
	}
	if !course.IsFree {
		enrollment.PaymentIntentID = req.PaymentIntentID
		enrollment.PaymentStatus = req.PaymentStatus
		enrollment.PaymentAmount = req.PaymentAmount
		enrollment.PaymentCurrency = req.PaymentCurrency
	}

	if err := s.repo.Create(ctx, enrollment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.metrics.RecordEnrollment(course.IsFree)

	if err := s.courses.IncrementEnrollmentCount(ctx, course.ID); err != nil {
		s.logger.Warn("course enrollment counter not incremented",
			zap.String("course_id", course.ID),
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err))
	}

	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("course_id", course.ID),
		zap.Int("lessons", len(lessons)))
	return &models.EnrollmentDetail{Enrollment: *enrollment, CourseDetails: course}, nil
}

// Get returns an enrollment with the live course attached when it still exists.
func (s *EnrollmentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.EnrollmentDetail, error) {
	enrollment, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	detail := &models.EnrollmentDetail{Enrollment: *enrollment}
	course, err := s.courses.Get(ctx, enrollment.CourseID)
	switch {
	case err == nil:
		detail.CourseDetails = course
	case appErrors.FromError(err).Code != appErrors.ErrNotFound.Code:
		return nil, err
	}
	return detail, nil
}

// ListByUserEmail returns the user's enrollments, newest first, each with its live course.
func (s *EnrollmentService) ListByUserEmail(ctx context.Context, email string, actor *models.JWTClaims) ([]models.EnrollmentDetail, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user email is required")
	}
	if err := authorize(actor, email); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListByUserEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	courses, err := s.courses.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]models.EnrollmentDetail, 0, len(enrollments))
	for _, e := range enrollments {
		details = append(details, models.EnrollmentDetail{Enrollment: e, CourseDetails: courses[e.CourseID]})
	}
	return details, nil
}

// CheckDuplicate reports whether email already holds an enrollment in courseID.
func (s *EnrollmentService) CheckDuplicate(ctx context.Context, courseID, email string, actor *models.JWTClaims) (*DuplicateCheck, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user email is required")
	}
	if err := authorize(actor, email); err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByUserAndCourse(ctx, email, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &DuplicateCheck{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for duplicate enrollment")
	}
	return &DuplicateCheck{IsEnrolled: true, Enrollment: enrollment}, nil
}

// CourseContent builds the player view from the enrollment's curriculum snapshot. The live course
// must still exist and supplies the header fields.
func (s *EnrollmentService) CourseContent(ctx context.Context, id string, actor *models.JWTClaims) (*models.CourseContent, error) {
	enrollment, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.Get(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}

	state := curriculum.LockState{
		CurrentDay:       enrollment.CurrentDay,
		CompletedLessons: enrollment.CompletedLessons,
		Curriculum:       enrollment.Curriculum,
	}
	days := make([]models.CourseContentDay, 0, len(enrollment.Curriculum))
	for _, day := range enrollment.Curriculum {
		locked := s.locks.Locked(day.ID, state)
		lessons := make([]models.CourseContentLesson, 0, len(day.Lessons))
		for _, lesson := range day.Lessons {
			lessonID := curriculum.LessonID(day.ID, lesson.Title)
			order := 0
			if d, ok := enrollment.AllLessons.Find(lessonID); ok {
				order = d.Order
			}
			lessons = append(lessons, models.CourseContentLesson{
				LessonID:    lessonID,
				Title:       lesson.Title,
				Duration:    lesson.Duration,
				Type:        lesson.Type,
				Order:       order,
				IsCompleted: enrollment.HasCompleted(lessonID),
				IsLocked:    locked,
			})
		}
		days = append(days, models.CourseContentDay{
			ID:       day.ID,
			Title:    day.Title,
			Duration: day.Duration,
			Lectures: day.Lectures,
			Lessons:  lessons,
		})
	}

	completed := []string(enrollment.CompletedLessons)
	if completed == nil {
		completed = []string{}
	}
	return &models.CourseContent{
		EnrollmentID:     enrollment.ID,
		CourseID:         course.ID,
		CourseTitle:      course.Name,
		CourseImage:      course.Image,
		Instructor:       course.Teacher,
		Progress:         enrollment.Progress,
		Status:           enrollment.Status,
		CurrentLesson:    enrollment.CurrentLesson,
		CurrentDay:       enrollment.CurrentDay,
		CompletedLessons: completed,
		Curriculum:       days,
	}, nil
}

// UpdateProgress applies a partial progress update.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, id string, req ProgressUpdateRequest, actor *models.JWTClaims) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}
	update := progress.Update{
		LessonID:   req.LessonID,
		Completed:  req.Completed,
		Progress:   req.Progress,
		CurrentDay: req.CurrentDay,
	}
	return s.mutate(ctx, id, actor, func(e *models.Enrollment) (models.EnrollmentChanges, error) {
		return s.engine.UpdateProgress(e, update)
	})
}

// CompleteLesson marks one lesson done and recomputes progress.
func (s *EnrollmentService) CompleteLesson(ctx context.Context, id string, req CompleteLessonRequest, actor *models.JWTClaims) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson completion payload")
	}
	completion := progress.LessonCompletion{
		LessonID:     req.LessonID,
		NextLessonID: req.NextLessonID,
		CurrentDay:   req.CurrentDay,
	}
	return s.mutate(ctx, id, actor, func(e *models.Enrollment) (models.EnrollmentChanges, error) {
		return s.engine.CompleteLesson(e, completion)
	})
}

func (s *EnrollmentService) mutate(ctx context.Context, id string, actor *models.JWTClaims, compute func(*models.Enrollment) (models.EnrollmentChanges, error)) (*models.Enrollment, error) {
	var before models.Enrollment
	updated, err := s.repo.Mutate(ctx, id, func(current *models.Enrollment) (models.EnrollmentChanges, error) {
		if err := authorize(actor, current.UserEmail); err != nil {
			return models.EnrollmentChanges{}, err
		}
		before = *current
		return compute(current)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	if added := len(updated.CompletedLessons) - len(before.CompletedLessons); added > 0 {
		s.metrics.RecordLessonCompleted()
	}
	if before.Status != models.EnrollmentStatusCompleted && updated.Status == models.EnrollmentStatusCompleted {
		s.metrics.RecordCourseCompleted()
		s.logger.Info("course completed",
			zap.String("enrollment_id", updated.ID),
			zap.String("course_id", updated.CourseID))
	}
	return updated, nil
}

func (s *EnrollmentService) load(ctx context.Context, id string, actor *models.JWTClaims) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := authorize(actor, enrollment.UserEmail); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// normalizeEmail is the stored form of a learner email. Lookups and uniqueness use it too.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// authorize lets admins through and everyone else only to their own records.
func authorize(actor *models.JWTClaims, email string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.IsAdmin() || strings.EqualFold(actor.Email, email) {
		return nil
	}
	return appErrors.ErrForbidden
}
