package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

const enrollmentColumns = `id, user_id, user_email, user_name, course_id, course_title, course_description, course_image,
        instructor_name, course_price, is_free, curriculum, all_lessons, progress, completed_lessons, current_lesson,
        current_day, status, payment_intent_id, payment_status, payment_amount, payment_currency, enrolled_at,
        last_accessed_at, completed_at`

const uniqueViolation = "23505"

// EnrollmentMutation computes the changes to persist for a locked enrollment.
type EnrollmentMutation = func(enrollment *models.Enrollment) (models.EnrollmentChanges, error)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria, newest first.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.UserEmail != "" {
		conditions = append(conditions, fmt.Sprintf("user_email = $%d", len(args)+1))
		args = append(args, filter.UserEmail)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY enrolled_at DESC LIMIT %d OFFSET %d`, enrollmentColumns, clause, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollments"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByUserAndCourse returns the enrollment of a user in a course.
func (r *EnrollmentRepository) FindByUserAndCourse(ctx context.Context, userEmail, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_email = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userEmail, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByUserEmail returns every enrollment of a user, newest first.
func (r *EnrollmentRepository) ListByUserEmail(ctx context.Context, userEmail string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_email = $1 ORDER BY enrolled_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userEmail); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByCourse returns every enrollment of a course ordered by learner name.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE course_id = $1 ORDER BY user_name, user_email`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment record. A second enrollment of the same user in the same
// course fails with a conflict error.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.LastAccessedAt.IsZero() {
		enrollment.LastAccessedAt = enrollment.EnrolledAt
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if enrollment.CompletedLessons == nil {
		enrollment.CompletedLessons = pq.StringArray{}
	}
	const query = `INSERT INTO enrollments (id, user_id, user_email, user_name, course_id, course_title, course_description,
        course_image, instructor_name, course_price, is_free, curriculum, all_lessons, progress, completed_lessons,
        current_lesson, current_day, status, payment_intent_id, payment_status, payment_amount, payment_currency,
        enrolled_at, last_accessed_at, completed_at)
        VALUES (:id, :user_id, :user_email, :user_name, :course_id, :course_title, :course_description,
        :course_image, :instructor_name, :course_price, :is_free, :curriculum, :all_lessons, :progress, :completed_lessons,
        :current_lesson, :current_day, :status, :payment_intent_id, :payment_status, :payment_amount, :payment_currency,
        :enrolled_at, :last_accessed_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "already enrolled in this course")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Mutate locks the enrollment row, lets fn compute the changes and writes back only the
// changed columns in the same transaction. Concurrent mutations of one enrollment queue on
// the row lock, so each sees the result of the previous one.
func (r *EnrollmentRepository) Mutate(ctx context.Context, id string, fn EnrollmentMutation) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Enrollment
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}

	changes, err := fn(&current)
	if err != nil {
		return nil, err
	}

	if err = updateChanges(ctx, tx, id, changes); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrollment transaction: %w", err)
	}

	current.Apply(changes)
	return &current, nil
}

func updateChanges(ctx context.Context, tx *sqlx.Tx, id string, changes models.EnrollmentChanges) error {
	sets := []string{"last_accessed_at = $1"}
	args := []interface{}{changes.LastAccessedAt}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if changes.CompletedLessons != nil {
		add("completed_lessons", pq.Array(changes.CompletedLessons))
	}
	if changes.Progress != nil {
		add("progress", *changes.Progress)
	}
	if changes.CurrentLesson != nil {
		add("current_lesson", *changes.CurrentLesson)
	}
	if changes.CurrentDay != nil {
		add("current_day", *changes.CurrentDay)
	}
	if changes.Status != nil {
		add("status", *changes.Status)
	}
	if changes.CompletedAt != nil {
		add("completed_at", *changes.CompletedAt)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE enrollments SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}
	return nil
}
