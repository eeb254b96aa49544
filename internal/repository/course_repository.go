package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/coursedeep-api/internal/models"
)

const courseColumns = `id, name, short_description, image, price, is_free, teacher, curriculum, students_enrolled, created_at, updated_at`

// CourseRepository reads the live course catalogue.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByIDs returns the courses that exist among ids keyed by id.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error) {
	result := make(map[string]*models.Course, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT `+courseColumns+` FROM courses WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build course lookup: %w", err)
	}
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find courses: %w", err)
	}
	for i := range courses {
		result[courses[i].ID] = &courses[i]
	}
	return result, nil
}

// IncrementEnrollmentCount bumps the denormalised student counter by one.
func (r *CourseRepository) IncrementEnrollmentCount(ctx context.Context, id string) error {
	const query = `UPDATE courses SET students_enrolled = students_enrolled + 1, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment course enrollment count: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("increment course enrollment count: course %s not found", id)
	}
	return nil
}
