package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Course, error)
	IncrementEnrollmentCount(ctx context.Context, id string) error
}

// CourseService resolves live courses, reading through the cache when one is configured.
type CourseService struct {
	repo   courseRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCourseService constructs CourseService. cache may be nil.
func NewCourseService(repo courseRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func courseCacheKey(id string) string {
	return "course:" + id
}

// Get returns the course or a not found error.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	var cached models.Course
	if s.cache.Get(ctx, courseCacheKey(id), &cached) {
		return &cached, nil
	}

	return s.GetFresh(ctx, id)
}

// GetFresh reads the course from the database, bypassing the cache, and refreshes the cached
// copy. Enrollment snapshots must come from here.
func (s *CourseService) GetFresh(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.cache.Invalidate(ctx, courseCacheKey(id))
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	s.cache.Set(ctx, courseCacheKey(id), course, s.ttl)
	return course, nil
}

// FindMany returns the courses that still exist among ids, keyed by id.
func (s *CourseService) FindMany(ctx context.Context, ids []string) (map[string]*models.Course, error) {
	result := make(map[string]*models.Course, len(ids))
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		var cached models.Course
		if s.cache.Get(ctx, courseCacheKey(id), &cached) {
			result[id] = &cached
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	found, err := s.repo.FindByIDs(ctx, missing)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	for id, course := range found {
		result[id] = course
		s.cache.Set(ctx, courseCacheKey(id), course, s.ttl)
	}
	return result, nil
}

// IncrementEnrollmentCount bumps the course's student counter and drops its cached copy.
func (s *CourseService) IncrementEnrollmentCount(ctx context.Context, id string) error {
	if err := s.repo.IncrementEnrollmentCount(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, courseCacheKey(id))
	return nil
}

// FlushCache drops every cached course so the next reads go to the database.
func (s *CourseService) FlushCache(ctx context.Context) error {
	if err := s.cache.InvalidatePattern(ctx, courseCacheKey("*")); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flush course cache")
	}
	s.logger.Info("course cache flushed", zap.Bool("enabled", s.cache.Enabled()))
	return nil
}
