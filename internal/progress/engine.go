// Package progress applies lesson completion and manual progress updates to an enrollment.
//
// An enrollment is either active or completed. Completed is terminal: later calls still record
// lesson membership, position and access time, but progress stays at 100 and completedAt keeps
// its first value.
package progress

import (
	"time"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

// LessonCompletion marks one lesson done and optionally moves the learner on.
type LessonCompletion struct {
	LessonID     string
	NextLessonID *string
	CurrentDay   *int
}

// Update is a partial progress update. Completed with a LessonID takes precedence over Progress.
type Update struct {
	LessonID   *string
	Completed  bool
	Progress   *int
	CurrentDay *int
}

// Engine computes enrollment changes. It never touches storage.
type Engine struct {
	now func() time.Time
}

// NewEngine builds an engine using now as its clock, or UTC wall time when nil.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{now: now}
}

// CompleteLesson adds the lesson to the completed set and recomputes progress from the set.
func (e *Engine) CompleteLesson(enrollment *models.Enrollment, in LessonCompletion) (models.EnrollmentChanges, error) {
	if err := checkLessons(enrollment, in.LessonID, in.NextLessonID); err != nil {
		return models.EnrollmentChanges{}, err
	}
	if err := checkDay(in.CurrentDay); err != nil {
		return models.EnrollmentChanges{}, err
	}

	changes := models.EnrollmentChanges{LastAccessedAt: e.now()}
	e.complete(enrollment, in.LessonID, &changes)
	if in.NextLessonID != nil && *in.NextLessonID != "" && !sameLesson(enrollment.CurrentLesson, *in.NextLessonID) {
		next := *in.NextLessonID
		changes.CurrentLesson = &next
	}
	setDay(enrollment, in.CurrentDay, &changes)
	return changes, nil
}

// UpdateProgress applies a partial update. Fields absent from the update keep their stored value.
func (e *Engine) UpdateProgress(enrollment *models.Enrollment, in Update) (models.EnrollmentChanges, error) {
	lessonID := ""
	if in.LessonID != nil {
		lessonID = *in.LessonID
	}
	if lessonID != "" {
		if err := checkLessons(enrollment, lessonID, nil); err != nil {
			return models.EnrollmentChanges{}, err
		}
	}
	if err := checkDay(in.CurrentDay); err != nil {
		return models.EnrollmentChanges{}, err
	}

	changes := models.EnrollmentChanges{LastAccessedAt: e.now()}
	switch {
	case in.Completed && lessonID != "":
		e.complete(enrollment, lessonID, &changes)
	case in.Progress != nil:
		e.setManual(enrollment, Clamp(*in.Progress), &changes)
	}
	if lessonID != "" && !sameLesson(enrollment.CurrentLesson, lessonID) {
		changes.CurrentLesson = &lessonID
	}
	setDay(enrollment, in.CurrentDay, &changes)
	return changes, nil
}

func (e *Engine) complete(enrollment *models.Enrollment, lessonID string, changes *models.EnrollmentChanges) {
	completed := []string(enrollment.CompletedLessons)
	if !enrollment.HasCompleted(lessonID) {
		completed = append(append(make([]string, 0, len(completed)+1), completed...), lessonID)
		changes.CompletedLessons = completed
	}

	value := Percent(len(completed), len(enrollment.AllLessons))
	if enrollment.Status == models.EnrollmentStatusCompleted {
		value = 100
	}
	e.setProgress(enrollment, value, changes)
}

func (e *Engine) setManual(enrollment *models.Enrollment, value int, changes *models.EnrollmentChanges) {
	if enrollment.Status == models.EnrollmentStatusCompleted {
		return
	}
	e.setProgress(enrollment, value, changes)
}

func (e *Engine) setProgress(enrollment *models.Enrollment, value int, changes *models.EnrollmentChanges) {
	if value != enrollment.Progress {
		changes.Progress = &value
	}
	if value == 100 && enrollment.Status != models.EnrollmentStatusCompleted {
		status := models.EnrollmentStatusCompleted
		changes.Status = &status
	}
	if value == 100 && enrollment.CompletedAt == nil {
		completedAt := changes.LastAccessedAt
		changes.CompletedAt = &completedAt
	}
}

// Percent returns round(100 * done / total) with halves rounded up. total must be positive.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*done + total) / (2 * total)
}

// Clamp bounds a manual progress value to 0..100.
func Clamp(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func checkLessons(enrollment *models.Enrollment, lessonID string, next *string) error {
	if len(enrollment.AllLessons) == 0 {
		return appErrors.ErrEmptyCurriculum
	}
	if lessonID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "lesson_id is required")
	}
	if _, ok := enrollment.AllLessons.Find(lessonID); !ok {
		return appErrors.Clone(appErrors.ErrUnknownLesson, "lesson "+lessonID+" is not part of this enrollment")
	}
	if next != nil && *next != "" {
		if _, ok := enrollment.AllLessons.Find(*next); !ok {
			return appErrors.Clone(appErrors.ErrUnknownLesson, "next lesson "+*next+" is not part of this enrollment")
		}
	}
	return nil
}

func checkDay(day *int) error {
	if day != nil && *day < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "current_day must be at least 1")
	}
	return nil
}

func setDay(enrollment *models.Enrollment, day *int, changes *models.EnrollmentChanges) {
	if day == nil || *day == enrollment.CurrentDay {
		return
	}
	value := *day
	changes.CurrentDay = &value
}

func sameLesson(current *string, lessonID string) bool {
	return current != nil && *current == lessonID
}
