package curriculum

import "github.com/noah-isme/coursedeep-api/internal/models"

// LockState is what a lock decision may look at.
type LockState struct {
	CurrentDay       int
	CompletedLessons []string
	Curriculum       models.Curriculum
}

// LockPolicy decides whether a lesson of the given day is closed to the learner.
type LockPolicy interface {
	Locked(dayID int, state LockState) bool
}

// DayPointerPolicy unlocks every day up to and including the learner's current day.
// Completion of earlier days is not required.
type DayPointerPolicy struct{}

// Locked implements LockPolicy.
func (DayPointerPolicy) Locked(dayID int, state LockState) bool {
	return IsLocked(dayID, state.CurrentDay)
}

// IsLocked reports whether a lesson on dayID is closed while the learner is on currentDay.
func IsLocked(dayID, currentDay int) bool {
	return dayID > currentDay
}
