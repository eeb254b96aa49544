package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// EnrollmentStatus represents the lifecycle of an enrollment. Completed is terminal.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// PaymentStatusSucceeded is the only gateway status that unlocks a paid course.
const PaymentStatusSucceeded = "succeeded"

// LessonDescriptor is the flattened, globally ordered view of one lesson.
type LessonDescriptor struct {
	LessonID string     `json:"lesson_id"`
	DayID    int        `json:"day_id"`
	DayTitle string     `json:"day_title"`
	Title    string     `json:"title"`
	Duration string     `json:"duration"`
	Type     LessonType `json:"type"`
	Order    int        `json:"order"`
}

// LessonDescriptors is stored as JSONB on the enrollment snapshot.
type LessonDescriptors []LessonDescriptor

// Value implements driver.Valuer.
func (l LessonDescriptors) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LessonDescriptors) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Find returns the descriptor with the given id.
func (l LessonDescriptors) Find(lessonID string) (LessonDescriptor, bool) {
	for _, d := range l {
		if d.LessonID == lessonID {
			return d, true
		}
	}
	return LessonDescriptor{}, false
}

// Enrollment is one user's relationship to one course. The course fields, curriculum and
// lesson list are a snapshot taken at enroll time and are never refreshed.
type Enrollment struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"user_id"`
	UserEmail string `db:"user_email" json:"user_email"`
	UserName  string `db:"user_name" json:"user_name"`

	CourseID          string            `db:"course_id" json:"course_id"`
	CourseTitle       string            `db:"course_title" json:"course_title"`
	CourseDescription string            `db:"course_description" json:"course_description"`
	CourseImage       string            `db:"course_image" json:"course_image"`
	InstructorName    string            `db:"instructor_name" json:"instructor_name"`
	CoursePrice       float64           `db:"course_price" json:"course_price"`
	IsFree            bool              `db:"is_free" json:"is_free"`
	Curriculum        Curriculum        `db:"curriculum" json:"curriculum"`
	AllLessons        LessonDescriptors `db:"all_lessons" json:"all_lessons"`

	Progress         int              `db:"progress" json:"progress"`
	CompletedLessons pq.StringArray   `db:"completed_lessons" json:"completed_lessons"`
	CurrentLesson    *string          `db:"current_lesson" json:"current_lesson"`
	CurrentDay       int              `db:"current_day" json:"current_day"`
	Status           EnrollmentStatus `db:"status" json:"status"`

	PaymentIntentID *string  `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	PaymentStatus   *string  `db:"payment_status" json:"payment_status,omitempty"`
	PaymentAmount   *float64 `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentCurrency *string  `db:"payment_currency" json:"payment_currency,omitempty"`

	EnrolledAt     time.Time  `db:"enrolled_at" json:"enrolled_at"`
	LastAccessedAt time.Time  `db:"last_accessed_at" json:"last_accessed_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at"`
}

// HasCompleted reports whether the lesson is in the completed set.
func (e *Enrollment) HasCompleted(lessonID string) bool {
	for _, id := range e.CompletedLessons {
		if id == lessonID {
			return true
		}
	}
	return false
}

// EnrollmentChanges lists the fields a progress mutation touched. Nil members are left as stored.
type EnrollmentChanges struct {
	CompletedLessons []string
	Progress         *int
	CurrentLesson    *string
	CurrentDay       *int
	Status           *EnrollmentStatus
	CompletedAt      *time.Time
	LastAccessedAt   time.Time
}

// Apply copies the changed fields onto the enrollment.
func (e *Enrollment) Apply(c EnrollmentChanges) {
	if c.CompletedLessons != nil {
		e.CompletedLessons = append(pq.StringArray(nil), c.CompletedLessons...)
	}
	if c.Progress != nil {
		e.Progress = *c.Progress
	}
	if c.CurrentLesson != nil {
		lesson := *c.CurrentLesson
		e.CurrentLesson = &lesson
	}
	if c.CurrentDay != nil {
		e.CurrentDay = *c.CurrentDay
	}
	if c.Status != nil {
		e.Status = *c.Status
	}
	if c.CompletedAt != nil {
		completedAt := *c.CompletedAt
		e.CompletedAt = &completedAt
	}
	if !c.LastAccessedAt.IsZero() {
		e.LastAccessedAt = c.LastAccessedAt
	}
}

// EnrollmentDetail enriches an enrollment with the live course, which may have been removed.
type EnrollmentDetail struct {
	Enrollment
	CourseDetails *Course `json:"course_details"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserEmail string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}

// CourseContent is the video player view of an enrollment.
type CourseContent struct {
	EnrollmentID     string             `json:"enrollment_id"`
	CourseID         string             `json:"course_id"`
	CourseTitle      string             `json:"course_title"`
	CourseImage      string             `json:"course_image"`
	Instructor       Teacher            `json:"instructor"`
	Progress         int                `json:"progress"`
	Status           EnrollmentStatus   `json:"status"`
	CurrentLesson    *string            `json:"current_lesson"`
	CurrentDay       int                `json:"current_day"`
	CompletedLessons []string           `json:"completed_lessons"`
	Curriculum       []CourseContentDay `json:"curriculum"`
}

// CourseContentDay is one curriculum day with per-lesson state.
type CourseContentDay struct {
	ID       int                   `json:"id"`
	Title    string                `json:"title"`
	Duration string                `json:"duration"`
	Lectures int                   `json:"lectures"`
	Lessons  []CourseContentLesson `json:"lessons"`
}

// CourseContentLesson carries completion and lock flags for a lesson.
type CourseContentLesson struct {
	LessonID    string     `json:"lesson_id"`
	Title       string     `json:"title"`
	Duration    string     `json:"duration"`
	Type        LessonType `json:"type"`
	Order       int        `json:"order"`
	IsCompleted bool       `json:"is_completed"`
	IsLocked    bool       `json:"is_locked"`
}
