package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LessonType names the kind of content a lesson plays.
type LessonType string

// Known lesson types. Authors may use others; they are carried through untouched.
const (
	LessonTypeVideo LessonType = "video"
	LessonTypeText  LessonType = "text"
	LessonTypeQuiz  LessonType = "quiz"
)

// Lesson is one entry of a curriculum day. It has no identity of its own.
type Lesson struct {
	Title    string     `json:"title"`
	Duration string     `json:"duration"`
	Type     LessonType `json:"type"`
}

// CurriculumDay groups ordered lessons under a day number.
type CurriculumDay struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Duration string   `json:"duration"`
	Lectures int      `json:"lectures"`
	Lessons  []Lesson `json:"lessons"`
}

// Curriculum is the ordered list of days authored on a course, stored as JSONB.
type Curriculum []CurriculumDay

// Value implements driver.Valuer.
func (c Curriculum) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *Curriculum) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Teacher is the instructor block embedded on a course.
type Teacher struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Image       string `json:"image,omitempty"`
	Designation string `json:"designation,omitempty"`
}

// Value implements driver.Valuer.
func (t Teacher) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *Teacher) Scan(src interface{}) error {
	return scanJSON(src, t)
}

// Course is the live catalogue entry an enrollment snapshots from.
type Course struct {
	ID               string     `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	ShortDescription string     `db:"short_description" json:"short_description"`
	Image            string     `db:"image" json:"image"`
	Price            float64    `db:"price" json:"price"`
	IsFree           bool       `db:"is_free" json:"is_free"`
	Teacher          Teacher    `db:"teacher" json:"teacher"`
	Curriculum       Curriculum `db:"curriculum" json:"curriculum"`
	StudentsEnrolled int        `db:"students_enrolled" json:"students_enrolled"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func scanJSON(src interface{}, dest interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
