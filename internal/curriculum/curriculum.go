// Package curriculum flattens authored curricula into ordered lesson descriptors and decides
// which lessons a learner may open.
package curriculum

import (
	"strconv"
	"strings"

	"github.com/noah-isme/coursedeep-api/internal/models"
)

// LessonID derives the identifier of a lesson from its day and title: the title has every
// character outside [A-Za-z0-9] replaced by '_', is lowercased and gets a "day<N>_" prefix.
//
// Identity depends on the title text only. Two lessons of the same day whose titles normalize
// to the same string share an id, and renaming a lesson changes its id. Existing enrollments
// store these ids, so changing the scheme needs a data migration.
func LessonID(dayID int, title string) string {
	var b strings.Builder
	b.Grow(len(title) + 8)
	b.WriteString("day")
	b.WriteString(strconv.Itoa(dayID))
	b.WriteByte('_')
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r > 0xFFFF:
			// stored ids count UTF-16 code units, so astral characters take two
			b.WriteString("__")
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Flatten walks days in order and lessons in order within each day, numbering lessons from 1.
// An empty curriculum yields an empty, non-nil slice.
func Flatten(days models.Curriculum) models.LessonDescriptors {
	total := 0
	for _, day := range days {
		total += len(day.Lessons)
	}

	lessons := make(models.LessonDescriptors, 0, total)
	for _, day := range days {
		for _, lesson := range day.Lessons {
			lessons = append(lessons, models.LessonDescriptor{
				LessonID: LessonID(day.ID, lesson.Title),
				DayID:    day.ID,
				DayTitle: day.Title,
				Title:    lesson.Title,
				Duration: lesson.Duration,
				Type:     lesson.Type,
				Order:    len(lessons) + 1,
			})
		}
	}
	return lessons
}

// FirstLessonID returns the id of the first lesson, or nil when there are none.
func FirstLessonID(lessons models.LessonDescriptors) *string {
	if len(lessons) == 0 {
		return nil
	}
	id := lessons[0].LessonID
	return &id
}
