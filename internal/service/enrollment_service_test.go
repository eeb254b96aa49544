package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursedeep-api/internal/models"
	"github.com/noah-isme/coursedeep-api/internal/progress"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	items     map[string]*models.Enrollment
	seq       int
	createErr error
	findErr   error
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{items: map[string]*models.Enrollment{}}
}

func (f *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var out []models.Enrollment
	for _, e := range f.items {
		if filter.CourseID != "" && e.CourseID != filter.CourseID {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (f *fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	e, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *e
	return &clone, nil
}

func (f *fakeEnrollmentRepo) FindByUserAndCourse(ctx context.Context, email, courseID string) (*models.Enrollment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, e := range f.items {
		if e.UserEmail == email && e.CourseID == courseID {
			clone := *e
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) ListByUserEmail(ctx context.Context, email string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range f.items {
		if e.UserEmail == email {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEnrollmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range f.items {
		if e.CourseID == courseID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, e *models.Enrollment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	e.ID = "enr-" + string(rune('0'+f.seq))
	e.EnrolledAt = time.Now().UTC()
	e.LastAccessedAt = e.EnrolledAt
	clone := *e
	f.items[e.ID] = &clone
	return nil
}

func (f *fakeEnrollmentRepo) Mutate(ctx context.Context, id string, fn func(*models.Enrollment) (models.EnrollmentChanges, error)) (*models.Enrollment, error) {
	e, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	current := *e
	changes, err := fn(&current)
	if err != nil {
		return nil, err
	}
	current.Apply(changes)
	stored := current
	f.items[id] = &stored
	return &current, nil
}

type fakeCourses struct {
	courses      map[string]*models.Course
	increments   map[string]int
	incrementErr error
}

func newFakeCourses(courses ...*models.Course) *fakeCourses {
	f := &fakeCourses{courses: map[string]*models.Course{}, increments: map[string]int{}}
	for _, c := range courses {
		f.courses[c.ID] = c
	}
	return f
}

func (f *fakeCourses) Get(ctx context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return c, nil
}

func (f *fakeCourses) GetFresh(ctx context.Context, id string) (*models.Course, error) {
	return f.Get(ctx, id)
}

func (f *fakeCourses) FindMany(ctx context.Context, ids []string) (map[string]*models.Course, error) {
	out := map[string]*models.Course{}
	for _, id := range ids {
		if c, ok := f.courses[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeCourses) IncrementEnrollmentCount(ctx context.Context, id string) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.increments[id]++
	return nil
}

func twoByTwoCourse(id string, free bool) *models.Course {
	return &models.Course{
		ID:      id,
		Name:    "Go Deep",
		Image:   "go.png",
		Price:   49,
		IsFree:  free,
		Teacher: models.Teacher{Name: "Rob"},
		Curriculum: models.Curriculum{
			{ID: 1, Title: "Basics", Lessons: []models.Lesson{{Title: "Hello"}, {Title: "Types"}}},
			{ID: 2, Title: "Concurrency", Lessons: []models.Lesson{{Title: "Goroutines"}, {Title: "Channels"}}},
		},
	}
}

func learner() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-1", Email: "ada@example.com", FullName: "Ada", Role: models.RoleUser}
}

func admin() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "root@example.com", Role: models.RoleAdmin}
}

func enrollReq(courseID string) EnrollRequest {
	return EnrollRequest{UserID: "u-1", UserEmail: "ada@example.com", UserName: "Ada", CourseID: courseID}
}

func newEnrollmentFixture(courses ...*models.Course) (*EnrollmentService, *fakeEnrollmentRepo, *fakeCourses, *MetricsService) {
	repo := newFakeEnrollmentRepo()
	catalog := newFakeCourses(courses...)
	metrics := NewMetricsService()
	return NewEnrollmentService(repo, catalog, progress.NewEngine(nil), metrics, nil, nil), repo, catalog, metrics
}

func counterTotal(t *testing.T, metrics *MetricsService, name string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int        { return &i }

func TestEnrollFreeCourse(t *testing.T) {
	svc, repo, catalog, metrics := newEnrollmentFixture(twoByTwoCourse("c-1", true))

	detail, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Progress)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Equal(t, 1, detail.CurrentDay)
	require.NotNil(t, detail.CurrentLesson)
	assert.Equal(t, "day1_hello", *detail.CurrentLesson)
	require.Len(t, detail.AllLessons, 4)
	assert.Equal(t, 4, detail.AllLessons[3].Order)
	assert.Equal(t, "Rob", detail.InstructorName)
	require.NotNil(t, detail.CourseDetails)
	assert.Nil(t, detail.PaymentIntentID)

	assert.Len(t, repo.items, 1)
	assert.Equal(t, 1, catalog.increments["c-1"])
	assert.Equal(t, 1.0, counterTotal(t, metrics, "enrollments_created_total"))
}

func TestEnrollTwiceConflicts(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", false))
	req := enrollReq("c-1")
	req.PaymentIntentID = strPtr("pi_1")
	req.PaymentStatus = strPtr("succeeded")

	_, err := svc.Enroll(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), enrollReq("c-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollEmailCaseDoesNotAllowSecondEnrollment(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	ctx := context.Background()

	req := enrollReq("c-1")
	req.UserEmail = "  Ada@Example.COM "
	detail, err := svc.Enroll(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", detail.UserEmail)

	_, err = svc.Enroll(ctx, enrollReq("c-1"))
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.items, 1)

	mixed := &models.JWTClaims{UserID: "u-1", Email: "ADA@example.com", Role: models.RoleUser}
	check, err := svc.CheckDuplicate(ctx, "c-1", "ADA@example.com", mixed)
	require.NoError(t, err)
	assert.True(t, check.IsEnrolled)

	listed, err := svc.ListByUserEmail(ctx, "ADA@EXAMPLE.com", mixed)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestEnrollPaidCourseRequiresSucceededPayment(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", false))

	cases := []EnrollRequest{enrollReq("c-1"), enrollReq("c-1")}
	cases[1].PaymentIntentID = strPtr("pi_1")
	cases[1].PaymentStatus = strPtr("requires_payment_method")
	for _, req := range cases {
		_, err := svc.Enroll(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPaymentRequired.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.items)

	paid := enrollReq("c-1")
	paid.PaymentIntentID = strPtr("pi_1")
	paid.PaymentStatus = strPtr("succeeded")
	paid.PaymentAmount = new(float64)
	*paid.PaymentAmount = 49
	paid.PaymentCurrency = strPtr("usd")
	detail, err := svc.Enroll(context.Background(), paid)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", *detail.PaymentIntentID)
	assert.Equal(t, "succeeded", *detail.PaymentStatus)
}

func TestEnrollErrors(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c-1"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Enroll(context.Background(), enrollReq("missing"))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo.findErr = errors.New("db down")
	_, err = svc.Enroll(context.Background(), enrollReq("missing"))
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestEnrollEmptyCurriculum(t *testing.T) {
	course := twoByTwoCourse("c-1", true)
	course.Curriculum = nil
	svc, _, _, _ := newEnrollmentFixture(course)

	detail, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)
	assert.Nil(t, detail.CurrentLesson)
	assert.Empty(t, detail.AllLessons)

	_, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: "day1_hello"}, learner())
	assert.ErrorIs(t, err, appErrors.ErrEmptyCurriculum)
}

func TestEnrollSurvivesCounterFailure(t *testing.T) {
	svc, repo, catalog, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	catalog.incrementErr = errors.New("counter unavailable")

	_, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)
	assert.Len(t, repo.items, 1)
}

func TestEnrollPropagatesStoreConflict(t *testing.T) {
	svc, repo, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	repo.createErr = appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")

	_, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCompleteAllLessons(t *testing.T) {
	svc, _, _, metrics := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	detail, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)

	var updated *models.Enrollment
	for _, id := range []string{"day1_hello", "day1_types"} {
		updated, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: id}, learner())
		require.NoError(t, err)
	}
	assert.Equal(t, 50, updated.Progress)
	assert.Equal(t, models.EnrollmentStatusActive, updated.Status)

	for _, id := range []string{"day2_channels", "day2_goroutines", "day2_channels"} {
		updated, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: id, CurrentDay: intPtr(2)}, learner())
		require.NoError(t, err)
	}
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
	assert.Len(t, updated.CompletedLessons, 4)
	assert.Equal(t, 2, updated.CurrentDay)

	assert.Equal(t, 4.0, counterTotal(t, metrics, "lessons_completed_total"))
	assert.Equal(t, 1.0, counterTotal(t, metrics, "courses_completed_total"))
}

func TestCompleteLessonValidationAndOwnership(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	detail, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)

	_, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{}, learner())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: "day1_nope"}, learner())
	assert.Equal(t, appErrors.ErrUnknownLesson.Code, appErrors.FromError(err).Code)

	_, err = svc.CompleteLesson(context.Background(), "missing", CompleteLessonRequest{LessonID: "day1_hello"}, learner())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	stranger := &models.JWTClaims{UserID: "u-2", Email: "eve@example.com", Role: models.RoleUser}
	_, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: "day1_hello"}, stranger)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: "day1_hello"}, admin())
	assert.NoError(t, err)
}

func TestUpdateProgress(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	detail, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)

	updated, err := svc.UpdateProgress(context.Background(), detail.ID, ProgressUpdateRequest{Progress: intPtr(-5)}, learner())
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Progress)

	updated, err = svc.UpdateProgress(context.Background(), detail.ID, ProgressUpdateRequest{LessonID: strPtr("day2_goroutines"), CurrentDay: intPtr(2)}, learner())
	require.NoError(t, err)
	assert.Equal(t, "day2_goroutines", *updated.CurrentLesson)
	assert.Equal(t, 2, updated.CurrentDay)
	assert.Empty(t, updated.CompletedLessons)

	updated, err = svc.UpdateProgress(context.Background(), detail.ID, ProgressUpdateRequest{Progress: intPtr(150)}, learner())
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
	assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)

	_, err = svc.UpdateProgress(context.Background(), detail.ID, ProgressUpdateRequest{CurrentDay: intPtr(0)}, learner())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseContentUsesSnapshotAndDayPointer(t *testing.T) {
	course := twoByTwoCourse("c-1", true)
	svc, _, catalog, _ := newEnrollmentFixture(course)
	detail, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)
	_, err = svc.CompleteLesson(context.Background(), detail.ID, CompleteLessonRequest{LessonID: "day1_types"}, learner())
	require.NoError(t, err)

	edited := *course
	edited.Name = "Go Deeper"
	edited.Curriculum = models.Curriculum{{ID: 1, Title: "Rewritten", Lessons: []models.Lesson{{Title: "Brand new"}}}}
	catalog.courses["c-1"] = &edited

	content, err := svc.CourseContent(context.Background(), detail.ID, learner())
	require.NoError(t, err)
	assert.Equal(t, "Go Deeper", content.CourseTitle)
	require.Len(t, content.Curriculum, 2)

	day1 := content.Curriculum[0]
	assert.Equal(t, "day1_hello", day1.Lessons[0].LessonID)
	assert.False(t, day1.Lessons[0].IsCompleted)
	assert.True(t, day1.Lessons[1].IsCompleted)
	assert.False(t, day1.Lessons[0].IsLocked)
	assert.Equal(t, 2, day1.Lessons[1].Order)

	day2 := content.Curriculum[1]
	assert.True(t, day2.Lessons[0].IsLocked)
	assert.True(t, day2.Lessons[1].IsLocked)
	assert.Equal(t, []string{"day1_types"}, content.CompletedLessons)

	delete(catalog.courses, "c-1")
	_, err = svc.CourseContent(context.Background(), detail.ID, learner())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetAndListEnrichWithLiveCourse(t *testing.T) {
	svc, _, catalog, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true), twoByTwoCourse("c-2", true))
	first, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), enrollReq("c-2"))
	require.NoError(t, err)

	delete(catalog.courses, "c-2")

	got, err := svc.Get(context.Background(), first.ID, learner())
	require.NoError(t, err)
	require.NotNil(t, got.CourseDetails)

	list, err := svc.ListByUserEmail(context.Background(), "ada@example.com", learner())
	require.NoError(t, err)
	require.Len(t, list, 2)
	withCourse := 0
	for _, d := range list {
		if d.CourseDetails != nil {
			withCourse++
		}
	}
	assert.Equal(t, 1, withCourse)

	_, err = svc.ListByUserEmail(context.Background(), "eve@example.com", learner())
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), "missing", learner())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCheckDuplicate(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))

	res, err := svc.CheckDuplicate(context.Background(), "c-1", "ada@example.com", learner())
	require.NoError(t, err)
	assert.False(t, res.IsEnrolled)
	assert.Nil(t, res.Enrollment)

	_, err = svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)

	res, err = svc.CheckDuplicate(context.Background(), "c-1", "ada@example.com", learner())
	require.NoError(t, err)
	assert.True(t, res.IsEnrolled)
	require.NotNil(t, res.Enrollment)

	_, err = svc.CheckDuplicate(context.Background(), "c-1", "", learner())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListPagination(t *testing.T) {
	svc, _, _, _ := newEnrollmentFixture(twoByTwoCourse("c-1", true))
	_, err := svc.Enroll(context.Background(), enrollReq("c-1"))
	require.NoError(t, err)

	items, pagination, err := svc.List(context.Background(), models.EnrollmentFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
