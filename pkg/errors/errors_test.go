package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("enroll: %w", Clone(ErrConflict, "already enrolled in this course"))

	appErr := FromError(wrapped)
	assert.Equal(t, ErrConflict.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "already enrolled in this course", appErr.Message)
}

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	cause := errors.New("connection reset")

	appErr := FromError(cause)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, cause)
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrNotFound, "enrollment not found")
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Equal(t, "enrollment not found", clone.Error())
	assert.Nil(t, FromError(nil))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("complete lesson: %w", Clone(ErrUnknownLesson, "lesson day9_x is not part of this enrollment"))

	assert.ErrorIs(t, err, ErrUnknownLesson)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, http.StatusUnprocessableEntity, FromError(err).Status)
}
