package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewNotFoundError("Post", 7), fiber.StatusNotFound},
		{NewValidationError("bad"), fiber.StatusBadRequest},
		{NewUnauthorizedError("who"), fiber.StatusUnauthorized},
		{NewForbiddenError("no"), fiber.StatusForbidden},
		{NewSelfLikeError(TargetPost), fiber.StatusForbidden},
		{NewConflictError("taken"), fiber.StatusConflict},
		{&AppError{Code: CodeRateLimited}, fiber.StatusTooManyRequests},
		{&AppError{Code: CodeUnavailable}, fiber.StatusServiceUnavailable},
		{NewInternalError(errors.New("db down")), fiber.StatusInternalServerError},
		{errors.New("plain"), fiber.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NewNotFoundError("Comment", 3)), fiber.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("toggle: %w", NewSelfLikeError(TargetComment))
	assert.True(t, IsCode(err, CodeSelfLike))
	assert.False(t, IsCode(err, CodeForbidden))
	assert.Equal(t, "toggle: cannot like your own comment", err.Error())
}

func TestNewLike_SetsExactlyOneTarget(t *testing.T) {
	post, err := NewLike(1, TargetPost, 5)
	require.NoError(t, err)
	require.NotNil(t, post.PostID)
	assert.Equal(t, uint(5), *post.PostID)
	assert.Nil(t, post.CommentID)

	comment, err := NewLike(1, TargetComment, 6)
	require.NoError(t, err)
	assert.Nil(t, comment.PostID)
	assert.Equal(t, uint(6), *comment.CommentID)

	_, err = NewLike(1, TargetKind("story"), 1)
	assert.Error(t, err)
	assert.False(t, TargetKind("story").Valid())
}
