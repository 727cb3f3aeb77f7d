package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movielists/internal/apperror"
)

func TestComments_AddAndList(t *testing.T) {
	env := newTestEnv(t)
	signup(t, env, "alice")
	ctx := context.Background()

	_, err := env.comments.Add(ctx, "alice", "603", "  whoa  ")
	require.NoError(t, err)
	_, err = env.comments.Add(ctx, "alice", "550", "first rule")
	require.NoError(t, err)

	comments, err := env.comments.ForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "whoa", comments[0].Text)
	assert.Equal(t, "550", comments[1].MovieID)
}

func TestComments_Validation(t *testing.T) {
	env := newTestEnv(t)
	signup(t, env, "alice")

	tests := []struct {
		name    string
		movieID string
		text    string
	}{
		{name: "missing movie", movieID: "", text: "hi"},
		{name: "empty text", movieID: "603", text: "   "},
		{name: "too long", movieID: "603", text: strings.Repeat("x", MaxCommentLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.comments.Add(context.Background(), "alice", tt.movieID, tt.text)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}

func TestComments_LengthCountsCharacters(t *testing.T) {
	env := newTestEnv(t)
	signup(t, env, "alice")

	_, err := env.comments.Add(context.Background(), "alice", "603", strings.Repeat("ß", MaxCommentLength))
	assert.NoError(t, err)
}

func TestComments_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.comments.ForUser(context.Background(), "ghost")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
