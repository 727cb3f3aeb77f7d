package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
)

const MaxCommentLength = 1000

// CommentService handles a user's comments on movies.
type CommentService struct {
	comments repository.CommentRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

func NewCommentService(comments repository.CommentRepository, users repository.UserRepository, logger *slog.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		users:    users,
		logger:   logger,
	}
}

// Add stores a comment by actor on movieID.
func (s *CommentService) Add(ctx context.Context, actor, movieID, text string) (*model.Comment, error) {
	movieID = strings.TrimSpace(movieID)
	text = strings.TrimSpace(text)

	if movieID == "" {
		return nil, apperror.ValidationFailed("movieID", "movie id is required")
	}
	if text == "" {
		return nil, apperror.ValidationFailed("text", "comment text is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	author, found, err := s.users.FindByID(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("user", actor)
	}

	comment, err := s.comments.Create(ctx, author, movieID, text)
	if err != nil {
		return nil, err
	}

	s.logger.Info("comment added",
		slog.String("commentID", comment.ID),
		slog.String("author", actor),
		slog.String("movieID", movieID),
	)
	return comment, nil
}

// ForUser returns every comment the user wrote, oldest first.
func (s *CommentService) ForUser(ctx context.Context, username string) ([]model.Comment, error) {
	user, found, err := s.users.FindByID(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("user", username)
	}
	return s.comments.GetByRefs(ctx, user.CommentedOn)
}
