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

const (
	MaxListNameLength        = 100
	MaxListDescriptionLength = 500
)

// ListService enforces who may see and change a list, validates input, and
// delegates every write to the list repository.
//
// ACCESS RULES:
//   - view:                public lists to anyone signed in; private lists to
//     the owner and guests
//   - add / remove movies: owner, or a guest with readwrite permission
//   - edit / delete / invite: owner only
//
// actor is always the username from the session, never from the URL.
type ListService struct {
	lists  repository.ListRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewListService(lists repository.ListRepository, users repository.UserRepository, logger *slog.Logger) *ListService {
	return &ListService{
		lists:  lists,
		users:  users,
		logger: logger,
	}
}

// CreateListInput is the create-list form.
type CreateListInput struct {
	Name        string
	Description string
	Protection  model.Protection
}

// PublicLists returns one page of public lists.
func (s *ListService) PublicLists(ctx context.Context, page int) (*repository.Page, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	return s.lists.GetPublic(ctx, page)
}

// UserLists returns one page of the lists owned by or shared with owner.
// Only the user themself may see it.
func (s *ListService) UserLists(ctx context.Context, actor, owner string, page int) (*repository.Page, error) {
	if actor != owner {
		return nil, apperror.Forbidden("You can only view your own lists")
	}
	if err := validatePage(page); err != nil {
		return nil, err
	}
	return s.lists.GetByOwnerPaginated(ctx, owner, page)
}

// Create validates the form and creates an empty list owned by actor.
func (s *ListService) Create(ctx context.Context, actor string, in CreateListInput) (*model.UserList, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if err := validateName(in.Name, true); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if !in.Protection.Valid() {
		return nil, apperror.ValidationFailed("listProtection", "protection must be public or private")
	}

	owner, found, err := s.users.FindByID(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("user", actor)
	}

	list, err := s.lists.Create(ctx, in.Name, in.Protection, in.Description, owner)
	if err != nil {
		s.logger.Error("failed to create list",
			slog.String("owner", actor),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("list created",
		slog.String("listID", list.ID),
		slog.String("owner", actor),
		slog.String("protection", string(list.Protection)),
	)
	return list, nil
}

// View returns the list if actor may see it.
func (s *ListService) View(ctx context.Context, actor, listID string) (*model.UserList, error) {
	list, err := s.getList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !list.CanView(actor) {
		return nil, apperror.Forbidden("You do not have access to this list")
	}
	return list, nil
}

// AddMovie appends a movie from the catalog to the list.
func (s *ListService) AddMovie(ctx context.Context, actor, listID, movieID string) error {
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return apperror.ValidationFailed("movieID", "movie id is required")
	}
	if _, err := s.editableList(ctx, actor, listID); err != nil {
		return err
	}

	if err := s.lists.AddMovie(ctx, listID, movieID); err != nil {
		return err
	}
	s.logger.Info("movie added", slog.String("listID", listID), slog.String("movieID", movieID), slog.String("by", actor))
	return nil
}

// RemoveMovie removes the first entry for movieID. A movie that is not on
// the list is not an error.
func (s *ListService) RemoveMovie(ctx context.Context, actor, listID, movieID string) error {
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return apperror.ValidationFailed("movieID", "movie id is required")
	}
	if _, err := s.editableList(ctx, actor, listID); err != nil {
		return err
	}

	if err := s.lists.RemoveMovie(ctx, listID, movieID); err != nil {
		return err
	}
	s.logger.Info("movie removed", slog.String("listID", listID), slog.String("movieID", movieID), slog.String("by", actor))
	return nil
}

// Update applies a partial edit. Empty fields are left unchanged; at least
// one field must be set.
func (s *ListService) Update(ctx context.Context, actor string, opts repository.UpdateOptions) error {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.Description = strings.TrimSpace(opts.Description)

	if opts.Name == "" && opts.Description == "" && opts.Protection == "" {
		return apperror.ValidationFailed("name", "nothing to update")
	}
	if err := validateName(opts.Name, false); err != nil {
		return err
	}
	if err := validateDescription(opts.Description); err != nil {
		return err
	}
	if opts.Protection != "" && !opts.Protection.Valid() {
		return apperror.ValidationFailed("listProtection", "protection must be public or private")
	}

	if _, err := s.ownedList(ctx, actor, opts.ListID); err != nil {
		return err
	}

	if err := s.lists.Update(ctx, opts); err != nil {
		return err
	}
	s.logger.Info("list updated", slog.String("listID", opts.ListID), slog.String("by", actor))
	return nil
}

// Delete removes the list and every reference to it.
func (s *ListService) Delete(ctx context.Context, actor, listID string) error {
	if strings.TrimSpace(listID) == "" {
		return apperror.ValidationFailed("listID", "list id is required")
	}
	if _, err := s.ownedList(ctx, actor, listID); err != nil {
		return err
	}

	owner, found, err := s.users.FindByID(ctx, actor)
	if err != nil {
		return err
	}
	if !found {
		return apperror.NotFound("user", actor)
	}

	if err := s.lists.Delete(ctx, listID, owner); err != nil {
		s.logger.Error("failed to delete list",
			slog.String("listID", listID),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Info("list deleted", slog.String("listID", listID), slog.String("by", actor))
	return nil
}

// Invite grants guest access to a private list. An unknown guest is
// apperror.ErrNotFound with the message "User not Found!".
func (s *ListService) Invite(ctx context.Context, actor, listID, guest string, permission model.Permission) error {
	guest = strings.TrimSpace(guest)
	if guest == "" {
		return apperror.ValidationFailed("guestUsername", "guest username is required")
	}
	if !permission.Valid() {
		return apperror.ValidationFailed("permission", "permission must be readonly or readwrite")
	}
	if _, err := s.ownedList(ctx, actor, listID); err != nil {
		return err
	}

	found, err := s.lists.InviteGuest(ctx, guest, permission, listID)
	if err != nil {
		return err
	}
	if !found {
		notFound := apperror.NotFound("user", guest)
		notFound.Message = "User not Found!"
		return notFound
	}

	s.logger.Info("guest invited",
		slog.String("listID", listID),
		slog.String("guest", guest),
		slog.String("permission", string(permission)),
	)
	return nil
}

func (s *ListService) getList(ctx context.Context, listID string) (*model.UserList, error) {
	if strings.TrimSpace(listID) == "" {
		return nil, apperror.ValidationFailed("listID", "list id is required")
	}
	return s.lists.GetByID(ctx, listID)
}

// editableList returns the list if actor may change its items. Someone who
// cannot even see the list gets the same error as a read-only guest.
func (s *ListService) editableList(ctx context.Context, actor, listID string) (*model.UserList, error) {
	list, err := s.getList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !list.CanEditItems(actor) {
		return nil, apperror.Forbidden("You do not have permission to edit this list")
	}
	return list, nil
}

func (s *ListService) ownedList(ctx context.Context, actor, listID string) (*model.UserList, error) {
	list, err := s.getList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list.Owner != actor {
		return nil, apperror.Forbidden("Only the owner can change this list")
	}
	return list, nil
}

func validatePage(page int) error {
	if page < 1 {
		return apperror.ValidationFailed("page", "page must be 1 or greater")
	}
	if page > repository.MaxPage {
		return apperror.ValidationFailed("page", "page is out of range")
	}
	return nil
}

func validateName(name string, required bool) error {
	if required && name == "" {
		return apperror.ValidationFailed("name", "list name is required")
	}
	if utf8.RuneCountInString(name) > MaxListNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("list name must be %d characters or less", MaxListNameLength))
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxListDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxListDescriptionLength))
	}
	return nil
}
