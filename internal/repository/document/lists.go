package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/movielists/internal/apperror"
	"github.com/sakif/movielists/internal/docstore"
	"github.com/sakif/movielists/internal/model"
	"github.com/sakif/movielists/internal/repository"
)

// compile-time check that *ListStore implements repository.ListRepository
var _ repository.ListRepository = (*ListStore)(nil)

// ListStore keeps list documents in the "lists" collection and maintains the
// list ids stored on owner and guest user documents.
type ListStore struct {
	docs   docstore.Collection
	users  repository.UserRepository
	movies repository.MovieCatalog
	logger *slog.Logger
}

func NewListStore(
	docs docstore.Collection,
	users repository.UserRepository,
	movies repository.MovieCatalog,
	logger *slog.Logger,
) *ListStore {
	return &ListStore{
		docs:   docs,
		users:  users,
		movies: movies,
		logger: logger,
	}
}

// GetByID returns the list or apperror.ErrNotFound.
func (s *ListStore) GetByID(ctx context.Context, listID string) (*model.UserList, error) {
	s.logger.Debug("fetching list", slog.String("listID", listID))

	var d listDoc
	if err := s.docs.Get(ctx, listID, &d); err != nil {
		return nil, fmt.Errorf("repository: fetching list %s: %w", listID, err)
	}
	list := mapToUserList(d)
	return &list, nil
}

// GetPublic returns one page of public lists. It reads every list, keeps
// the public ones and slices the result; Total is the public count before
// slicing.
func (s *ListStore) GetPublic(ctx context.Context, page int) (*repository.Page, error) {
	s.logger.Debug("fetching public lists", slog.Int("page", page))

	rows, err := s.docs.AllDocs(ctx, docstore.AllDocsOptions{})
	if err != nil {
		return nil, fmt.Errorf("repository: fetching all lists: %w", err)
	}

	public := []model.UserList{}
	for _, row := range rows {
		if !row.Found() || isDesignDoc(row.ID) {
			continue
		}
		var d listDoc
		if err := json.Unmarshal(row.Doc, &d); err != nil {
			return nil, fmt.Errorf("repository: decoding list %s: %w", row.ID, err)
		}
		if model.Protection(d.ListProtection) != model.ProtectionPublic {
			continue
		}
		public = append(public, mapToUserList(d))
	}

	rng := repository.BuildRange(page)
	start := min(rng.Offset, len(public))
	end := min(rng.Offset+rng.Limit, len(public))

	return &repository.Page{
		Lists:  public[start:end],
		Total:  len(public),
		Number: max(page, 1),
	}, nil
}

// GetManyByIDs batch-fetches lists in the store's row order, skipping ids
// whose document no longer exists.
func (s *ListStore) GetManyByIDs(ctx context.Context, listIDs []string) ([]model.UserList, error) {
	s.logger.Debug("fetching lists by id", slog.Any("listIDs", listIDs))
	return s.fetchMany(ctx, docstore.AllDocsOptions{Keys: listIDs})
}

// GetByOwnerPaginated returns one page of the lists referenced by the user.
// The offset/limit is passed to the store query itself. Total is the number
// of list ids on the user document.
func (s *ListStore) GetByOwnerPaginated(ctx context.Context, username string, page int) (*repository.Page, error) {
	s.logger.Debug("fetching lists of user", slog.String("username", username), slog.Int("page", page))

	user, found, err := s.users.FindByID(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("user", username)
	}

	rng := repository.BuildRange(page)
	lists, err := s.fetchMany(ctx, docstore.AllDocsOptions{
		Keys:  user.Lists,
		Limit: rng.Limit,
		Skip:  rng.Offset,
	})
	if err != nil {
		return nil, err
	}

	return &repository.Page{
		Lists:  lists,
		Total:  len(user.Lists),
		Number: max(page, 1),
	}, nil
}

// fetchMany runs a keyed AllDocs query and decodes the rows that exist.
// An empty key list returns no lists without a round trip.
func (s *ListStore) fetchMany(ctx context.Context, opts docstore.AllDocsOptions) ([]model.UserList, error) {
	if len(opts.Keys) == 0 {
		return []model.UserList{}, nil
	}

	rows, err := s.docs.AllDocs(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("repository: fetching lists: %w", err)
	}

	lists := make([]model.UserList, 0, len(rows))
	for _, row := range rows {
		if !row.Found() {
			s.logger.Debug("skipping missing list", slog.String("listID", row.Key))
			continue
		}
		var d listDoc
		if err := json.Unmarshal(row.Doc, &d); err != nil {
			return nil, fmt.Errorf("repository: decoding list %s: %w", row.Key, err)
		}
		lists = append(lists, mapToUserList(d))
	}
	return lists, nil
}

// Create writes a new empty list, then appends its id to owner.Lists and
// persists the owner. If the second write fails the list exists without a
// reference from its owner.
func (s *ListStore) Create(
	ctx context.Context,
	name string,
	protection model.Protection,
	description string,
	owner *model.User,
) (*model.UserList, error) {
	s.logger.Debug("creating list",
		slog.String("owner", owner.Username),
		slog.String("name", name),
	)

	list := &model.UserList{
		Name:        name,
		Description: description,
		Protection:  protection,
		Owner:       owner.Username,
		Items:       []model.Item{},
		Guests:      []model.Guest{},
	}

	id, rev, err := s.docs.Create(ctx, toListDoc(list))
	if err != nil {
		return nil, fmt.Errorf("repository: creating list: %w", err)
	}
	list.ID = id
	list.Rev = rev

	owner.AddList(id)
	if err := s.users.Update(ctx, owner); err != nil {
		return nil, fmt.Errorf("repository: linking list %s to %s: %w", id, owner.Username, err)
	}

	return list, nil
}

// Delete removes the list, drops its id from the owner and, if the list had
// guests, from every guest.
//
// Steps: read list → delete list → update owner → read guests → bulk update guests.
// The list document goes first: ids left dangling on users by a later
// failure are skipped by every batch read.
func (s *ListStore) Delete(ctx context.Context, listID string, owner *model.User) error {
	s.logger.Debug("deleting list",
		slog.String("listID", listID),
		slog.String("owner", owner.Username),
	)

	list, err := s.GetByID(ctx, listID)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, listID, list.Rev); err != nil {
		return fmt.Errorf("repository: deleting list %s: %w", listID, err)
	}

	owner.RemoveList(listID)
	if err := s.users.Update(ctx, owner); err != nil {
		return fmt.Errorf("repository: unlinking list %s from %s: %w", listID, owner.Username, err)
	}

	if len(list.Guests) == 0 {
		return nil
	}

	guests, err := s.users.GetMany(ctx, list.GuestUsernames())
	if err != nil {
		return err
	}
	for i := range guests {
		guests[i].RemoveList(listID)
	}
	if err := s.users.UpdateMany(ctx, guests); err != nil {
		return fmt.Errorf("repository: unlinking list %s from guests: %w", listID, err)
	}
	return nil
}

// Update applies a partial patch. Switching to public clears the guests on
// the list and removes the list id from each former guest. The list is
// written first, then the affected guests.
func (s *ListStore) Update(ctx context.Context, opts repository.UpdateOptions) error {
	s.logger.Debug("updating list", slog.String("listID", opts.ListID))

	list, err := s.GetByID(ctx, opts.ListID)
	if err != nil {
		return err
	}

	if opts.Name != "" {
		list.Name = opts.Name
	}
	if opts.Description != "" {
		list.Description = opts.Description
	}

	var formerGuests []model.User
	if opts.Protection != "" {
		if opts.Protection == model.ProtectionPublic && len(list.Guests) > 0 {
			formerGuests, err = s.users.GetMany(ctx, list.GuestUsernames())
			if err != nil {
				return err
			}
			for i := range formerGuests {
				formerGuests[i].RemoveList(list.ID)
			}
			list.Guests = []model.Guest{}
		}
		list.Protection = opts.Protection
	}

	if err := s.save(ctx, list); err != nil {
		return err
	}

	if err := s.users.UpdateMany(ctx, formerGuests); err != nil {
		return fmt.Errorf("repository: unlinking list %s from former guests: %w", list.ID, err)
	}
	return nil
}

// InviteGuest grants username access to the list. A repeated invite with the
// same permission changes nothing on the list; a different permission
// replaces the existing entry. found is false when the invitee does not
// exist.
func (s *ListStore) InviteGuest(ctx context.Context, username string, permission model.Permission, listID string) (bool, error) {
	s.logger.Debug("inviting guest",
		slog.String("listID", listID),
		slog.String("guest", username),
		slog.String("permission", string(permission)),
	)

	invitee, found, err := s.users.FindByID(ctx, username)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	list, err := s.GetByID(ctx, listID)
	if err != nil {
		return true, err
	}

	if list.Owner == username {
		return true, apperror.ValidationFailed("guestUsername", "the owner of a list cannot be invited to it")
	}
	if list.Protection == model.ProtectionPublic {
		return true, apperror.ValidationFailed("guestUsername", "public lists cannot have guests")
	}

	idx := -1
	for i, g := range list.Guests {
		if g.Username == username {
			idx = i
			break
		}
	}
	switch {
	case idx == -1:
		list.Guests = append(list.Guests, model.Guest{Username: username, Permission: permission})
	case list.Guests[idx].Permission != permission:
		list.Guests[idx].Permission = permission
	}

	if err := s.save(ctx, list); err != nil {
		return true, err
	}

	if invitee.AddList(listID) {
		if err := s.users.Update(ctx, invitee); err != nil {
			return true, fmt.Errorf("repository: linking list %s to guest %s: %w", listID, username, err)
		}
	}
	return true, nil
}

// RemoveGuest revokes guest's access to the list: the guest entry is removed
// from the list, then the list id from the guest's user document. A list that
// no longer exists only gets the user side cleaned up.
func (s *ListStore) RemoveGuest(ctx context.Context, listID string, guest *model.User) error {
	s.logger.Debug("removing guest",
		slog.String("listID", listID),
		slog.String("guest", guest.Username),
	)

	list, err := s.GetByID(ctx, listID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
	case err != nil:
		return err
	default:
		kept := make([]model.Guest, 0, len(list.Guests))
		for _, g := range list.Guests {
			if g.Username != guest.Username {
				kept = append(kept, g)
			}
		}
		if len(kept) != len(list.Guests) {
			list.Guests = kept
			if err := s.save(ctx, list); err != nil {
				return err
			}
		}
	}

	if guest.RemoveList(listID) {
		if err := s.users.Update(ctx, guest); err != nil {
			return fmt.Errorf("repository: unlinking list %s from guest %s: %w", listID, guest.Username, err)
		}
	}
	return nil
}

// AddMovie resolves the movie in the catalog and appends it to the list.
// The same movie may appear more than once.
func (s *ListStore) AddMovie(ctx context.Context, listID, movieID string) error {
	s.logger.Debug("adding movie to list", slog.String("listID", listID), slog.String("movieID", movieID))

	movie, err := s.movies.GetMovie(ctx, movieID)
	if err != nil {
		return fmt.Errorf("repository: resolving movie %s: %w", movieID, err)
	}

	list, err := s.GetByID(ctx, listID)
	if err != nil {
		return err
	}

	list.Items = append(list.Items, model.Item{
		MovieID:     movieID,
		MoviePoster: movie.PosterPath,
		MovieRating: movie.VoteAverage,
	})
	return s.save(ctx, list)
}

// RemoveMovie removes the first item with movieID. Removing a movie that is
// not on the list is a no-op and performs no write.
func (s *ListStore) RemoveMovie(ctx context.Context, listID, movieID string) error {
	s.logger.Debug("removing movie from list", slog.String("listID", listID), slog.String("movieID", movieID))

	list, err := s.GetByID(ctx, listID)
	if err != nil {
		return err
	}

	idx := -1
	for i, item := range list.Items {
		if item.MovieID == movieID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.logger.Debug("movie not on list, nothing to remove",
			slog.String("listID", listID),
			slog.String("movieID", movieID),
		)
		return nil
	}

	list.Items = append(list.Items[:idx], list.Items[idx+1:]...)
	return s.save(ctx, list)
}

// save writes the list at its current revision and records the new one.
func (s *ListStore) save(ctx context.Context, list *model.UserList) error {
	rev, err := s.docs.Put(ctx, list.ID, toListDoc(list))
	if err != nil {
		return fmt.Errorf("repository: saving list %s: %w", list.ID, err)
	}
	list.Rev = rev
	return nil
}
