// Package repository declares the persistence contracts the services depend on.
// The document package implements them on top of a docstore.Collection.
package repository

import (
	"context"
	"math"

	"github.com/sakif/movielists/internal/model"
)

// PageSize is the fixed number of lists shown per page.
const PageSize = 4

// MaxPage is the largest page number whose offset fits in an int.
const MaxPage = math.MaxInt / PageSize

type ListOptions struct {
	Limit  int
	Offset int
}

// BuildRange converts a 1-based page number into an offset/limit pair:
// offset = (page-1)*4, limit = 4. Pages below 1 are treated as page 1 and
// pages above MaxPage as MaxPage, so Offset is never negative.
func BuildRange(page int) ListOptions {
	page = min(max(page, 1), MaxPage)
	return ListOptions{
		Offset: (page - 1) * PageSize,
		Limit:  PageSize,
	}
}

// Page is one page of lists plus the total the pagination is computed from.
type Page struct {
	Lists  []model.UserList
	Total  int
	Number int
}

// TotalPages returns ceil(Total / PageSize).
func (p *Page) TotalPages() int {
	return (p.Total + PageSize - 1) / PageSize
}

// UpdateOptions is a partial update of a list. Empty fields are left untouched.
type UpdateOptions struct {
	ListID      string
	Name        string
	Description string
	Protection  model.Protection
}

type UserRepository interface {
	GetByCredentials(ctx context.Context, username, password string) (*model.User, error)
	GetMany(ctx context.Context, usernames []string) ([]model.User, error)
	Create(ctx context.Context, username, passwordHash, fullName, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	UpdateMany(ctx context.Context, users []model.User) error
	Delete(ctx context.Context, user *model.User) error
	// FindByID returns found=false, err=nil when the user does not exist.
	FindByID(ctx context.Context, username string) (user *model.User, found bool, err error)
}

type ListRepository interface {
	GetByID(ctx context.Context, listID string) (*model.UserList, error)
	GetPublic(ctx context.Context, page int) (*Page, error)
	GetManyByIDs(ctx context.Context, listIDs []string) ([]model.UserList, error)
	GetByOwnerPaginated(ctx context.Context, username string, page int) (*Page, error)
	Create(ctx context.Context, name string, protection model.Protection, description string, owner *model.User) (*model.UserList, error)
	Delete(ctx context.Context, listID string, owner *model.User) error
	Update(ctx context.Context, opts UpdateOptions) error
	// InviteGuest returns found=false, err=nil when the invitee does not exist.
	InviteGuest(ctx context.Context, username string, permission model.Permission, listID string) (found bool, err error)
	// RemoveGuest drops guest from the list and the list id from guest.Lists.
	RemoveGuest(ctx context.Context, listID string, guest *model.User) error
	AddMovie(ctx context.Context, listID, movieID string) error
	RemoveMovie(ctx context.Context, listID, movieID string) error
}

type CommentRepository interface {
	Create(ctx context.Context, author *model.User, movieID, text string) (*model.Comment, error)
	GetByRefs(ctx context.Context, refs []model.CommentRef) ([]model.Comment, error)
}

// MovieCatalog resolves movie metadata from the external catalog.
type MovieCatalog interface {
	GetMovie(ctx context.Context, movieID string) (*model.Movie, error)
}
