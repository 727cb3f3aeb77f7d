// Package document implements the repository interfaces on top of a
// CouchDB-style document store.
//
// The store has no foreign keys and no multi-document transactions, so this
// package is the only place that writes user and list documents. Every
// structural change keeps both sides of the user ↔ list reference in step:
//
//	list.owner / list.guests[*].username  ⇄  user.lists[*]
//
// Operations are strictly sequential store round trips. When a step fails,
// the error is returned immediately and the earlier writes stay in place.
// Batch reads skip ids whose document is gone, so a dangling reference left
// behind by a failed cascade does not break later reads.
package document

import (
	"strings"
	"time"

	"github.com/sakif/movielists/internal/model"
)

// userDoc is the stored shape of a user in the "users" collection.
// The username is also the document id.
type userDoc struct {
	ID          string             `json:"_id,omitempty"`
	Rev         string             `json:"_rev,omitempty"`
	Username    string             `json:"username"`
	Password    string             `json:"password"`
	FullName    string             `json:"fullName"`
	Email       string             `json:"email"`
	Lists       []string           `json:"lists"`
	CommentedOn []model.CommentRef `json:"commentedOn"`
	SessionKey  string             `json:"sessionKey,omitempty"`
}

// listDoc is the stored shape of a list in the "lists" collection.
type listDoc struct {
	ID             string        `json:"_id,omitempty"`
	Rev            string        `json:"_rev,omitempty"`
	ListName       string        `json:"listName"`
	ListDesc       string        `json:"listDesc"`
	ListProtection string        `json:"listProtection"`
	Owner          string        `json:"owner"`
	Items          []model.Item  `json:"items"`
	Guests         []model.Guest `json:"guests"`
}

// commentDoc is the stored shape of a comment in the "comments" collection.
type commentDoc struct {
	ID        string    `json:"_id,omitempty"`
	Rev       string    `json:"_rev,omitempty"`
	MovieID   string    `json:"movieId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapToUser(d userDoc) model.User {
	username := d.Username
	if username == "" {
		username = d.ID
	}
	return model.User{
		Username:     username,
		PasswordHash: d.Password,
		FullName:     d.FullName,
		Email:        d.Email,
		Lists:        nonNil(d.Lists),
		CommentedOn:  nonNil(d.CommentedOn),
		SessionKey:   d.SessionKey,
		Rev:          d.Rev,
	}
}

func toUserDoc(u *model.User) userDoc {
	return userDoc{
		ID:          u.Username,
		Rev:         u.Rev,
		Username:    u.Username,
		Password:    u.PasswordHash,
		FullName:    u.FullName,
		Email:       u.Email,
		Lists:       nonNil(u.Lists),
		CommentedOn: nonNil(u.CommentedOn),
		SessionKey:  u.SessionKey,
	}
}

func mapToComment(d commentDoc) model.Comment {
	return model.Comment{
		ID:        d.ID,
		MovieID:   d.MovieID,
		Author:    d.Author,
		Text:      d.Text,
		CreatedAt: d.CreatedAt,
		Rev:       d.Rev,
	}
}

func mapToUserList(d listDoc) model.UserList {
	return model.UserList{
		ID:          d.ID,
		Name:        d.ListName,
		Description: d.ListDesc,
		Protection:  model.Protection(d.ListProtection),
		Owner:       d.Owner,
		Items:       nonNil(d.Items),
		Guests:      nonNil(d.Guests),
		Rev:         d.Rev,
	}
}

func toListDoc(l *model.UserList) listDoc {
	return listDoc{
		ID:             l.ID,
		Rev:            l.Rev,
		ListName:       l.Name,
		ListDesc:       l.Description,
		ListProtection: string(l.Protection),
		Owner:          l.Owner,
		Items:          nonNil(l.Items),
		Guests:         nonNil(l.Guests),
	}
}

// isDesignDoc reports whether id names a CouchDB design document, which
// shows up in unfiltered _all_docs results.
func isDesignDoc(id string) bool {
	return strings.HasPrefix(id, "_design/")
}

// nonNil turns a nil slice into an empty one so documents always carry
// "[]" instead of "null".
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
