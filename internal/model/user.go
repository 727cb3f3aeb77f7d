// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// User represents a registered account.
//
// The username is the primary key: it doubles as the document id in the
// "users" collection. Rev is the store's revision token and must be sent back
// on every update or delete; a stale Rev is rejected as a conflict.
//
// PasswordHash holds a bcrypt hash. The JSON tag keeps the historical
// "password" field name so existing documents stay readable.
//
// SessionKey is generated at signup and embedded in every session token, so
// tokens of a deleted account never match a later account with the same
// username.
type User struct {
	Username     string       `json:"username"`
	PasswordHash string       `json:"password"`
	FullName     string       `json:"fullName"`
	Email        string       `json:"email"`
	Lists        []string     `json:"lists"`       // ids of lists owned or shared with this user
	CommentedOn  []CommentRef `json:"commentedOn"` // comments written by this user
	SessionKey   string       `json:"-"`
	Rev          string       `json:"_rev,omitempty"`
}

// HasList reports whether listID is referenced from the user's lists.
func (u *User) HasList(listID string) bool {
	for _, id := range u.Lists {
		if id == listID {
			return true
		}
	}
	return false
}

// AddList appends listID unless it is already referenced.
// Returns true if the slice changed.
func (u *User) AddList(listID string) bool {
	if u.HasList(listID) {
		return false
	}
	u.Lists = append(u.Lists, listID)
	return true
}

// RemoveList drops every reference to listID. Returns true if any was removed.
func (u *User) RemoveList(listID string) bool {
	kept := u.Lists[:0]
	removed := false
	for _, id := range u.Lists {
		if id == listID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	u.Lists = kept
	return removed
}
