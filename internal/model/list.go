package model

// Protection is a list's visibility mode.
type Protection string

const (
	ProtectionPublic  Protection = "public"
	ProtectionPrivate Protection = "private"
)

// Valid reports whether p is one of the known protection modes.
func (p Protection) Valid() bool {
	return p == ProtectionPublic || p == ProtectionPrivate
}

// Permission is the access level granted to a guest.
type Permission string

const (
	PermissionReadOnly  Permission = "readonly"
	PermissionReadWrite Permission = "readwrite"
)

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	return p == PermissionReadOnly || p == PermissionReadWrite
}

// Item is one movie entry in a list. Duplicates are allowed and the slice
// keeps insertion order.
type Item struct {
	MovieID     string  `json:"movieId"`
	MoviePoster string  `json:"moviePoster"`
	MovieRating float64 `json:"movieRating"`
}

// Guest is a non-owner user with access to a list.
type Guest struct {
	Username   string     `json:"username"`
	Permission Permission `json:"permission"`
}

// UserList is a named, user-curated list of movies.
//
// Invariants kept by the repository layer:
//   - Owner never appears in Guests.
//   - A public list has no guests.
//   - Owner and every guest reference the list id from their User.Lists.
type UserList struct {
	ID          string     `json:"id"`
	Name        string     `json:"listName"`
	Description string     `json:"listDesc"`
	Protection  Protection `json:"listProtection"`
	Owner       string     `json:"owner"`
	Items       []Item     `json:"items"`
	Guests      []Guest    `json:"guests"`
	Rev         string     `json:"_rev,omitempty"`
}

// Guest returns the guest entry for username, if any.
func (l *UserList) Guest(username string) (Guest, bool) {
	for _, g := range l.Guests {
		if g.Username == username {
			return g, true
		}
	}
	return Guest{}, false
}

// CanView reports whether username may see the list.
func (l *UserList) CanView(username string) bool {
	if l.Protection == ProtectionPublic || l.Owner == username {
		return true
	}
	_, ok := l.Guest(username)
	return ok
}

// CanEditItems reports whether username may add or remove movies.
func (l *UserList) CanEditItems(username string) bool {
	if l.Owner == username {
		return true
	}
	g, ok := l.Guest(username)
	return ok && g.Permission == PermissionReadWrite
}

// GuestUsernames returns the usernames of all guests in list order.
func (l *UserList) GuestUsernames() []string {
	names := make([]string, 0, len(l.Guests))
	for _, g := range l.Guests {
		names = append(names, g.Username)
	}
	return names
}
