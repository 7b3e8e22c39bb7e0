// Package user holds the user record and its file-backed repository. Users
// are created by the external identity layer; the core only reads and updates
// the hub membership set.
package user

import (
	"errors"

	"github.com/google/uuid"

	"github.com/hubline-chat/hubline-server/internal/hub"
)

// Sentinel errors for the user package.
var (
	ErrNotFound = errors.New("user not found")
)

// User is an account known to the server. InHubs mirrors hub membership: a
// user is in a hub iff the hub's member map contains them and their InHubs
// set contains the hub.
type User struct {
	ID        uuid.UUID          `json:"id"`
	Username  string             `json:"username"`
	CreatedMS int64              `json:"created_ms"`
	InHubs    map[uuid.UUID]bool `json:"in_hubs"`
}

// New creates a user with the given username.
func New(username string) (*User, error) {
	if err := hub.ValidateName(username); err != nil {
		return nil, err
	}
	return &User{
		ID:        uuid.New(),
		Username:  username,
		CreatedMS: hub.NowMS(),
		InHubs:    make(map[uuid.UUID]bool),
	}, nil
}

// AddHub records hub membership on the user.
func (u *User) AddHub(hubID uuid.UUID) {
	if u.InHubs == nil {
		u.InHubs = make(map[uuid.UUID]bool)
	}
	u.InHubs[hubID] = true
}

// RemoveHub clears hub membership on the user.
func (u *User) RemoveHub(hubID uuid.UUID) {
	delete(u.InHubs, hubID)
}
