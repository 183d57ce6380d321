package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const MaxUsernameLength = 32

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")

// User represents a registered account.
//
// A user with Admin set administers every channel; AdminChannelIDs is only
// consulted for non-admin users.
type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"name"`
	PasswordHash      string    `json:"-"`
	Admin             bool      `json:"admin"`
	AdminChannelIDs   []int64   `json:"admin_channels"`
	AuthToken         string    `json:"-"`
	AuthTokenIssuedAt time.Time `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// UserInfo is the JSON view of a user returned by the HTTP layer.
type UserInfo struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Admin           bool    `json:"admin,omitempty"`
	AdminChannelIDs []int64 `json:"admin_channels,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric, underscore,
// or hyphen characters. Returns nil on success or a descriptive error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}

// Validate reports every invalid attribute of u.
func (u *User) Validate() error {
	errs := ValidationErrors{}
	if err := ValidateUsername(u.Username); err != nil {
		errs.Add("name", err.Error())
	}
	if u.PasswordHash == "" {
		errs.Add("password", "must not be empty")
	}
	for _, id := range u.AdminChannelIDs {
		if id <= 0 {
			errs.Add("admin_channels", "contains an invalid channel id")
			break
		}
	}
	return errs.OrNil()
}

// AdministersChannel reports whether u holds admin rights over channelID,
// either globally or through a channel-scoped grant.
func (u *User) AdministersChannel(channelID int64) bool {
	if u.Admin {
		return true
	}
	return slices.Contains(u.AdminChannelIDs, channelID)
}

// Info returns the JSON view of u. Admin details are only included when full is set.
func (u *User) Info(full bool) UserInfo {
	info := UserInfo{ID: u.ID, Name: u.Username}
	if full {
		info.Admin = u.Admin
		info.AdminChannelIDs = u.AdminChannelIDs
		info.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return info
}
