package model

import (
	"errors"
	"slices"
	"time"
	"unicode/utf8"
)

const (
	MaxPermalinkLength     = 64
	MaxChannelDescLength   = 256
	MaxBackendServerLength = 255
)

var ErrPermalinkEmpty = errors.New("permalink must not be empty")
var ErrPermalinkTooLong = errors.New("permalink too long")
var ErrPermalinkInvalidChars = errors.New("permalink must contain only lowercase letters, digits, underscores, or hyphens")
var ErrPermalinkNumeric = errors.New("permalink must not be all digits")
var ErrChannelDescTooLong = errors.New("channel description too long")
var ErrBackendServerTooLong = errors.New("backend server too long")

// Channel represents a chat room served by one websocket backend.
type Channel struct {
	ID            int64     `json:"id"`
	Permalink     string    `json:"permalink"`
	Description   string    `json:"description"`
	BackendServer string    `json:"backend_server"` // empty in single-server deployments
	AdminIDs      []int64   `json:"admin_ids"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChannelInfo is the JSON view of a channel returned by the HTTP layer.
type ChannelInfo struct {
	ID            int64   `json:"id"`
	Permalink     string  `json:"permalink"`
	Description   string  `json:"description,omitempty"`
	Endpoint      string  `json:"endpoint,omitempty"`
	BackendServer string  `json:"backend_server,omitempty"`
	AdminIDs      []int64 `json:"admin_ids,omitempty"`
}

// ValidatePermalink checks that a permalink is 1-64 characters of [a-z0-9_-]
// with at least one non-digit, so it never reads as a channel ID.
func ValidatePermalink(p string) error {
	if p == "" {
		return ErrPermalinkEmpty
	}
	if len(p) > MaxPermalinkLength {
		return ErrPermalinkTooLong
	}
	digits := true
	for _, r := range p {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrPermalinkInvalidChars
		}
		if r < '0' || r > '9' {
			digits = false
		}
	}
	if digits {
		return ErrPermalinkNumeric
	}
	return nil
}

// Validate reports every invalid attribute of ch.
func (ch *Channel) Validate() error {
	errs := ValidationErrors{}
	if err := ValidatePermalink(ch.Permalink); err != nil {
		errs.Add("permalink", err.Error())
	}
	if utf8.RuneCountInString(ch.Description) > MaxChannelDescLength {
		errs.Add("description", ErrChannelDescTooLong.Error())
	}
	if len(ch.BackendServer) > MaxBackendServerLength {
		errs.Add("backend_server", ErrBackendServerTooLong.Error())
	}
	return errs.OrNil()
}

// HasAdmin reports whether userID is listed among the channel's admins.
func (ch *Channel) HasAdmin(userID int64) bool {
	return slices.Contains(ch.AdminIDs, userID)
}

// Info returns the JSON view of ch. Admin-only fields are included when full is set.
func (ch *Channel) Info(endpoint string, full bool) ChannelInfo {
	info := ChannelInfo{
		ID:          ch.ID,
		Permalink:   ch.Permalink,
		Description: ch.Description,
		Endpoint:    endpoint,
	}
	if full {
		info.BackendServer = ch.BackendServer
		info.AdminIDs = ch.AdminIDs
	}
	return info
}
