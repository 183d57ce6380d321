package model

import (
	"net"
	"time"
)

const MaxBanReasonLength = 256

// Ban represents a banned user or IP.
type Ban struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"` // 0 if IP ban
	IP        string    `json:"ip"`      // empty if user ban
	Reason    string    `json:"reason"`
	BannedBy  int64     `json:"banned_by"`
	ExpiresAt time.Time `json:"expires_at"` // zero = permanent
	CreatedAt time.Time `json:"created_at"`
}

// Validate requires exactly one of UserID or IP.
func (b *Ban) Validate() error {
	errs := ValidationErrors{}
	switch {
	case b.UserID == 0 && b.IP == "":
		errs.Add("base", "either user_id or ip is required")
	case b.UserID != 0 && b.IP != "":
		errs.Add("base", "user_id and ip are mutually exclusive")
	case b.UserID < 0:
		errs.Add("user_id", "must be positive")
	case b.IP != "" && net.ParseIP(b.IP) == nil:
		errs.Add("ip", "is not a valid address")
	}
	if len(b.Reason) > MaxBanReasonLength {
		errs.Add("reason", "too long")
	}
	return errs.OrNil()
}

// Active reports whether the ban is in force at now.
func (b *Ban) Active(now time.Time) bool {
	return b.ExpiresAt.IsZero() || b.ExpiresAt.After(now)
}
