package model

// Session is the server-side record behind a session cookie.
//
// UserID is 0 for anonymous visitors. Name is the display name remembered for
// anonymous chat participants; ReturnTo is the path to resume after login.
type Session struct {
	Key      string `json:"-"`
	UserID   int64  `json:"user_id,omitempty"`
	Name     string `json:"name,omitempty"`
	ReturnTo string `json:"return_to,omitempty"`
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s.UserID != 0
}

// BindUser binds the session to userID after a successful login.
func (s *Session) BindUser(userID int64) {
	s.UserID = userID
}

// Logout clears the user binding. The remembered name survives.
func (s *Session) Logout() {
	s.UserID = 0
	s.ReturnTo = ""
}

// TakeReturnTo returns the remembered path, or fallback, and forgets it.
func (s *Session) TakeReturnTo(fallback string) string {
	path := s.ReturnTo
	s.ReturnTo = ""
	if path == "" {
		return fallback
	}
	return path
}
