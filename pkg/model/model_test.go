package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid mixed", "A-b_3", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePermalink(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"lobby", nil},
		{"room-2_b", nil},
		{"", ErrPermalinkEmpty},
		{strings.Repeat("x", MaxPermalinkLength+1), ErrPermalinkTooLong},
		{"Lobby", ErrPermalinkInvalidChars},
		{"a/b", ErrPermalinkInvalidChars},
		{"2024", ErrPermalinkNumeric},
		{"0", ErrPermalinkNumeric},
		{"2024-recap", nil},
		{"-1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if err := ValidatePermalink(tt.input); err != tt.wantErr {
				t.Errorf("ValidatePermalink(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestChannelValidate(t *testing.T) {
	ch := &Channel{Permalink: "Bad Link", Description: strings.Repeat("d", MaxChannelDescLength+1)}
	err := ch.Validate()
	if !errors.Is(err, ErrInvalidAttributes) {
		t.Fatalf("Validate: expected ErrInvalidAttributes, got %v", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate: expected ValidationErrors, got %T", err)
	}
	if len(verrs["permalink"]) != 1 || len(verrs["description"]) != 1 {
		t.Fatalf("Validate: unexpected fields %v", verrs)
	}

	ok := &Channel{Permalink: "lobby", BackendServer: "ws2:9001"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: unexpected error %v", err)
	}
}

func TestUserAdministersChannel(t *testing.T) {
	tests := []struct {
		name string
		user User
		want bool
	}{
		{"global admin", User{Admin: true}, true},
		{"scoped admin", User{AdminChannelIDs: []int64{3, 7}}, true},
		{"other channel", User{AdminChannelIDs: []int64{3}}, false},
		{"plain user", User{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.AdministersChannel(7); got != tt.want {
				t.Errorf("AdministersChannel(7) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserInfoHidesSecrets(t *testing.T) {
	u := &User{ID: 4, Username: "alice", PasswordHash: "h", AuthToken: "t", Admin: true}
	brief := u.Info(false)
	if brief.Admin || brief.CreatedAt != "" {
		t.Fatalf("Info(false): expected admin fields to be omitted, got %+v", brief)
	}
	full := u.Info(true)
	if !full.Admin || full.Name != "alice" {
		t.Fatalf("Info(true): unexpected view %+v", full)
	}
}

func TestBanValidate(t *testing.T) {
	tests := []struct {
		name    string
		ban     Ban
		wantErr bool
	}{
		{"user ban", Ban{UserID: 2}, false},
		{"ip ban", Ban{IP: "10.0.0.1"}, false},
		{"neither", Ban{}, true},
		{"both", Ban{UserID: 2, IP: "10.0.0.1"}, true},
		{"bad ip", Ban{IP: "not-an-ip"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ban.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBanActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if !(&Ban{}).Active(now) {
		t.Fatalf("permanent ban should be active")
	}
	if (&Ban{ExpiresAt: now.Add(-time.Minute)}).Active(now) {
		t.Fatalf("expired ban should not be active")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := &Session{Key: "k", Name: "bob"}
	if s.Authenticated() {
		t.Fatalf("new session should be anonymous")
	}
	s.ReturnTo = "/admin"
	s.BindUser(9)
	if got := s.TakeReturnTo("/"); got != "/admin" {
		t.Fatalf("TakeReturnTo = %q, want /admin", got)
	}
	if got := s.TakeReturnTo("/"); got != "/" {
		t.Fatalf("TakeReturnTo second call = %q, want /", got)
	}
	s.Logout()
	if s.Authenticated() || s.Name != "bob" {
		t.Fatalf("Logout: unexpected state %+v", s)
	}
}
