package token_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/session"
	"github.com/NicolasHaas/gochat/pkg/store"
	"github.com/NicolasHaas/gochat/pkg/token"
)

func newFixture(t *testing.T) (*token.Manager, *store.MemoryStore, *session.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	sessions := session.NewMemoryStore(time.Hour)
	return token.NewManager(st, sessions), st, sessions
}

func seedUser(t *testing.T, st store.DataStore, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, PasswordHash: "h"}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func TestIssueTokenSupersedes(t *testing.T) {
	m, st, _ := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	sess := &model.Session{Key: "k", UserID: alice.ID}

	t1, err := m.IssueToken(ctx, alice)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	t2, err := m.IssueToken(ctx, alice)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if t1 == t2 {
		t.Fatalf("expected a fresh token on re-issue")
	}

	got, err := m.CurrentIdentity(ctx, sess)
	if err != nil {
		t.Fatalf("CurrentIdentity: %v", err)
	}
	if diff := cmp.Diff(token.Identity{AuthToken: t2}, got); diff != "" {
		t.Errorf("CurrentIdentity mismatch (-want +got):\n%s", diff)
	}

	if u, _ := m.Authenticate(ctx, t1); u != nil {
		t.Fatalf("Authenticate(old token): expected no user, got %v", u.Username)
	}
	u, err := m.Authenticate(ctx, t2)
	if err != nil || u == nil || u.ID != alice.ID {
		t.Fatalf("Authenticate(new token) = (%v, %v), want alice", u, err)
	}
}

func TestIssueTokenAnonymous(t *testing.T) {
	m, _, _ := newFixture(t)
	if _, err := m.IssueToken(context.Background(), nil); !errors.Is(err, token.ErrAnonymous) {
		t.Fatalf("IssueToken(nil): expected ErrAnonymous, got %v", err)
	}
}

func TestIssueTokenRecordsIssueTime(t *testing.T) {
	st := store.NewMemory()
	issued := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	m := token.NewManager(st, nil,
		token.WithClock(func() time.Time { return issued }),
		token.WithGenerator(func() (string, error) { return "fixed-token", nil }),
	)
	alice := seedUser(t, st, "alice")

	tok, err := m.IssueToken(context.Background(), alice)
	if err != nil || tok != "fixed-token" {
		t.Fatalf("IssueToken = (%q, %v)", tok, err)
	}
	stored, _ := st.GetUserByID(context.Background(), alice.ID)
	if !stored.AuthTokenIssuedAt.Equal(issued) || stored.AuthToken != "fixed-token" {
		t.Fatalf("stored token state = (%q, %v)", stored.AuthToken, stored.AuthTokenIssuedAt)
	}
}

func TestIssueTokenGeneratorFailure(t *testing.T) {
	st := store.NewMemory()
	boom := errors.New("entropy exhausted")
	m := token.NewManager(st, nil, token.WithGenerator(func() (string, error) { return "", boom }))
	alice := seedUser(t, st, "alice")

	if _, err := m.IssueToken(context.Background(), alice); !errors.Is(err, boom) {
		t.Fatalf("IssueToken: expected generator error, got %v", err)
	}
}

func TestCurrentIdentityWithoutToken(t *testing.T) {
	m, st, _ := newFixture(t)
	alice := seedUser(t, st, "alice")

	got, err := m.CurrentIdentity(context.Background(), &model.Session{Key: "k", UserID: alice.ID})
	if err != nil {
		t.Fatalf("CurrentIdentity: %v", err)
	}
	if got.Authenticated() {
		t.Fatalf("CurrentIdentity must not issue a token, got %+v", got)
	}
}

func TestRememberNameAnonymous(t *testing.T) {
	m, _, sessions := newFixture(t)
	ctx := context.Background()
	sess := session.New()

	if err := m.RememberName(ctx, sess, "bob"); err != nil {
		t.Fatalf("RememberName: %v", err)
	}
	got, err := m.CurrentIdentity(ctx, sess)
	if err != nil {
		t.Fatalf("CurrentIdentity: %v", err)
	}
	if diff := cmp.Diff(token.Identity{Name: "bob"}, got); diff != "" {
		t.Errorf("CurrentIdentity mismatch (-want +got):\n%s", diff)
	}

	saved, _ := sessions.Load(ctx, sess.Key)
	if saved == nil || saved.Name != "bob" {
		t.Fatalf("expected remembered name to be persisted, got %+v", saved)
	}

	if err := m.RememberName(ctx, sess, ""); err != nil {
		t.Fatalf("RememberName(empty): %v", err)
	}
	if sess.Name != "bob" {
		t.Fatalf("empty name must not overwrite, got %q", sess.Name)
	}
}

func TestConcurrentIssue(t *testing.T) {
	m, st, _ := newFixture(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")

	const n = 16
	issued := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := &model.User{ID: alice.ID}
			tok, err := m.IssueToken(ctx, u)
			if err != nil {
				panic(fmt.Sprintf("IssueToken: %v", err))
			}
			issued[i] = tok
		}(i)
	}
	wg.Wait()

	stored, _ := st.GetUserByID(ctx, alice.ID)
	found := false
	for _, tok := range issued {
		if tok == stored.AuthToken {
			found = true
		}
	}
	if !found {
		t.Fatalf("stored token %q was not returned by any IssueToken call", stored.AuthToken)
	}

	valid := 0
	for _, tok := range issued {
		if u, _ := m.Authenticate(ctx, tok); u != nil {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("expected exactly one valid token, got %d", valid)
	}
}
