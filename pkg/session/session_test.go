package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/session"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func withSessionStores(t *testing.T, fn func(t *testing.T, st session.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, session.NewMemoryStore(time.Hour))
	})
	t.Run("redis", func(t *testing.T) {
		_, client := newTestRedis(t)
		fn(t, session.NewRedisStore(client, time.Hour))
	})
}

func TestStoreRoundTrip(t *testing.T) {
	withSessionStores(t, func(t *testing.T, st session.Store) {
		ctx := context.Background()
		sess := session.New()
		sess.Name = "bob"
		sess.ReturnTo = "/admin"

		if err := st.Save(ctx, sess); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := st.Load(ctx, sess.Key)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if diff := cmp.Diff(sess, got); diff != "" {
			t.Errorf("Load mismatch (-want +got):\n%s", diff)
		}

		got.BindUser(7)
		if err := st.Save(ctx, got); err != nil {
			t.Fatalf("Save: %v", err)
		}
		again, err := st.Load(ctx, sess.Key)
		if err != nil || again == nil || again.UserID != 7 {
			t.Fatalf("Load after bind: (%+v, %v)", again, err)
		}

		if err := st.Delete(ctx, sess.Key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		gone, err := st.Load(ctx, sess.Key)
		if err != nil || gone != nil {
			t.Fatalf("Load after delete: expected (nil, nil), got (%+v, %v)", gone, err)
		}
	})
}

func TestStoreUnknownKey(t *testing.T) {
	withSessionStores(t, func(t *testing.T, st session.Store) {
		got, err := st.Load(context.Background(), "does-not-exist")
		if err != nil || got != nil {
			t.Fatalf("Load: expected (nil, nil), got (%+v, %v)", got, err)
		}
		if err := st.Delete(context.Background(), "does-not-exist"); err != nil {
			t.Fatalf("Delete(missing): %v", err)
		}
	})
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := session.NewMemoryStoreWithClock(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	sess := session.New()
	if err := st.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	now = now.Add(50 * time.Second)
	if got, _ := st.Load(ctx, sess.Key); got == nil {
		t.Fatalf("expected session to be live before its TTL")
	}

	// The load above slid the expiry forward.
	now = now.Add(50 * time.Second)
	if got, _ := st.Load(ctx, sess.Key); got == nil {
		t.Fatalf("expected sliding TTL to keep the session alive")
	}

	now = now.Add(2 * time.Minute)
	if got, _ := st.Load(ctx, sess.Key); got != nil {
		t.Fatalf("expected session to expire")
	}
	if st.Len() != 0 {
		t.Fatalf("Len = %d, want 0", st.Len())
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	st := session.NewRedisStore(client, time.Minute)
	ctx := context.Background()

	sess := session.New()
	if err := st.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := st.Load(ctx, sess.Key)
	if err != nil || got != nil {
		t.Fatalf("Load after TTL: expected (nil, nil), got (%+v, %v)", got, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	st := session.NewRedisStore(client, time.Minute)
	mr.Close()

	_, err := st.Load(context.Background(), "k")
	if !errors.Is(err, session.ErrUnavailable) {
		t.Fatalf("Load: expected ErrUnavailable, got %v", err)
	}
	if err := st.Ping(context.Background()); !errors.Is(err, session.ErrUnavailable) {
		t.Fatalf("Ping: expected ErrUnavailable, got %v", err)
	}
}

type countingLookup struct {
	calls int
	users map[int64]*model.User
}

func (c *countingLookup) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	c.calls++
	return c.users[id], nil
}

func TestIdentityMemoizes(t *testing.T) {
	lookup := &countingLookup{users: map[int64]*model.User{3: {ID: 3, Username: "alice"}}}
	sess := &model.Session{Key: "k", UserID: 3}
	id := session.NewIdentity(lookup, sess)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := id.Resolve(ctx)
		if err != nil || u == nil || u.Username != "alice" {
			t.Fatalf("Resolve: (%+v, %v)", u, err)
		}
	}
	if lookup.calls != 1 {
		t.Fatalf("expected one lookup, got %d", lookup.calls)
	}

	sess.Logout()
	id.Reset()
	u, err := id.Resolve(ctx)
	if err != nil || u != nil {
		t.Fatalf("Resolve after logout: expected (nil, nil), got (%+v, %v)", u, err)
	}
	if lookup.calls != 1 {
		t.Fatalf("anonymous sessions should not query the store, got %d calls", lookup.calls)
	}
}

func TestIdentityDeletedUser(t *testing.T) {
	lookup := &countingLookup{users: map[int64]*model.User{}}
	id := session.NewIdentity(lookup, &model.Session{Key: "k", UserID: 9})

	u, err := id.Resolve(context.Background())
	if err != nil || u != nil {
		t.Fatalf("Resolve: expected (nil, nil), got (%+v, %v)", u, err)
	}
}

func TestIdentityContext(t *testing.T) {
	if session.FromContext(context.Background()) != nil {
		t.Fatalf("expected no identity in empty context")
	}
	id := session.NewIdentity(&countingLookup{}, session.New())
	ctx := session.WithIdentity(context.Background(), id)
	if session.FromContext(ctx) != id {
		t.Fatalf("FromContext did not return the stored identity")
	}
}
