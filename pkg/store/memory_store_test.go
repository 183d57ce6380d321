package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/store"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestChannelLifecycle(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		ctx := context.Background()
		alice := seedUser(t, st, "alice")

		ch := &model.Channel{Permalink: "lobby", Description: "front door", BackendServer: "ws1:9000", AdminIDs: []int64{alice.ID}}
		if err := st.CreateChannel(ctx, ch); err != nil {
			t.Fatalf("CreateChannel: %v", err)
		}
		if ch.ID == 0 {
			t.Fatalf("CreateChannel: expected non-zero ID")
		}

		got, err := st.GetChannelByPermalink(ctx, "lobby")
		if err != nil {
			t.Fatalf("GetChannelByPermalink: %v", err)
		}
		want := &model.Channel{Permalink: "lobby", Description: "front door", BackendServer: "ws1:9000", AdminIDs: []int64{alice.ID}}
		if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.Channel{}, "ID", "CreatedAt")); diff != "" {
			t.Errorf("GetChannelByPermalink mismatch (-want +got):\n%s", diff)
		}

		got.Description = "renamed"
		got.AdminIDs = nil
		if err := st.UpdateChannel(ctx, got); err != nil {
			t.Fatalf("UpdateChannel: %v", err)
		}
		updated, err := st.GetChannel(ctx, ch.ID)
		if err != nil || updated == nil {
			t.Fatalf("GetChannel: (%v, %v)", updated, err)
		}
		if updated.Description != "renamed" || len(updated.AdminIDs) != 0 {
			t.Fatalf("UpdateChannel: unexpected state %+v", updated)
		}

		if err := st.DeleteChannel(ctx, ch.ID); err != nil {
			t.Fatalf("DeleteChannel: %v", err)
		}
		if err := st.DeleteChannel(ctx, ch.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("DeleteChannel(again): expected ErrNotFound, got %v", err)
		}
		gone, err := st.GetChannel(ctx, ch.ID)
		if err != nil || gone != nil {
			t.Fatalf("GetChannel(deleted): expected (nil, nil), got (%v, %v)", gone, err)
		}
	})
}

func TestChannelPermalinkUnique(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		ctx := context.Background()
		seedChannel(t, st, "lobby", "")
		other := seedChannel(t, st, "dev", "")

		err := st.CreateChannel(ctx, &model.Channel{Permalink: "lobby"})
		var verrs model.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs["permalink"]) == 0 {
			t.Fatalf("CreateChannel(duplicate): expected permalink error, got %v", err)
		}

		other.Permalink = "lobby"
		if err := st.UpdateChannel(ctx, other); !errors.Is(err, model.ErrInvalidAttributes) {
			t.Fatalf("UpdateChannel(duplicate): expected ErrInvalidAttributes, got %v", err)
		}
	})
}

func TestSetChannelBackend(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		ctx := context.Background()
		ch := seedChannel(t, st, "lobby", "ws1:9000")

		if err := st.SetChannelBackend(ctx, ch.ID, "ws2:9001"); err != nil {
			t.Fatalf("SetChannelBackend: %v", err)
		}
		got, err := st.GetChannel(ctx, ch.ID)
		if err != nil || got == nil {
			t.Fatalf("GetChannel: (%v, %v)", got, err)
		}
		if got.BackendServer != "ws2:9001" {
			t.Fatalf("BackendServer = %q, want ws2:9001", got.BackendServer)
		}

		if err := st.SetChannelBackend(ctx, 404, "ws3:9002"); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("SetChannelBackend(missing): expected ErrNotFound, got %v", err)
		}
	})
}

func TestListChannels(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		ctx := context.Background()
		alice := seedUser(t, st, "alice")
		seedChannel(t, st, "lobby", "ws1:9000")
		dev := &model.Channel{Permalink: "dev", AdminIDs: []int64{alice.ID}}
		if err := st.CreateChannel(ctx, dev); err != nil {
			t.Fatalf("CreateChannel: %v", err)
		}

		channels, err := st.ListChannels(ctx)
		if err != nil {
			t.Fatalf("ListChannels: %v", err)
		}
		want := []model.Channel{
			{Permalink: "lobby", BackendServer: "ws1:9000"},
			{Permalink: "dev", AdminIDs: []int64{alice.ID}},
		}
		if diff := cmp.Diff(want, channels, cmpopts.IgnoreFields(model.Channel{}, "ID", "CreatedAt")); diff != "" {
			t.Errorf("ListChannels mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestBans(t *testing.T) {
	withStores(t, func(t *testing.T, st store.DataStore) {
		ctx := context.Background()
		alice := seedUser(t, st, "alice")
		bob := seedUser(t, st, "bob")

		permanent := &model.Ban{UserID: alice.ID, Reason: "spam", BannedBy: bob.ID}
		if err := st.CreateBan(ctx, permanent); err != nil {
			t.Fatalf("CreateBan: %v", err)
		}
		expired := &model.Ban{UserID: bob.ID, ExpiresAt: time.Now().Add(-time.Hour)}
		if err := st.CreateBan(ctx, expired); err != nil {
			t.Fatalf("CreateBan: %v", err)
		}
		if err := st.CreateBan(ctx, &model.Ban{}); !errors.Is(err, model.ErrInvalidAttributes) {
			t.Fatalf("CreateBan(empty): expected ErrInvalidAttributes, got %v", err)
		}

		banned, err := st.IsUserBanned(ctx, alice.ID)
		if err != nil || !banned {
			t.Fatalf("IsUserBanned(alice) = (%v, %v), want true", banned, err)
		}
		banned, err = st.IsUserBanned(ctx, bob.ID)
		if err != nil || banned {
			t.Fatalf("IsUserBanned(bob) = (%v, %v), want false", banned, err)
		}

		permanent.Reason = "flooding"
		if err := st.UpdateBan(ctx, permanent); err != nil {
			t.Fatalf("UpdateBan: %v", err)
		}
		got, err := st.GetBan(ctx, permanent.ID)
		if err != nil || got == nil || got.Reason != "flooding" {
			t.Fatalf("GetBan: (%v, %v)", got, err)
		}

		ipBan := &model.Ban{IP: "203.0.113.7", BannedBy: bob.ID}
		if err := st.CreateBan(ctx, ipBan); err != nil {
			t.Fatalf("CreateBan(ip): %v", err)
		}
		expiredIP := &model.Ban{IP: "203.0.113.8", ExpiresAt: time.Now().Add(-time.Hour)}
		if err := st.CreateBan(ctx, expiredIP); err != nil {
			t.Fatalf("CreateBan(expired ip): %v", err)
		}
		ipCases := map[string]bool{"203.0.113.7": true, "203.0.113.8": false, "198.51.100.1": false, "": false}
		for ip, want := range ipCases {
			banned, err := st.IsIPBanned(ctx, ip)
			if err != nil || banned != want {
				t.Fatalf("IsIPBanned(%q) = (%v, %v), want %v", ip, banned, err, want)
			}
		}

		bans, err := st.ListBans(ctx)
		if err != nil || len(bans) != 4 {
			t.Fatalf("ListBans: expected 4 bans, got (%d, %v)", len(bans), err)
		}

		if err := st.DeleteBan(ctx, permanent.ID); err != nil {
			t.Fatalf("DeleteBan: %v", err)
		}
		if err := st.DeleteBan(ctx, permanent.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("DeleteBan(again): expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryStoreClock(t *testing.T) {
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 500, time.UTC)
	st := store.NewMemoryWithClock(func() time.Time { return fixed })

	u := &model.User{Username: "alice", PasswordHash: "h"}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if !u.CreatedAt.Equal(fixed.Truncate(time.Second)) {
		t.Fatalf("CreatedAt = %v, want %v", u.CreatedAt, fixed.Truncate(time.Second))
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	u := &model.User{Username: "alice", PasswordHash: "h"}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, _ := st.GetUserByID(ctx, u.ID)
	got.Username = "mallory"

	again, _ := st.GetUserByID(ctx, u.ID)
	if again.Username != "alice" {
		t.Fatalf("mutating a returned user leaked into the store: %q", again.Username)
	}
}
