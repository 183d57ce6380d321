package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/NicolasHaas/gochat/pkg/dispatch"
	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/store"
)

func TestResolveEndpoint(t *testing.T) {
	lobby := &model.Channel{Permalink: "lobby", BackendServer: "ws2:9001"}
	unassigned := &model.Channel{Permalink: "dev"}

	tests := []struct {
		name     string
		channel  *model.Channel
		topology dispatch.Topology
		want     string
		wantErr  error
	}{
		{"multi assigned", lobby, dispatch.NewTopology(false, "", ""), "ws2:9001", nil},
		{"multi unassigned", unassigned, dispatch.NewTopology(false, "", "8080"), "", dispatch.ErrUnassignedBackend},
		{"single env port", lobby, dispatch.NewTopology(true, "", "8080"), "8080", nil},
		{"single configured port wins", lobby, dispatch.NewTopology(true, "9000", "8080"), "9000", nil},
		{"single ignores assignment", unassigned, dispatch.NewTopology(true, "9000", ""), "9000", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dispatch.ResolveEndpoint(tt.channel, tt.topology)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveEndpoint error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ResolveEndpoint = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveEndpointDeterministic(t *testing.T) {
	ch := &model.Channel{Permalink: "lobby", BackendServer: "ws2:9001"}
	before := *ch
	topo := dispatch.NewTopology(false, "", "")

	first, _ := dispatch.ResolveEndpoint(ch, topo)
	second, _ := dispatch.ResolveEndpoint(ch, topo)
	if first != second {
		t.Fatalf("ResolveEndpoint not deterministic: %q vs %q", first, second)
	}
	if ch.BackendServer != before.BackendServer || ch.Permalink != before.Permalink {
		t.Fatalf("ResolveEndpoint mutated the channel: %+v", ch)
	}
}

func TestSingleServerUniform(t *testing.T) {
	topo := dispatch.NewTopology(true, "", "8080")
	channels := []*model.Channel{
		{Permalink: "lobby", BackendServer: "ws1:9000"},
		{Permalink: "dev", BackendServer: "ws2:9001"},
		{Permalink: "empty"},
	}
	for _, ch := range channels {
		got, err := dispatch.ResolveEndpoint(ch, topo)
		if err != nil {
			t.Fatalf("ResolveEndpoint(%s): %v", ch.Permalink, err)
		}
		if got != "8080" {
			t.Fatalf("ResolveEndpoint(%s) = %q, want 8080", ch.Permalink, got)
		}
	}
}

func TestResolverSeesReassignment(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	ch := &model.Channel{Permalink: "lobby", BackendServer: "ws1:9000"}
	if err := st.CreateChannel(ctx, ch); err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	r := dispatch.NewResolver(dispatch.NewTopology(false, "", ""), st)

	_, endpoint, err := r.ResolveByPermalink(ctx, "lobby")
	if err != nil || endpoint != "ws1:9000" {
		t.Fatalf("ResolveByPermalink = (%q, %v), want ws1:9000", endpoint, err)
	}

	if err := st.SetChannelBackend(ctx, ch.ID, "ws2:9001"); err != nil {
		t.Fatalf("SetChannelBackend: %v", err)
	}
	_, endpoint, err = r.ResolveByID(ctx, ch.ID)
	if err != nil || endpoint != "ws2:9001" {
		t.Fatalf("ResolveByID after reassignment = (%q, %v), want ws2:9001", endpoint, err)
	}

	if _, _, err := r.ResolveByID(ctx, 404); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("ResolveByID(missing): expected ErrNotFound, got %v", err)
	}
}

func TestTopologyValidate(t *testing.T) {
	if err := dispatch.NewTopology(true, "", "").Validate(); !errors.Is(err, dispatch.ErrNoSharedEndpoint) {
		t.Fatalf("Validate: expected ErrNoSharedEndpoint, got %v", err)
	}
	if err := dispatch.NewTopology(false, "", "").Validate(); err != nil {
		t.Fatalf("Validate(multi): %v", err)
	}
	if got := dispatch.SingleServer.String(); got != "single_server" {
		t.Fatalf("String = %q", got)
	}
}

func TestTopologyFromEnv(t *testing.T) {
	t.Setenv(dispatch.EnvPort, "8080")
	topo := dispatch.TopologyFromEnv(true, "")
	if got := topo.SharedEndpoint(); got != "8080" {
		t.Fatalf("SharedEndpoint = %q, want 8080", got)
	}
}
