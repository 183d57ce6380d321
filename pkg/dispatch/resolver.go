package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// ErrUnassignedBackend is returned in multi-server mode for a channel with no
// backend server. There is no fallback endpoint.
var ErrUnassignedBackend = errors.New("dispatch: channel has no backend server assigned")

// Directory is the read side of the channel store.
type Directory interface {
	GetChannel(ctx context.Context, id int64) (*model.Channel, error)
	GetChannelByPermalink(ctx context.Context, permalink string) (*model.Channel, error)
}

// ResolveEndpoint returns the websocket endpoint for ch under t. It has no side effects.
func ResolveEndpoint(ch *model.Channel, t Topology) (string, error) {
	if t.Mode == SingleServer {
		return t.SharedEndpoint(), nil
	}
	if ch.BackendServer == "" {
		return "", fmt.Errorf("%w: %s", ErrUnassignedBackend, ch.Permalink)
	}
	return ch.BackendServer, nil
}

// Resolver resolves endpoints against the current directory state. It holds
// no cache so reassignments are visible immediately.
type Resolver struct {
	topology  Topology
	directory Directory
}

// NewResolver creates a Resolver.
func NewResolver(t Topology, dir Directory) *Resolver {
	return &Resolver{topology: t, directory: dir}
}

// Topology returns the resolver's topology.
func (r *Resolver) Topology() Topology {
	return r.topology
}

// ResolveEndpoint resolves ch under the resolver's topology.
func (r *Resolver) ResolveEndpoint(ch *model.Channel) (string, error) {
	return ResolveEndpoint(ch, r.topology)
}

// ResolveByID loads the channel and resolves its endpoint. A missing channel
// yields model.ErrNotFound.
func (r *Resolver) ResolveByID(ctx context.Context, id int64) (*model.Channel, string, error) {
	ch, err := r.directory.GetChannel(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("dispatch: load channel: %w", err)
	}
	return r.resolveLoaded(ch)
}

// ResolveByPermalink loads the channel and resolves its endpoint. A missing
// channel yields model.ErrNotFound.
func (r *Resolver) ResolveByPermalink(ctx context.Context, permalink string) (*model.Channel, string, error) {
	ch, err := r.directory.GetChannelByPermalink(ctx, permalink)
	if err != nil {
		return nil, "", fmt.Errorf("dispatch: load channel: %w", err)
	}
	return r.resolveLoaded(ch)
}

func (r *Resolver) resolveLoaded(ch *model.Channel) (*model.Channel, string, error) {
	if ch == nil {
		return nil, "", model.ErrNotFound
	}
	endpoint, err := r.ResolveEndpoint(ch)
	if err != nil {
		return ch, "", err
	}
	return ch, endpoint, nil
}
