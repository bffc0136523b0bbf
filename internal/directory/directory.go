// Package directory provides the injected lookup capabilities the core
// consumes without owning: network, user, and channel records. Production
// deployments point these at the external user/channel/network services;
// local dev falls back to the store-backed network registry.
package directory

import (
	"context"

	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/pkg/models"
)

// NetworkService resolves a network by id.
type NetworkService interface {
	GetNetworkByID(ctx context.Context, networkID string) (*models.Network, error)
}

// UserService resolves a user by id.
type UserService interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// ChannelService resolves a channel by id.
type ChannelService interface {
	GetChannelByID(ctx context.Context, channelID string) (*models.Channel, error)
}

// StoreNetworkService serves network lookups from the local registry.
type StoreNetworkService struct {
	store store.NetworkStore
}

// NewStoreNetworkService creates a registry-backed network service.
func NewStoreNetworkService(s store.NetworkStore) *StoreNetworkService {
	return &StoreNetworkService{store: s}
}

func (s *StoreNetworkService) GetNetworkByID(ctx context.Context, networkID string) (*models.Network, error) {
	return s.store.GetNetwork(ctx, networkID)
}

// StaticNetworkService serves one preloaded network. Request handlers use
// it to hand an already-fetched network to the processor without a second
// directory round trip.
type StaticNetworkService struct {
	Network models.Network
}

func (s StaticNetworkService) GetNetworkByID(ctx context.Context, networkID string) (*models.Network, error) {
	if networkID != s.Network.NetworkID {
		return nil, &store.ErrNotFound{Entity: "network", Key: networkID}
	}
	n := s.Network
	return &n, nil
}
