// Package store provides the storage interface and implementations for the
// resolution core's owned entities: templates, global actions, and the
// local network registry. User and channel records are owned by external
// services and never stored here.
package store

import (
	"context"

	"github.com/megabot/resolution-core/pkg/models"
)

// Store is the primary storage interface. Handler and processor code
// depend on this interface, making it easy to swap between in-memory
// (local dev, tests) and PostgreSQL (production) implementations.
type Store interface {
	TemplateStore
	GlobalActionStore
	NetworkStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Template Store ──────────────────────────────────────────

type TemplateStore interface {
	ListTemplates(ctx context.Context, networkID string) ([]models.Template, error)
	GetTemplate(ctx context.Context, networkID, id string) (*models.Template, error)
	CreateTemplate(ctx context.Context, tpl *models.Template) error
	UpdateTemplate(ctx context.Context, tpl *models.Template) error
	DeleteTemplate(ctx context.Context, networkID, id string) error
}

// ── Global Action Store ─────────────────────────────────────

type GlobalActionStore interface {
	ListGlobalActions(ctx context.Context, networkID string) ([]models.GlobalAction, error)
	// GetGlobalActionsByPayload returns every registered global action
	// whose payload matches, in creation order. Conditional entries share
	// a payload; the processor picks the first whose condition holds.
	GetGlobalActionsByPayload(ctx context.Context, networkID, payload string) ([]models.GlobalAction, error)
	CreateGlobalAction(ctx context.Context, ga *models.GlobalAction) error
	UpdateGlobalAction(ctx context.Context, ga *models.GlobalAction) error
	DeleteGlobalAction(ctx context.Context, networkID, id string) error
}

// ── Network Store ───────────────────────────────────────────

// NetworkStore is the local network registry. In production networks are
// owned by the external network service; this registry backs local dev
// and the directory fallback.
type NetworkStore interface {
	ListNetworks(ctx context.Context) ([]models.Network, error)
	GetNetwork(ctx context.Context, networkID string) (*models.Network, error)
	CreateNetwork(ctx context.Context, n *models.Network) error
	UpdateNetwork(ctx context.Context, n *models.Network) error
	DeleteNetwork(ctx context.Context, networkID string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
