// Package contracts defines the service interfaces of the resolution core.
//
// These interfaces form the boundary between the core and platform
// deployments that embed it. The core ships concrete implementations
// (Processor, Contextualizer, flow Router); an embedding platform can wrap
// or replace any of them without touching handler code, since the HTTP
// layer depends only on these interfaces.
package contracts

import (
	"context"

	"github.com/megabot/resolution-core/internal/directory"
	"github.com/megabot/resolution-core/internal/flowengine"
	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/pkg/models"
)

// Store is a type alias for the internal Store interface. Exposed in pkg/
// so embedding platforms can reference it in their own middleware and
// services without importing internal/ directly.
type Store = store.Store

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// NetworkDirectory, UserDirectory, and ChannelDirectory alias the lookup
// capabilities the core consumes. Platforms point these at their own
// user/channel/network services.
type (
	NetworkDirectory = directory.NetworkService
	UserDirectory    = directory.UserService
	ChannelDirectory = directory.ChannelService
)

// ── Action Processor Service ────────────────────────────────

// ActionProcessorService resolves context actions to outgoing messages.
// Core implementation: internal/processor.Processor
type ActionProcessorService interface {
	// ProcessAction resolves the context's action end to end, fallback
	// substitution included.
	ProcessAction(ctx context.Context, botCtx models.BotContext, networks NetworkDirectory) (*models.OutgoingMessage, error)

	// ProcessTemplateAction dispatches a single template action.
	ProcessTemplateAction(ctx context.Context, botCtx models.BotContext, network models.Network, action models.ContextAction) (*models.OutgoingMessage, error)

	// ProcessFlowAction performs a single flow-engine call without
	// following chained actions.
	ProcessFlowAction(ctx context.Context, botCtx models.BotContext, action models.ContextAction, network models.Network) (*flowengine.Response, error)

	// FindTemplateByAction returns the template the action names.
	FindTemplateByAction(ctx context.Context, networkID, action string) (*models.Template, error)

	// IsTemplateAction reports whether the action names a template.
	IsTemplateAction(ctx context.Context, networkID, action string) (bool, error)

	// GetGlobalActionByPayload returns the registered mapping for a
	// postback payload, honoring per-entry conditions.
	GetGlobalActionByPayload(ctx context.Context, networkID, payload string, conv *models.Conversation) (*models.ContextAction, error)
}

// ── Personalizer Service ────────────────────────────────────

// PersonalizerService contextualizes resolved outgoing messages.
// Core implementation: internal/contextualizer.Contextualizer
type PersonalizerService interface {
	// Personalize runs contextualization: the network's template hook
	// when configured, local token substitution otherwise.
	Personalize(ctx context.Context, network models.Network, botCtx models.BotContextWithOutgoing) models.TemplateHookResponse

	// SendHookTemplate calls the network's template hook directly,
	// degrading to the unpersonalized message on failure.
	SendHookTemplate(ctx context.Context, network models.Network, botCtx models.BotContextWithOutgoing) models.TemplateHookResponse
}
