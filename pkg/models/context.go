package models

import (
	"fmt"
	"time"
)

// IncomingMessage is the raw inbound event as received from a channel
// webhook, before NLU.
type IncomingMessage struct {
	NetworkID string         `json:"networkId"`
	UserID    string         `json:"userId"`
	ChannelID string         `json:"channelId"`
	Type      string         `json:"type"` // "text"
	Payload   string         `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// User is a narrow read-only projection of a user record owned by the
// external user service.
type User struct {
	UserID         string         `json:"userId"`
	Info           map[string]any `json:"info"`
	RichMenuID     string         `json:"richMenuId,omitempty"`
	ExternalUserID string         `json:"externalUserId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// BotInfo is opaque channel bot metadata (display name, avatar, ...).
type BotInfo map[string]string

// Channel is a narrow read-only projection of a channel record owned by
// the external channel service.
type Channel struct {
	ChannelID string   `json:"channelId"`
	Platform  Platform `json:"platform"`
	BotInfo   BotInfo  `json:"botInfo,omitempty"`
}

// Intent is the top NLU classification for an inbound event.
type Intent struct {
	IntentName string  `json:"intentName"`
	Confidence float64 `json:"confidence"`
}

// Entity is one extracted NLU entity.
type Entity struct {
	EntityName  string `json:"entityName"`
	EntityValue string `json:"entityValue"`
}

// Conversation is the NLU output attached to a BotContext. Both fields
// are optional; absence means upstream produced no classification.
type Conversation struct {
	Intent   *Intent  `json:"intent,omitempty"`
	Entities []Entity `json:"entities,omitempty"`
}

// ContextAction is the abstract instruction to execute. Action is a
// discriminator string whose meaning depends on the network: it may name
// a template id, a flow id, or a registered global-action payload.
type ContextAction struct {
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FlowEngine is one configured flow-engine endpoint in a network.
type FlowEngine struct {
	FlowEngineID       string `json:"flowEngineId"`
	FlowEngineEndpoint string `json:"flowEngineEndpoint"`
}

// NetworkHooks holds optional per-network hook endpoints.
type NetworkHooks struct {
	// Template is the endpoint of the template personalization hook.
	Template string `json:"template,omitempty"`
}

// NetworkConfig is the routing configuration of a network.
type NetworkConfig struct {
	ConfidenceThreshold   float64        `json:"confidenceThreshold"`
	FlowEngines           []FlowEngine   `json:"flowEngines"`
	DefaultFallbackAction *ContextAction `json:"defaultFallbackAction,omitempty"`
	Hooks                 *NetworkHooks  `json:"hooks,omitempty"`
}

// Network is a tenant-level bot configuration scope. Owned externally;
// the core treats it as immutable per request.
type Network struct {
	NetworkID string        `json:"networkId"`
	Config    NetworkConfig `json:"config"`
}

// FlowEngineByID returns the configured engine with the given id.
func (n Network) FlowEngineByID(id string) (FlowEngine, bool) {
	for _, fe := range n.Config.FlowEngines {
		if fe.FlowEngineID == id {
			return fe, true
		}
	}
	return FlowEngine{}, false
}

// Template is a named, network-scoped, platform-filtered bundle of
// renderable messages.
type Template struct {
	ID        string      `json:"id"`
	NetworkID string      `json:"networkId"`
	Name      string      `json:"name"`
	Platforms []Platform  `json:"platforms"`
	Messages  MessageList `json:"messages"`
	CreatedBy string      `json:"createdBy"`
	Tags      []string    `json:"tags,omitempty"`
	CreatedAt time.Time   `json:"createdAt,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt,omitempty"`
}

// SupportsPlatform reports whether the template may render on p.
func (t Template) SupportsPlatform(p Platform) bool {
	for _, tp := range t.Platforms {
		if tp == p {
			return true
		}
	}
	return false
}

// Validate enforces template invariants: known platforms, message ids
// unique within the template, and carousel column indexes contiguous.
func (t Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.NetworkID == "" {
		return fmt.Errorf("template %q: networkId is required", t.ID)
	}
	for _, p := range t.Platforms {
		if !p.Valid() {
			return fmt.Errorf("template %q: unknown platform %q", t.ID, p)
		}
	}
	seen := make(map[string]bool, len(t.Messages))
	for _, m := range t.Messages {
		id := m.MessageID()
		if id == "" {
			return fmt.Errorf("template %q: message without id", t.ID)
		}
		if seen[id] {
			return fmt.Errorf("template %q: duplicate message id %q", t.ID, id)
		}
		seen[id] = true

		switch msg := m.(type) {
		case CarouselMessage:
			if err := msg.ValidateColumns(); err != nil {
				return fmt.Errorf("template %q message %q: %w", t.ID, id, err)
			}
		case ImageCarouselMessage:
			if err := msg.ValidateColumns(); err != nil {
				return fmt.Errorf("template %q message %q: %w", t.ID, id, err)
			}
		}
	}
	return nil
}

// GlobalAction maps a postback payload to a ContextAction, network-wide.
// Condition is an optional expr predicate over the conversation; when set,
// the payload only matches if the condition evaluates true.
type GlobalAction struct {
	ID        string        `json:"id"`
	NetworkID string        `json:"networkId"`
	Payload   string        `json:"payload"`
	Action    ContextAction `json:"action"`
	Condition string        `json:"condition,omitempty"`
	CreatedAt time.Time     `json:"createdAt,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt,omitempty"`
}

// OutgoingMessage is the final channel-agnostic payload returned by the
// core. A nil/empty Messages signals "no response".
type OutgoingMessage struct {
	UserID    string      `json:"userId"`
	ChannelID string      `json:"channelId"`
	Messages  MessageList `json:"messages,omitempty"`
}

// TemplateHookResponse is the result of contextualization.
// ShouldContextualize=false marks the message final: the caller must not
// run it through the hook again.
type TemplateHookResponse struct {
	OutgoingMessage     OutgoingMessage `json:"outgoingMessage"`
	ShouldContextualize bool            `json:"shouldContextualize"`
}

// BotContext is the unit of work: one inbound event plus everything the
// processor needs to resolve it. It is constructed once per request by
// the caller and treated as read-only inside the core.
type BotContext struct {
	TransactionID   string           `json:"transactionId"`
	NetworkID       string           `json:"networkId"`
	User            User             `json:"user"`
	Action          ContextAction    `json:"action"`
	Channel         Channel          `json:"channel"`
	Conversation    *Conversation    `json:"conversation,omitempty"`
	IncomingMessage *IncomingMessage `json:"incomingMessage,omitempty"`
}

// IntentConfidence returns the NLU confidence and whether one is present.
func (c BotContext) IntentConfidence() (float64, bool) {
	if c.Conversation == nil || c.Conversation.Intent == nil {
		return 0, false
	}
	return c.Conversation.Intent.Confidence, true
}

// WithOutgoing derives a BotContextWithOutgoing by pure extension; the
// receiver is copied, never mutated.
func (c BotContext) WithOutgoing(out OutgoingMessage) BotContextWithOutgoing {
	return BotContextWithOutgoing{BotContext: c, OutgoingMessage: out}
}

// BotContextWithOutgoing is a BotContext augmented with the resolved
// outgoing message, produced once resolution completes.
type BotContextWithOutgoing struct {
	BotContext
	OutgoingMessage OutgoingMessage `json:"outgoingMessage"`
}
