// Package processor implements the context-action state machine, the core
// of the resolution pipeline. Given a BotContext and its network, it
// decides whether the action resolves to a template, a flow engine, a
// registered global action, or the network's default fallback — and fails
// with *UnresolvedActionError when none match.
//
// Resolution order per request:
//  1. Template: action names a template id in-network whose platforms
//     include the requesting channel's platform
//  2. Flow: action names a configured flow engine (skipped when the NLU
//     confidence is below the network threshold)
//  3. Global action: action matches a registered payload whose condition
//     (if any) holds for the conversation
//  4. Default fallback: substituted at most once, then the ladder reruns
//
// Flow engines may chain new actions; chaining shares a per-request hop
// budget so resolution always terminates.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/megabot/resolution-core/internal/directory"
	"github.com/megabot/resolution-core/internal/flowengine"
	"github.com/megabot/resolution-core/internal/quickreply"
	"github.com/megabot/resolution-core/internal/store"
	"github.com/megabot/resolution-core/pkg/models"
)

// UnresolvedActionError reports that no template, flow, global action, or
// fallback matched. Terminal; surfaced to the caller and never retried.
type UnresolvedActionError struct {
	Action    string
	NetworkID string
}

func (e *UnresolvedActionError) Error() string {
	return fmt.Sprintf("action %q unresolved in network %q", e.Action, e.NetworkID)
}

// FlowDispatcher forwards a bot context to a configured flow engine.
// Satisfied by *flowengine.Router; narrowed to an interface so tests can
// stub engine behavior.
type FlowDispatcher interface {
	Dispatch(ctx context.Context, network models.Network, flowID string, botCtx models.BotContext) (*flowengine.Response, error)
	MaxHops() int
}

// Processor resolves context actions against the store and the network's
// flow-engine configuration.
type Processor struct {
	store store.Store
	flows FlowDispatcher

	// conditions caches compiled global-action predicates by condition
	// string; the env shape is fixed so one compilation serves every
	// request.
	conditions sync.Map
}

// New creates a processor.
func New(s store.Store, flows FlowDispatcher) *Processor {
	return &Processor{store: s, flows: flows}
}

// ProcessAction resolves the context's action end to end: it fetches the
// network through the injected lookup, runs the resolution ladder, and
// substitutes the default fallback at most once when the ladder (or a
// timed-out flow-engine call) comes up empty.
func (p *Processor) ProcessAction(ctx context.Context, botCtx models.BotContext, networks directory.NetworkService) (*models.OutgoingMessage, error) {
	network, err := networks.GetNetworkByID(ctx, botCtx.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("resolve network %q: %w", botCtx.NetworkID, err)
	}

	out, err := p.resolve(ctx, botCtx, *network, botCtx.Action, resolveOpts{
		allowGlobal: true,
		gateFlow:    true,
		hops:        p.flows.MaxHops(),
	})
	if err == nil {
		return out, nil
	}

	// One-shot fallback: covers both an exhausted ladder and a timed-out
	// flow-engine call. Never chains into a second substitution.
	var unresolved *UnresolvedActionError
	fb := network.Config.DefaultFallbackAction
	if fb != nil && (errors.As(err, &unresolved) || flowengine.IsTimeout(err)) {
		log.Info().
			Str("transaction", botCtx.TransactionID).
			Str("action", botCtx.Action.Action).
			Str("fallback", fb.Action).
			Msg("Substituting default fallback action")
		return p.resolve(ctx, botCtx, *network, *fb, resolveOpts{
			allowGlobal: true,
			gateFlow:    false,
			hops:        p.flows.MaxHops(),
		})
	}

	return nil, err
}

// resolveOpts tunes one pass of the resolution ladder.
type resolveOpts struct {
	// allowGlobal permits step 3. Disabled while resolving an action a
	// global action mapped to, so globals cannot chain into each other.
	allowGlobal bool
	// gateFlow applies the confidence gate to flow dispatch. Only the
	// original inbound action is gated; fallback substitutes and
	// engine-chained actions pass.
	gateFlow bool
	// hops is the remaining flow-chaining budget.
	hops int
}

func (p *Processor) resolve(ctx context.Context, botCtx models.BotContext, network models.Network, action models.ContextAction, opts resolveOpts) (*models.OutgoingMessage, error) {
	// Step 1: template dispatch. Platform membership is part of the
	// match: a template whose platforms exclude the requesting channel
	// falls through to the remaining steps.
	tpl, err := p.FindTemplateByAction(ctx, botCtx.NetworkID, action.Action)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	if tpl != nil {
		if tpl.SupportsPlatform(botCtx.Channel.Platform) {
			out := p.processTemplate(botCtx, tpl)
			return &out, nil
		}
		log.Debug().
			Str("transaction", botCtx.TransactionID).
			Str("template", tpl.ID).
			Str("platform", string(botCtx.Channel.Platform)).
			Msg("Template not eligible for platform, falling through")
	}

	// Step 2: flow dispatch, unless the confidence gate holds it back.
	if _, ok := network.FlowEngineByID(action.Action); ok {
		if opts.gateFlow && p.belowConfidenceThreshold(botCtx, network) {
			log.Debug().
				Str("transaction", botCtx.TransactionID).
				Str("flow", action.Action).
				Float64("threshold", network.Config.ConfidenceThreshold).
				Msg("Confidence below threshold, skipping flow dispatch")
		} else {
			return p.dispatchFlow(ctx, botCtx, network, action, opts.hops)
		}
	}

	// Step 3: global action.
	if opts.allowGlobal {
		mapped, err := p.GetGlobalActionByPayload(ctx, botCtx.NetworkID, action.Action, botCtx.Conversation)
		if err != nil && !store.IsNotFound(err) {
			return nil, err
		}
		if mapped != nil {
			next := opts
			next.allowGlobal = false
			next.gateFlow = false
			return p.resolve(ctx, botCtx, network, *mapped, next)
		}
	}

	return nil, &UnresolvedActionError{Action: action.Action, NetworkID: botCtx.NetworkID}
}

// belowConfidenceThreshold reports whether the NLU confidence is present
// and under the network threshold. Absent confidence never gates.
func (p *Processor) belowConfidenceThreshold(botCtx models.BotContext, network models.Network) bool {
	confidence, ok := botCtx.IntentConfidence()
	return ok && confidence < network.Config.ConfidenceThreshold
}

// dispatchFlow forwards the context to the engine and follows chained
// actions until an answer, the hop budget, or an error.
func (p *Processor) dispatchFlow(ctx context.Context, botCtx models.BotContext, network models.Network, action models.ContextAction, hops int) (*models.OutgoingMessage, error) {
	if hops <= 0 {
		return nil, &flowengine.HopLimitError{MaxHops: p.flows.MaxHops()}
	}

	forwarded := botCtx
	forwarded.Action = action
	resp, err := p.flows.Dispatch(ctx, network, action.Action, forwarded)
	if err != nil {
		return nil, err
	}
	if resp.OutgoingMessage != nil {
		return resp.OutgoingMessage, nil
	}

	// Engine chained a new action: re-enter the ladder with one less hop.
	return p.resolve(ctx, botCtx, network, *resp.ChainedAction, resolveOpts{
		allowGlobal: true,
		gateFlow:    false,
		hops:        hops - 1,
	})
}

// ProcessFlowAction performs a single engine call without following
// chains; the caller receives either the answer or the chained action.
func (p *Processor) ProcessFlowAction(ctx context.Context, botCtx models.BotContext, action models.ContextAction, network models.Network) (*flowengine.Response, error) {
	forwarded := botCtx
	forwarded.Action = action
	return p.flows.Dispatch(ctx, network, action.Action, forwarded)
}

// ProcessTemplateAction resolves the action to its template and builds
// the outgoing message from it.
func (p *Processor) ProcessTemplateAction(ctx context.Context, botCtx models.BotContext, network models.Network, action models.ContextAction) (*models.OutgoingMessage, error) {
	tpl, err := p.FindTemplateByAction(ctx, network.NetworkID, action.Action)
	if err != nil {
		return nil, err
	}
	out := p.processTemplate(botCtx, tpl)
	return &out, nil
}

// processTemplate builds an OutgoingMessage from the template's
// platform-eligible messages. Inactive carousel columns are stripped and
// stored quick replies are re-composed through the capability filter.
func (p *Processor) processTemplate(botCtx models.BotContext, tpl *models.Template) models.OutgoingMessage {
	out := models.OutgoingMessage{
		UserID:    botCtx.User.UserID,
		ChannelID: botCtx.Channel.ChannelID,
	}

	platform := botCtx.Channel.Platform
	if !tpl.SupportsPlatform(platform) {
		log.Debug().
			Str("transaction", botCtx.TransactionID).
			Str("template", tpl.ID).
			Str("platform", string(platform)).
			Msg("Template not eligible for platform, returning empty message set")
		return out
	}

	for _, msg := range tpl.Messages {
		msg = stripInactiveColumns(msg)

		if qr := msg.GetQuickReply(); qr != nil {
			composed, warn := quickreply.AttachItems(msg.WithQuickReply(nil), qr.Items, platform)
			if warn != nil {
				log.Warn().
					Str("transaction", botCtx.TransactionID).
					Str("template", tpl.ID).
					Str("message", msg.MessageID()).
					Err(warn).
					Msg("Quick reply overflow")
			}
			msg = composed
		}

		out.Messages = append(out.Messages, msg)
	}

	return out
}

// stripInactiveColumns drops carousel columns not eligible for rendering.
func stripInactiveColumns(msg models.IMessage) models.IMessage {
	switch m := msg.(type) {
	case models.CarouselMessage:
		m.Columns = m.ActiveColumns()
		return m
	case models.ImageCarouselMessage:
		m.Columns = m.ActiveColumns()
		return m
	default:
		return msg
	}
}

// FindTemplateByAction returns the in-network template whose id equals
// the action string, or *store.ErrNotFound.
func (p *Processor) FindTemplateByAction(ctx context.Context, networkID, action string) (*models.Template, error) {
	return p.store.GetTemplate(ctx, networkID, action)
}

// IsTemplateAction reports whether the action string names a template in
// the network.
func (p *Processor) IsTemplateAction(ctx context.Context, networkID, action string) (bool, error) {
	_, err := p.store.GetTemplate(ctx, networkID, action)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetGlobalActionByPayload returns the ContextAction mapped to the
// payload, honoring registration order and per-entry conditions, or
// *store.ErrNotFound when nothing matches.
func (p *Processor) GetGlobalActionByPayload(ctx context.Context, networkID, payload string, conv *models.Conversation) (*models.ContextAction, error) {
	candidates, err := p.store.GetGlobalActionsByPayload(ctx, networkID, payload)
	if err != nil {
		return nil, err
	}

	for _, ga := range candidates {
		if ga.Condition == "" {
			action := ga.Action
			return &action, nil
		}
		ok, err := p.evalCondition(ga.Condition, conv)
		if err != nil {
			log.Warn().
				Str("global_action", ga.ID).
				Str("network", networkID).
				Err(err).
				Msg("Global action condition failed to evaluate, skipping entry")
			continue
		}
		if ok {
			action := ga.Action
			return &action, nil
		}
	}

	return nil, &store.ErrNotFound{Entity: "global action", Key: payload}
}

// conditionEnv builds the expr environment a condition sees: the intent
// name, its confidence, and the extracted entities by name.
func conditionEnv(conv *models.Conversation) map[string]any {
	env := map[string]any{
		"intentName": "",
		"confidence": 0.0,
		"entities":   map[string]string{},
	}
	if conv != nil {
		if conv.Intent != nil {
			env["intentName"] = conv.Intent.IntentName
			env["confidence"] = conv.Intent.Confidence
		}
		entities := make(map[string]string, len(conv.Entities))
		for _, e := range conv.Entities {
			entities[e.EntityName] = e.EntityValue
		}
		env["entities"] = entities
	}
	return env
}

// ValidateCondition checks that a global-action condition compiles as a
// boolean predicate. Used at registration time so broken conditions are
// rejected before they can silently skip entries at resolve time.
func ValidateCondition(condition string) error {
	_, err := expr.Compile(condition, expr.Env(conditionEnv(nil)), expr.AsBool())
	return err
}

// compiledCondition returns the cached program for a condition, compiling
// on first use.
func (p *Processor) compiledCondition(condition string) (*vm.Program, error) {
	if cached, ok := p.conditions.Load(condition); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(condition, expr.Env(conditionEnv(nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition: %w", err)
	}
	p.conditions.Store(condition, program)
	return program, nil
}

// evalCondition evaluates an expr predicate against the conversation.
func (p *Processor) evalCondition(condition string, conv *models.Conversation) (bool, error) {
	program, err := p.compiledCondition(condition)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, conditionEnv(conv))
	if err != nil {
		return false, fmt.Errorf("run condition: %w", err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition is not a boolean")
	}
	return result, nil
}
