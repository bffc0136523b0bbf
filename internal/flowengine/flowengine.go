// Package flowengine selects flow-engine endpoints from network
// configuration and forwards the bot context to them.
//
// An engine answers with either an outgoing message (it handled the
// conversation turn) or a chained action (it wants the processor to
// resolve something else). Chaining is bounded by the router's hop limit
// so two engines bouncing a context between each other cannot loop
// forever.
package flowengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/megabot/resolution-core/pkg/models"
)

// DefaultMaxHops bounds engine-to-engine action chaining per request.
const DefaultMaxHops = 5

// Response is a flow engine's answer to a forwarded context. Exactly one
// field is set: OutgoingMessage when the engine answered, ChainedAction
// when it wants the processor to re-enter resolution.
type Response struct {
	OutgoingMessage *models.OutgoingMessage `json:"outgoingMessage,omitempty"`
	ChainedAction   *models.ContextAction   `json:"chainedAction,omitempty"`
}

// HopLimitError reports that a request chained through more engines than
// the configured bound allows.
type HopLimitError struct {
	MaxHops int
}

func (e *HopLimitError) Error() string {
	return fmt.Sprintf("flow chaining exceeded %d hops", e.MaxHops)
}

// Router forwards bot contexts to configured flow engines.
type Router struct {
	client  *http.Client
	maxHops int
}

// NewRouter creates a flow-engine router. timeout applies to each engine
// call; maxHops bounds action chaining (<=0 selects DefaultMaxHops).
func NewRouter(timeout time.Duration, maxHops int) *Router {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Router{
		client:  &http.Client{Timeout: timeout},
		maxHops: maxHops,
	}
}

// MaxHops returns the configured chaining bound.
func (r *Router) MaxHops() int { return r.maxHops }

// Dispatch forwards botCtx to the engine configured under flowID in the
// network. The engine receives the full context, conversation included.
func (r *Router) Dispatch(ctx context.Context, network models.Network, flowID string, botCtx models.BotContext) (*Response, error) {
	engine, ok := network.FlowEngineByID(flowID)
	if !ok {
		return nil, fmt.Errorf("flow engine %q not configured in network %q", flowID, network.NetworkID)
	}

	payload, err := json.Marshal(botCtx)
	if err != nil {
		return nil, fmt.Errorf("encode bot context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, engine.FlowEngineEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build flow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn().
			Str("flow_engine", engine.FlowEngineID).
			Str("transaction", botCtx.TransactionID).
			Err(err).
			Msg("Flow engine call failed")
		return nil, fmt.Errorf("call flow engine %q: %w", engine.FlowEngineID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("flow engine %q returned status %d: %s", engine.FlowEngineID, resp.StatusCode, body)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode flow engine %q response: %w", engine.FlowEngineID, err)
	}
	if out.OutgoingMessage == nil && out.ChainedAction == nil {
		return nil, fmt.Errorf("flow engine %q returned neither message nor chained action", engine.FlowEngineID)
	}

	log.Debug().
		Str("flow_engine", engine.FlowEngineID).
		Str("transaction", botCtx.TransactionID).
		Dur("duration", time.Since(start)).
		Bool("chained", out.ChainedAction != nil).
		Msg("Flow engine answered")

	return &out, nil
}

// IsTimeout reports whether err represents a timed-out engine call. The
// processor recovers these through the network's default fallback instead
// of surfacing them.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
