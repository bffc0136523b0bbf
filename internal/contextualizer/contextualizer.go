// Package contextualizer personalizes resolved outgoing messages before
// they leave the core. Personalization is either local token substitution
// ({{token}} placeholders filled from user info and channel bot info) or,
// when the network configures a template hook, a round trip to that hook.
// A hook failure degrades to the unpersonalized message; the resolved
// message is never discarded.
package contextualizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/megabot/resolution-core/pkg/models"
)

// Contextualizer personalizes outgoing messages.
type Contextualizer struct {
	client *http.Client
}

// New creates a contextualizer. timeout applies to template-hook calls.
func New(timeout time.Duration) *Contextualizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Contextualizer{client: &http.Client{Timeout: timeout}}
}

// Personalize runs the contextualization step for a resolved context:
// through the network's template hook when one is configured, local token
// substitution otherwise. The result always carries
// shouldContextualize=false so callers never personalize twice.
func (c *Contextualizer) Personalize(ctx context.Context, network models.Network, botCtx models.BotContextWithOutgoing) models.TemplateHookResponse {
	if network.Config.Hooks != nil && network.Config.Hooks.Template != "" {
		return c.SendHookTemplate(ctx, network, botCtx)
	}
	return Contextualize(botCtx.OutgoingMessage, botCtx.Channel.BotInfo, botCtx.User)
}

// SendHookTemplate POSTs the full context to the network's template hook
// and returns its response. Any failure (transport, non-200, undecodable
// body) degrades to the unpersonalized message.
func (c *Contextualizer) SendHookTemplate(ctx context.Context, network models.Network, botCtx models.BotContextWithOutgoing) models.TemplateHookResponse {
	fallback := models.TemplateHookResponse{
		OutgoingMessage:     botCtx.OutgoingMessage,
		ShouldContextualize: false,
	}

	endpoint := ""
	if network.Config.Hooks != nil {
		endpoint = network.Config.Hooks.Template
	}
	if endpoint == "" {
		return fallback
	}

	resp, err := c.callHook(ctx, endpoint, botCtx)
	if err != nil {
		log.Warn().
			Str("transaction", botCtx.TransactionID).
			Str("network", network.NetworkID).
			Str("hook", endpoint).
			Err(err).
			Msg("Template hook failed, sending unpersonalized message")
		return fallback
	}
	resp.ShouldContextualize = false
	return *resp
}

func (c *Contextualizer) callHook(ctx context.Context, endpoint string, botCtx models.BotContextWithOutgoing) (*models.TemplateHookResponse, error) {
	payload, err := json.Marshal(botCtx)
	if err != nil {
		return nil, fmt.Errorf("encode hook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("hook returned status %d: %s", res.StatusCode, body)
	}

	var out models.TemplateHookResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode hook response: %w", err)
	}
	return &out, nil
}

// Contextualize substitutes {{token}} placeholders in the message's
// human-visible fields (text, labels, titles, alt text) with values from
// the user's info map and the channel's bot info. User values win over
// bot values on key collision; unknown tokens are left in place.
func Contextualize(out models.OutgoingMessage, botInfo models.BotInfo, user models.User) models.TemplateHookResponse {
	vars := make(map[string]string, len(botInfo)+len(user.Info))
	for k, v := range botInfo {
		vars[k] = v
	}
	for k, v := range user.Info {
		vars[k] = fmt.Sprintf("%v", v)
	}

	personalized := out
	personalized.Messages = make(models.MessageList, len(out.Messages))
	for i, msg := range out.Messages {
		personalized.Messages[i] = contextualizeMessage(msg, vars)
	}

	return models.TemplateHookResponse{
		OutgoingMessage:     personalized,
		ShouldContextualize: false,
	}
}

// render fills {{key}} placeholders from vars.
func render(s string, vars map[string]string) string {
	if s == "" || !strings.Contains(s, "{{") {
		return s
	}
	for key, val := range vars {
		s = strings.ReplaceAll(s, "{{"+key+"}}", val)
	}
	return s
}

func contextualizeMessage(msg models.IMessage, vars map[string]string) models.IMessage {
	switch m := msg.(type) {
	case models.TextMessage:
		m.Text = render(m.Text, vars)
		return withQuickReplyVars(m, vars)
	case models.ButtonsMessage:
		m.AltText = render(m.AltText, vars)
		m.Title = render(m.Title, vars)
		m.Text = render(m.Text, vars)
		m.Actions = contextualizeActions(m.Actions, vars)
		return withQuickReplyVars(m, vars)
	case models.ImageMapMessage:
		m.AltText = render(m.AltText, vars)
		return withQuickReplyVars(m, vars)
	case models.FlexMessage:
		m.AltText = render(m.AltText, vars)
		m.Contents = renderAny(m.Contents, vars).(map[string]any)
		return withQuickReplyVars(m, vars)
	case models.CarouselMessage:
		m.AltText = render(m.AltText, vars)
		cols := make([]models.CarouselItem, len(m.Columns))
		for i, col := range m.Columns {
			col.Title = render(col.Title, vars)
			col.Text = render(col.Text, vars)
			col.Actions = contextualizeActions(col.Actions, vars)
			cols[i] = col
		}
		m.Columns = cols
		return withQuickReplyVars(m, vars)
	case models.ImageCarouselMessage:
		m.AltText = render(m.AltText, vars)
		cols := make([]models.ImageCarouselItem, len(m.Columns))
		for i, col := range m.Columns {
			if col.Action != nil {
				col.Action = contextualizeAction(col.Action, vars)
			}
			cols[i] = col
		}
		m.Columns = cols
		return withQuickReplyVars(m, vars)
	default:
		return withQuickReplyVars(msg, vars)
	}
}

// withQuickReplyVars personalizes quick-reply labels in place of the
// stored ones.
func withQuickReplyVars(msg models.IMessage, vars map[string]string) models.IMessage {
	qr := msg.GetQuickReply()
	if qr == nil || len(qr.Items) == 0 {
		return msg
	}
	items := make([]models.QuickReplyItem, len(qr.Items))
	for i, item := range qr.Items {
		item.Action = contextualizeAction(item.Action, vars)
		items[i] = item
	}
	return msg.WithQuickReply(&models.QuickReply{Items: items})
}

func contextualizeActions(actions models.ActionList, vars map[string]string) models.ActionList {
	out := make(models.ActionList, len(actions))
	for i, a := range actions {
		out[i] = contextualizeAction(a, vars)
	}
	return out
}

func contextualizeAction(action models.IAction, vars map[string]string) models.IAction {
	switch a := action.(type) {
	case models.PostbackAction:
		a.Label = render(a.Label, vars)
		a.DisplayText = render(a.DisplayText, vars)
		return a
	case models.URIAction:
		a.Label = render(a.Label, vars)
		return a
	case models.MessageAction:
		a.Label = render(a.Label, vars)
		a.Text = render(a.Text, vars)
		return a
	case models.DatetimePickerAction:
		a.Label = render(a.Label, vars)
		return a
	case models.RichMenuSwitchAction:
		a.Label = render(a.Label, vars)
		return a
	case models.CallAction:
		a.Label = render(a.Label, vars)
		return a
	case models.FlowAction:
		a.Label = render(a.Label, vars)
		return a
	case models.TemplateAction:
		a.Label = render(a.Label, vars)
		return a
	default:
		return action
	}
}

// renderAny walks an arbitrary JSON-shaped value (flex contents)
// substituting tokens in every string leaf.
func renderAny(v any, vars map[string]string) any {
	switch val := v.(type) {
	case string:
		return render(val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = renderAny(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = renderAny(item, vars)
		}
		return out
	default:
		return v
	}
}
