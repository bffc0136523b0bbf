package contextualizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/megabot/resolution-core/pkg/models"
)

func outgoingText(text string) models.OutgoingMessage {
	return models.OutgoingMessage{
		UserID:    "user-1",
		ChannelID: "chan-1",
		Messages:  models.MessageList{models.TextMessage{ID: "m1", Text: text}},
	}
}

func TestContextualizeTextTokens(t *testing.T) {
	user := models.User{UserID: "user-1", Info: map[string]any{"firstName": "Ada"}}
	botInfo := models.BotInfo{"botName": "Megabot"}

	resp := Contextualize(outgoingText("Hi {{firstName}}, I am {{botName}}."), botInfo, user)
	if resp.ShouldContextualize {
		t.Error("ShouldContextualize = true, want false after personalization")
	}
	got := resp.OutgoingMessage.Messages[0].(models.TextMessage).Text
	if got != "Hi Ada, I am Megabot." {
		t.Errorf("text = %q", got)
	}
}

func TestContextualizeUserWinsOverBotInfo(t *testing.T) {
	user := models.User{Info: map[string]any{"name": "Ada"}}
	botInfo := models.BotInfo{"name": "Megabot"}

	resp := Contextualize(outgoingText("{{name}}"), botInfo, user)
	if got := resp.OutgoingMessage.Messages[0].(models.TextMessage).Text; got != "Ada" {
		t.Errorf("text = %q, want user value to win", got)
	}
}

func TestContextualizeUnknownTokenLeftInPlace(t *testing.T) {
	resp := Contextualize(outgoingText("Hello {{missing}}"), nil, models.User{})
	if got := resp.OutgoingMessage.Messages[0].(models.TextMessage).Text; got != "Hello {{missing}}" {
		t.Errorf("text = %q, want unknown token untouched", got)
	}
}

func TestContextualizeDoesNotMutateInput(t *testing.T) {
	original := outgoingText("Hi {{firstName}}")
	Contextualize(original, nil, models.User{Info: map[string]any{"firstName": "Ada"}})
	if got := original.Messages[0].(models.TextMessage).Text; got != "Hi {{firstName}}" {
		t.Errorf("input mutated to %q", got)
	}
}

func TestContextualizeButtonsAndQuickReplies(t *testing.T) {
	msg := models.ButtonsMessage{
		ID:      "m1",
		AltText: "Menu for {{firstName}}",
		Title:   "{{botName}} menu",
		Text:    "Pick one, {{firstName}}",
		Actions: models.ActionList{
			models.PostbackAction{ID: "a1", Label: "Order for {{firstName}}", Data: "ORDER"},
		},
	}.WithQuickReply(&models.QuickReply{
		Items: []models.QuickReplyItem{
			{Type: "action", Action: models.MessageAction{ID: "q1", Label: "Hi {{botName}}", Text: "hello"}},
		},
	})
	out := models.OutgoingMessage{UserID: "user-1", ChannelID: "chan-1", Messages: models.MessageList{msg}}

	resp := Contextualize(out, models.BotInfo{"botName": "Megabot"}, models.User{Info: map[string]any{"firstName": "Ada"}})
	buttons := resp.OutgoingMessage.Messages[0].(models.ButtonsMessage)
	if buttons.AltText != "Menu for Ada" || buttons.Title != "Megabot menu" || buttons.Text != "Pick one, Ada" {
		t.Errorf("buttons = %+v", buttons)
	}
	if got := buttons.Actions[0].(models.PostbackAction).Label; got != "Order for Ada" {
		t.Errorf("action label = %q", got)
	}
	qr := buttons.GetQuickReply()
	if got := qr.Items[0].Action.(models.MessageAction).Label; got != "Hi Megabot" {
		t.Errorf("quick reply label = %q", got)
	}
}

func TestContextualizeFlexContents(t *testing.T) {
	msg := models.FlexMessage{
		ID:      "m1",
		AltText: "receipt",
		Contents: map[string]any{
			"type": "bubble",
			"body": map[string]any{
				"contents": []any{
					map[string]any{"type": "text", "text": "Thanks {{firstName}}"},
				},
			},
		},
	}
	out := models.OutgoingMessage{Messages: models.MessageList{msg}}

	resp := Contextualize(out, nil, models.User{Info: map[string]any{"firstName": "Ada"}})
	flex := resp.OutgoingMessage.Messages[0].(models.FlexMessage)
	body := flex.Contents["body"].(map[string]any)
	leaf := body["contents"].([]any)[0].(map[string]any)
	if leaf["text"] != "Thanks Ada" {
		t.Errorf("flex leaf = %v", leaf["text"])
	}
}

func hookContext(out models.OutgoingMessage) models.BotContextWithOutgoing {
	botCtx := models.BotContext{
		TransactionID: "tx-1",
		NetworkID:     "net-1",
		User:          models.User{UserID: "user-1", Info: map[string]any{"firstName": "Ada"}},
		Channel:       models.Channel{ChannelID: "chan-1", Platform: models.PlatformLINE},
	}
	return botCtx.WithOutgoing(out)
}

func hookNetwork(endpoint string) models.Network {
	return models.Network{
		NetworkID: "net-1",
		Config: models.NetworkConfig{
			Hooks: &models.NetworkHooks{Template: endpoint},
		},
	}
}

func TestSendHookTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got models.BotContextWithOutgoing
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode hook payload: %v", err)
		}
		if got.TransactionID != "tx-1" {
			t.Errorf("transactionId = %q", got.TransactionID)
		}
		json.NewEncoder(w).Encode(models.TemplateHookResponse{
			OutgoingMessage:     outgoingText("personalized by hook"),
			ShouldContextualize: true,
		})
	}))
	defer srv.Close()

	c := New(time.Second)
	resp := c.SendHookTemplate(context.Background(), hookNetwork(srv.URL), hookContext(outgoingText("raw")))
	if got := resp.OutgoingMessage.Messages[0].(models.TextMessage).Text; got != "personalized by hook" {
		t.Errorf("text = %q", got)
	}
	// The hook cannot re-arm contextualization.
	if resp.ShouldContextualize {
		t.Error("ShouldContextualize = true, want forced false")
	}
}

func TestSendHookTemplateFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(time.Second)
	original := outgoingText("Hi {{firstName}}")
	resp := c.SendHookTemplate(context.Background(), hookNetwork(srv.URL), hookContext(original))
	if resp.ShouldContextualize {
		t.Error("ShouldContextualize = true, want false")
	}
	// Degraded: unpersonalized, tokens intact, message not discarded.
	if got := resp.OutgoingMessage.Messages[0].(models.TextMessage).Text; got != "Hi {{firstName}}" {
		t.Errorf("text = %q, want original message", got)
	}
}

func TestPersonalizeWithoutHookSubstitutesLocally(t *testing.T) {
	c := New(time.Second)
	network := models.Network{NetworkID: "net-1"}
	resp := c.Personalize(context.Background(), network, hookContext(outgoingText("Hi {{firstName}}")))
	if got := resp.OutgoingMessage.Messages[0].(models.TextMessage).Text; got != "Hi Ada" {
		t.Errorf("text = %q", got)
	}
}
