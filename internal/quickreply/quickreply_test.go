package quickreply

import (
	"errors"
	"fmt"
	"testing"

	"github.com/megabot/resolution-core/pkg/models"
)

func postbacks(n int) []models.IAction {
	out := make([]models.IAction, n)
	for i := range out {
		out[i] = models.PostbackAction{ID: fmt.Sprintf("a%d", i), Label: fmt.Sprintf("Option %d", i), Data: fmt.Sprintf("OPT_%d", i)}
	}
	return out
}

func TestAttachFiltersUnsupportedTypes(t *testing.T) {
	actions := []models.IAction{
		models.PostbackAction{ID: "a1", Label: "Yes", Data: "YES"},
		models.URIAction{ID: "a2", Label: "Site", URI: "https://example.com"},
		models.CallAction{ID: "a3", Label: "Call", PhoneNo: "+15550100"},
	}

	// Facebook renders postback and call but not uri.
	msg, err := Attach(models.TextMessage{ID: "m1", Text: "pick"}, actions, models.PlatformFacebook)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	qr := msg.GetQuickReply()
	if len(qr.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(qr.Items))
	}
	if qr.Items[0].Action.ActionID() != "a1" || qr.Items[1].Action.ActionID() != "a3" {
		t.Errorf("items = %v, want order preserved [a1 a3]", qr.Items)
	}
}

func TestAttachCapsWithOverflowWarning(t *testing.T) {
	msg, err := Attach(models.TextMessage{ID: "m1", Text: "pick"}, postbacks(15), models.PlatformLINE)

	var warn *OverflowWarning
	if !errors.As(err, &warn) {
		t.Fatalf("err = %v, want OverflowWarning", err)
	}
	if warn.Max != 13 || warn.Given != 15 {
		t.Errorf("warning = %+v, want max 13 given 15", warn)
	}
	// The capped message is still usable.
	qr := msg.GetQuickReply()
	if len(qr.Items) != 13 {
		t.Errorf("got %d items, want 13", len(qr.Items))
	}
	if qr.Items[0].Action.ActionID() != "a0" {
		t.Errorf("first item = %q, want a0", qr.Items[0].Action.ActionID())
	}
}

func TestAttachWebchatCap(t *testing.T) {
	msg, err := Attach(models.TextMessage{ID: "m1", Text: "pick"}, postbacks(10), models.PlatformWebchat)
	if err != nil {
		t.Fatalf("err = %v, want none at exactly the cap", err)
	}
	if got := len(msg.GetQuickReply().Items); got != 10 {
		t.Errorf("got %d items, want 10", got)
	}
}

func TestAttachAllFilteredLeavesMessageBare(t *testing.T) {
	actions := []models.IAction{
		models.URIAction{ID: "a1", Label: "Site", URI: "https://example.com"},
	}
	msg, err := Attach(models.TextMessage{ID: "m1", Text: "pick"}, actions, models.PlatformFacebook)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if msg.GetQuickReply() != nil {
		t.Error("quick reply attached despite no supported actions")
	}
}

func TestAttachDoesNotMutateOriginal(t *testing.T) {
	original := models.TextMessage{ID: "m1", Text: "pick"}
	if _, err := Attach(original, postbacks(2), models.PlatformLINE); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if original.QuickReply != nil {
		t.Error("original message mutated")
	}
}

func TestAttachItemsKeepsItemFields(t *testing.T) {
	items := []models.QuickReplyItem{
		{
			Type:     "action",
			ImageURL: "https://example.com/icon.png",
			Action:   models.PostbackAction{ID: "a1", Label: "Yes", Data: "YES"},
		},
		{
			Type:   "action",
			Action: models.URIAction{ID: "a2", Label: "Site", URI: "https://example.com"},
		},
	}

	msg, err := AttachItems(models.TextMessage{ID: "m1", Text: "pick"}, items, models.PlatformFacebook)
	if err != nil {
		t.Fatalf("AttachItems: %v", err)
	}
	qr := msg.GetQuickReply()
	if len(qr.Items) != 1 {
		t.Fatalf("got %d items, want the uri filtered out", len(qr.Items))
	}
	if qr.Items[0].ImageURL != "https://example.com/icon.png" {
		t.Errorf("imageUrl = %q, want preserved", qr.Items[0].ImageURL)
	}
}

func TestSupports(t *testing.T) {
	if !Supports(models.PlatformLINE, models.ActionDatetimePicker) {
		t.Error("LINE should support datetime_picker quick replies")
	}
	if Supports(models.PlatformFacebook, models.ActionURI) {
		t.Error("Facebook should not support uri quick replies")
	}
	if Supports(models.PlatformWebchat, models.ActionCall) {
		t.Error("webchat should not support call quick replies")
	}
}
