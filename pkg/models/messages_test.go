package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	messages := []IMessage{
		TextMessage{ID: "m1", Text: "hello"},
		ImageMessage{ID: "m2", OriginalContentURL: "https://example.com/o.png", PreviewImageURL: "https://example.com/p.png"},
		ButtonsMessage{
			ID:      "m3",
			AltText: "menu",
			Title:   "Menu",
			Text:    "Pick one",
			Actions: ActionList{
				PostbackAction{ID: "a1", Label: "Buy", Data: "BUY"},
			},
		},
		CarouselMessage{
			ID:      "m4",
			AltText: "catalog",
			Columns: []CarouselItem{
				{ID: "c0", Title: "First", Text: "first", Actions: ActionList{PostbackAction{ID: "a1", Label: "Go", Data: "GO"}}, IsActive: true, Index: 0},
			},
		},
		ImageCarouselMessage{
			ID:      "m5",
			AltText: "gallery",
			Columns: []ImageCarouselItem{
				{ID: "c0", ImageURL: "https://example.com/0.png", Action: URIAction{ID: "a1", Label: "Open", URI: "https://example.com"}, IsActive: true, Index: 0},
			},
		},
		FlexMessage{ID: "m6", AltText: "receipt", Contents: map[string]any{"type": "bubble"}},
	}

	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("%T marshal: %v", m, err)
		}
		back, err := UnmarshalMessage(data)
		if err != nil {
			t.Fatalf("%T unmarshal: %v", m, err)
		}
		if !reflect.DeepEqual(back, m) {
			t.Errorf("round trip: got %#v, want %#v", back, m)
		}
	}
}

func TestMessageQuickReplyRoundTrip(t *testing.T) {
	msg := TextMessage{ID: "m1", Text: "pick"}.WithQuickReply(&QuickReply{
		Items: []QuickReplyItem{
			{Type: "action", Action: PostbackAction{ID: "a1", Label: "Yes", Data: "YES"}},
		},
	})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, msg) {
		t.Errorf("got %#v, want %#v", back, msg)
	}
}

func TestUnmarshalMessageUnknownTypeFails(t *testing.T) {
	_, err := UnmarshalMessage([]byte(`{"type":"hologram","id":"m1"}`))
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
	if !strings.Contains(err.Error(), "hologram") {
		t.Errorf("err = %v, want the offending type named", err)
	}
}

func TestWithQuickReplyCopies(t *testing.T) {
	original := TextMessage{ID: "m1", Text: "hello"}
	derived := original.WithQuickReply(&QuickReply{
		Items: []QuickReplyItem{{Type: "action", Action: MessageAction{ID: "a1", Label: "Hi", Text: "hi"}}},
	})

	if original.QuickReply != nil {
		t.Error("original mutated by WithQuickReply")
	}
	if derived.GetQuickReply() == nil {
		t.Error("derived message missing quick reply")
	}

	// Detaching on the derived copy leaves it untouched too.
	bare := derived.WithQuickReply(nil)
	if bare.GetQuickReply() != nil {
		t.Error("detach failed")
	}
	if derived.GetQuickReply() == nil {
		t.Error("derived mutated by second WithQuickReply")
	}
}

func TestCarouselValidateColumns(t *testing.T) {
	valid := CarouselMessage{
		ID: "m1",
		Columns: []CarouselItem{
			{ID: "c0", Text: "a", Index: 1},
			{ID: "c1", Text: "b", Index: 0},
		},
	}
	if err := valid.ValidateColumns(); err != nil {
		t.Errorf("valid columns rejected: %v", err)
	}

	duplicate := CarouselMessage{
		Columns: []CarouselItem{
			{ID: "c0", Index: 0},
			{ID: "c1", Index: 0},
		},
	}
	if err := duplicate.ValidateColumns(); err == nil {
		t.Error("duplicate index accepted")
	}

	gap := CarouselMessage{
		Columns: []CarouselItem{
			{ID: "c0", Index: 0},
			{ID: "c1", Index: 2},
		},
	}
	if err := gap.ValidateColumns(); err == nil {
		t.Error("non-contiguous index accepted")
	}
}

func TestActiveColumnsOrderedByIndex(t *testing.T) {
	m := CarouselMessage{
		Columns: []CarouselItem{
			{ID: "c2", IsActive: true, Index: 2},
			{ID: "c0", IsActive: true, Index: 0},
			{ID: "c1", IsActive: false, Index: 1},
		},
	}
	active := m.ActiveColumns()
	if len(active) != 2 {
		t.Fatalf("got %d active columns, want 2", len(active))
	}
	if active[0].ID != "c0" || active[1].ID != "c2" {
		t.Errorf("order = [%s %s], want [c0 c2]", active[0].ID, active[1].ID)
	}
}

func TestTemplateValidate(t *testing.T) {
	base := Template{
		ID:        "greeting",
		NetworkID: "net-1",
		Platforms: []Platform{PlatformLINE},
		Messages: MessageList{
			TextMessage{ID: "m1", Text: "hello"},
		},
	}
	if err := base.Validate(); err != nil {
		t.Errorf("valid template rejected: %v", err)
	}

	dup := base
	dup.Messages = MessageList{
		TextMessage{ID: "m1", Text: "a"},
		TextMessage{ID: "m1", Text: "b"},
	}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate message ids accepted")
	}

	badPlatform := base
	badPlatform.Platforms = []Platform{"telegram"}
	if err := badPlatform.Validate(); err == nil {
		t.Error("unknown platform accepted")
	}

	badCarousel := base
	badCarousel.Messages = MessageList{
		CarouselMessage{ID: "m1", Columns: []CarouselItem{{ID: "c0", Index: 5}}},
	}
	if err := badCarousel.Validate(); err == nil {
		t.Error("broken carousel indexes accepted")
	}
}

func TestTemplateSupportsPlatform(t *testing.T) {
	tpl := Template{Platforms: []Platform{PlatformLINE, PlatformWebchat}}
	if !tpl.SupportsPlatform(PlatformLINE) || tpl.SupportsPlatform(PlatformFacebook) {
		t.Errorf("platform filter broken: %v", tpl.Platforms)
	}
}
