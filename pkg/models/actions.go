// Package models defines the shared data model of the resolution core:
// the closed action and message unions, per-conversation context, and
// network-scoped configuration.
//
// Actions and messages are tagged unions on the wire, discriminated by a
// "type" field. In Go they are sealed interfaces: every variant lives in
// this package and every dispatch site switches exhaustively over the
// variant set.
package models

import (
	"encoding/json"
	"fmt"
)

// ActionType discriminates the IAction union.
type ActionType string

const (
	ActionPostback       ActionType = "postback"
	ActionURI            ActionType = "uri"
	ActionMessage        ActionType = "message"
	ActionDatetimePicker ActionType = "datetime_picker"
	ActionRichMenuSwitch ActionType = "richmenu_switch"
	ActionCall           ActionType = "call_action"
	ActionFlow           ActionType = "flow_action"
	ActionTemplate       ActionType = "template_action"
	// ActionDefault wraps a platform-native action the core has no
	// first-class variant for. The raw payload is carried through untouched.
	ActionDefault ActionType = "default"
)

// IAction is the closed union of all actionable elements a message can
// carry. Implementations are the *Action structs in this package only.
type IAction interface {
	ActionType() ActionType
	// ActionID returns the internal id of the action ("" for bare
	// platform-native defaults).
	ActionID() string

	isAction()
}

// AltURI is the desktop alternative for a URI action.
type AltURI struct {
	Desktop string `json:"desktop"`
}

// PostbackAction sends an opaque payload back to the bot when tapped.
type PostbackAction struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Data        string `json:"data"`
	DisplayText string `json:"displayText,omitempty"`
}

// URIAction opens a URI when tapped.
type URIAction struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	URI    string  `json:"uri"`
	AltURI *AltURI `json:"altUri,omitempty"`
}

// MessageAction sends a literal text message on behalf of the user.
type MessageAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// DatetimePickerAction opens a date/time picker; the picked value comes
// back as a postback with Data attached.
type DatetimePickerAction struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Data    string `json:"data"`
	Mode    string `json:"mode"` // "date", "time" or "datetime"
	Initial string `json:"initial,omitempty"`
	Max     string `json:"max,omitempty"`
	Min     string `json:"min,omitempty"`
}

// RichMenuSwitchAction switches the active rich menu alias.
type RichMenuSwitchAction struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	RichMenuAliasID string `json:"richMenuAliasId"`
	Data            string `json:"data"`
}

// CallAction dials a phone number.
type CallAction struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	PhoneNo string `json:"phoneNo"`
}

// FlowAction hands the conversation to a flow engine. It has no native
// platform rendering; the processor must resolve it before any message
// carrying it reaches a denormalizer.
type FlowAction struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	FlowID string `json:"flowId"`
}

// TemplateAction resolves to a template in the same network.
type TemplateAction struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	TemplateID string `json:"templateId"`
}

// DefaultAction carries a platform-native action payload verbatim. Native
// keeps the original object, including its native "type" value, so a
// round trip through the normalizer is lossless.
type DefaultAction struct {
	ID     string         `json:"id,omitempty"`
	Native map[string]any `json:"-"`
}

func (PostbackAction) ActionType() ActionType       { return ActionPostback }
func (URIAction) ActionType() ActionType            { return ActionURI }
func (MessageAction) ActionType() ActionType        { return ActionMessage }
func (DatetimePickerAction) ActionType() ActionType { return ActionDatetimePicker }
func (RichMenuSwitchAction) ActionType() ActionType { return ActionRichMenuSwitch }
func (CallAction) ActionType() ActionType           { return ActionCall }
func (FlowAction) ActionType() ActionType           { return ActionFlow }
func (TemplateAction) ActionType() ActionType       { return ActionTemplate }
func (DefaultAction) ActionType() ActionType        { return ActionDefault }

func (a PostbackAction) ActionID() string       { return a.ID }
func (a URIAction) ActionID() string            { return a.ID }
func (a MessageAction) ActionID() string        { return a.ID }
func (a DatetimePickerAction) ActionID() string { return a.ID }
func (a RichMenuSwitchAction) ActionID() string { return a.ID }
func (a CallAction) ActionID() string           { return a.ID }
func (a FlowAction) ActionID() string           { return a.ID }
func (a TemplateAction) ActionID() string       { return a.ID }
func (a DefaultAction) ActionID() string        { return a.ID }

func (PostbackAction) isAction()       {}
func (URIAction) isAction()            {}
func (MessageAction) isAction()        {}
func (DatetimePickerAction) isAction() {}
func (RichMenuSwitchAction) isAction() {}
func (CallAction) isAction()           {}
func (FlowAction) isAction()           {}
func (TemplateAction) isAction()       {}
func (DefaultAction) isAction()        {}

// ── JSON codec ───────────────────────────────────────────────
//
// Each variant marshals with its discriminator injected; UnmarshalAction
// dispatches on it. Decoding is total: an unknown or missing "type"
// becomes a DefaultAction wrapping the raw object.

func marshalTagged(t ActionType, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	obj["type"], _ = json.Marshal(t)
	return json.Marshal(obj)
}

func (a PostbackAction) MarshalJSON() ([]byte, error) {
	type alias PostbackAction
	return marshalTagged(ActionPostback, alias(a))
}

func (a URIAction) MarshalJSON() ([]byte, error) {
	type alias URIAction
	return marshalTagged(ActionURI, alias(a))
}

func (a MessageAction) MarshalJSON() ([]byte, error) {
	type alias MessageAction
	return marshalTagged(ActionMessage, alias(a))
}

func (a DatetimePickerAction) MarshalJSON() ([]byte, error) {
	type alias DatetimePickerAction
	return marshalTagged(ActionDatetimePicker, alias(a))
}

func (a RichMenuSwitchAction) MarshalJSON() ([]byte, error) {
	type alias RichMenuSwitchAction
	return marshalTagged(ActionRichMenuSwitch, alias(a))
}

func (a CallAction) MarshalJSON() ([]byte, error) {
	type alias CallAction
	return marshalTagged(ActionCall, alias(a))
}

func (a FlowAction) MarshalJSON() ([]byte, error) {
	type alias FlowAction
	return marshalTagged(ActionFlow, alias(a))
}

func (a TemplateAction) MarshalJSON() ([]byte, error) {
	type alias TemplateAction
	return marshalTagged(ActionTemplate, alias(a))
}

func (a DefaultAction) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(a.Native)+1)
	for k, v := range a.Native {
		obj[k] = v
	}
	if a.ID != "" {
		obj["id"] = a.ID
	}
	return json.Marshal(obj)
}

// UnmarshalAction decodes a single action object from its wire form.
func UnmarshalAction(data []byte) (IAction, error) {
	var probe struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}

	switch probe.Type {
	case ActionPostback:
		var a PostbackAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode postback action: %w", err)
		}
		return a, nil
	case ActionURI:
		var a URIAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode uri action: %w", err)
		}
		return a, nil
	case ActionMessage:
		var a MessageAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode message action: %w", err)
		}
		return a, nil
	case ActionDatetimePicker:
		var a DatetimePickerAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode datetime_picker action: %w", err)
		}
		return a, nil
	case ActionRichMenuSwitch:
		var a RichMenuSwitchAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode richmenu_switch action: %w", err)
		}
		return a, nil
	case ActionCall:
		var a CallAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode call_action: %w", err)
		}
		return a, nil
	case ActionFlow:
		var a FlowAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode flow_action: %w", err)
		}
		return a, nil
	case ActionTemplate:
		var a TemplateAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode template_action: %w", err)
		}
		return a, nil
	default:
		// Unknown or platform-native type: carry the raw object through.
		var native map[string]any
		if err := json.Unmarshal(data, &native); err != nil {
			return nil, fmt.Errorf("decode native action: %w", err)
		}
		id, _ := native["id"].(string)
		delete(native, "id")
		return DefaultAction{ID: id, Native: native}, nil
	}
}

// ActionList is a JSON-decodable slice of IAction.
type ActionList []IAction

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(ActionList, 0, len(raws))
	for _, raw := range raws {
		a, err := UnmarshalAction(raw)
		if err != nil {
			return err
		}
		out = append(out, a)
	}
	*l = out
	return nil
}

// ── Quick replies ────────────────────────────────────────────

// QuickReplyItem is one suggested action rendered alongside a message.
type QuickReplyItem struct {
	Type     string  `json:"type"` // always "action"
	ImageURL string  `json:"imageUrl,omitempty"`
	Action   IAction `json:"action"`
}

func (i *QuickReplyItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string          `json:"type"`
		ImageURL string          `json:"imageUrl"`
		Action   json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.Type = raw.Type
	i.ImageURL = raw.ImageURL
	if len(raw.Action) > 0 {
		a, err := UnmarshalAction(raw.Action)
		if err != nil {
			return err
		}
		i.Action = a
	}
	return nil
}

// QuickReply is the ordered set of suggested actions attached to a message.
type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}
