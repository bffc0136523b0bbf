// Package normalizer converts platform-native action payloads into the
// internal action union and back.
//
// Normalization is total: every native action type maps to exactly one
// internal variant, and unrecognized native types become a DefaultAction
// carrying the raw payload — normalization never fails. Denormalization
// is partial: an internal variant with no rendering on the target
// platform fails with *UnsupportedActionError. For every native action
// valid on a platform, Denormalize(Normalize(a, p), p) == a.
package normalizer

import (
	"fmt"

	"github.com/megabot/resolution-core/pkg/models"
)

// UnsupportedActionError reports that an internal action variant has no
// equivalent on the target platform. Terminal for that platform; the
// caller may retry on an alternate channel.
type UnsupportedActionError struct {
	Action   models.ActionType
	Platform models.Platform
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("action %q has no rendering on platform %q", e.Action, e.Platform)
}

// Native type tags per platform.
const (
	lineTypePostback       = "postback"
	lineTypeURI            = "uri"
	lineTypeMessage        = "message"
	lineTypeDatetimePicker = "datetimepicker"
	lineTypeRichMenuSwitch = "richmenuswitch"

	fbTypePostback = "postback"
	fbTypeWebURL   = "web_url"
	fbTypePhone    = "phone_number"
)

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Normalize converts a platform-native action payload into the internal
// union. It is total over every platform's action set.
func Normalize(native map[string]any, platform models.Platform) models.IAction {
	switch platform {
	case models.PlatformLINE:
		return normalizeLINE(native)
	case models.PlatformFacebook:
		return normalizeFacebook(native)
	case models.PlatformWebchat:
		return normalizeWebchat(native)
	default:
		return defaultAction(native)
	}
}

func defaultAction(native map[string]any) models.DefaultAction {
	id := ""
	rest := make(map[string]any, len(native))
	for k, v := range native {
		if k == "id" {
			id, _ = v.(string)
			continue
		}
		rest[k] = v
	}
	return models.DefaultAction{ID: id, Native: rest}
}

func normalizeLINE(native map[string]any) models.IAction {
	switch str(native, "type") {
	case lineTypePostback:
		return models.PostbackAction{
			ID:          str(native, "id"),
			Label:       str(native, "label"),
			Data:        str(native, "data"),
			DisplayText: str(native, "displayText"),
		}
	case lineTypeURI:
		a := models.URIAction{
			ID:    str(native, "id"),
			Label: str(native, "label"),
			URI:   str(native, "uri"),
		}
		if alt, ok := native["altUri"].(map[string]any); ok {
			a.AltURI = &models.AltURI{Desktop: str(alt, "desktop")}
		}
		return a
	case lineTypeMessage:
		return models.MessageAction{
			ID:    str(native, "id"),
			Label: str(native, "label"),
			Text:  str(native, "text"),
		}
	case lineTypeDatetimePicker:
		return models.DatetimePickerAction{
			ID:      str(native, "id"),
			Label:   str(native, "label"),
			Data:    str(native, "data"),
			Mode:    str(native, "mode"),
			Initial: str(native, "initial"),
			Max:     str(native, "max"),
			Min:     str(native, "min"),
		}
	case lineTypeRichMenuSwitch:
		return models.RichMenuSwitchAction{
			ID:              str(native, "id"),
			Label:           str(native, "label"),
			RichMenuAliasID: str(native, "richMenuAliasId"),
			Data:            str(native, "data"),
		}
	default:
		// camera, cameraRoll, location, clipboard, ... — carried verbatim.
		return defaultAction(native)
	}
}

func normalizeFacebook(native map[string]any) models.IAction {
	switch str(native, "type") {
	case fbTypePostback:
		return models.PostbackAction{
			ID:    str(native, "id"),
			Label: str(native, "title"),
			Data:  str(native, "payload"),
		}
	case fbTypeWebURL:
		return models.URIAction{
			ID:    str(native, "id"),
			Label: str(native, "title"),
			URI:   str(native, "url"),
		}
	case fbTypePhone:
		return models.CallAction{
			ID:      str(native, "id"),
			Label:   str(native, "title"),
			PhoneNo: str(native, "payload"),
		}
	default:
		return defaultAction(native)
	}
}

// Webchat speaks the internal wire shape natively, so normalization is a
// field-for-field lift of the supported subset.
func normalizeWebchat(native map[string]any) models.IAction {
	switch models.ActionType(str(native, "type")) {
	case models.ActionPostback:
		return models.PostbackAction{
			ID:          str(native, "id"),
			Label:       str(native, "label"),
			Data:        str(native, "data"),
			DisplayText: str(native, "displayText"),
		}
	case models.ActionURI:
		return models.URIAction{
			ID:    str(native, "id"),
			Label: str(native, "label"),
			URI:   str(native, "uri"),
		}
	case models.ActionMessage:
		return models.MessageAction{
			ID:    str(native, "id"),
			Label: str(native, "label"),
			Text:  str(native, "text"),
		}
	default:
		return defaultAction(native)
	}
}

// Denormalize converts an internal action to the target platform's native
// payload. Fails with *UnsupportedActionError when the variant has no
// equivalent there; flow and template actions must be resolved to
// concrete messages before denormalization is attempted.
func Denormalize(action models.IAction, platform models.Platform) (map[string]any, error) {
	switch a := action.(type) {
	case models.DefaultAction:
		out := make(map[string]any, len(a.Native)+1)
		for k, v := range a.Native {
			out[k] = v
		}
		if a.ID != "" {
			out["id"] = a.ID
		}
		return out, nil
	case models.FlowAction:
		return nil, &UnsupportedActionError{Action: models.ActionFlow, Platform: platform}
	case models.TemplateAction:
		return nil, &UnsupportedActionError{Action: models.ActionTemplate, Platform: platform}
	}

	switch platform {
	case models.PlatformLINE:
		return denormalizeLINE(action)
	case models.PlatformFacebook:
		return denormalizeFacebook(action)
	case models.PlatformWebchat:
		return denormalizeWebchat(action)
	default:
		return nil, &UnsupportedActionError{Action: action.ActionType(), Platform: platform}
	}
}

func putNonEmpty(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func denormalizeLINE(action models.IAction) (map[string]any, error) {
	switch a := action.(type) {
	case models.PostbackAction:
		out := map[string]any{"type": lineTypePostback, "label": a.Label, "data": a.Data}
		putNonEmpty(out, "displayText", a.DisplayText)
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.URIAction:
		out := map[string]any{"type": lineTypeURI, "label": a.Label, "uri": a.URI}
		if a.AltURI != nil {
			out["altUri"] = map[string]any{"desktop": a.AltURI.Desktop}
		}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.MessageAction:
		out := map[string]any{"type": lineTypeMessage, "label": a.Label, "text": a.Text}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.DatetimePickerAction:
		out := map[string]any{"type": lineTypeDatetimePicker, "label": a.Label, "data": a.Data, "mode": a.Mode}
		putNonEmpty(out, "initial", a.Initial)
		putNonEmpty(out, "max", a.Max)
		putNonEmpty(out, "min", a.Min)
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.RichMenuSwitchAction:
		out := map[string]any{"type": lineTypeRichMenuSwitch, "richMenuAliasId": a.RichMenuAliasID, "data": a.Data}
		putNonEmpty(out, "label", a.Label)
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.CallAction:
		// LINE has no native call button.
		return nil, &UnsupportedActionError{Action: models.ActionCall, Platform: models.PlatformLINE}
	default:
		return nil, &UnsupportedActionError{Action: action.ActionType(), Platform: models.PlatformLINE}
	}
}

func denormalizeFacebook(action models.IAction) (map[string]any, error) {
	switch a := action.(type) {
	case models.PostbackAction:
		out := map[string]any{"type": fbTypePostback, "title": a.Label, "payload": a.Data}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.URIAction:
		out := map[string]any{"type": fbTypeWebURL, "title": a.Label, "url": a.URI}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.CallAction:
		out := map[string]any{"type": fbTypePhone, "title": a.Label, "payload": a.PhoneNo}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	default:
		return nil, &UnsupportedActionError{Action: action.ActionType(), Platform: models.PlatformFacebook}
	}
}

func denormalizeWebchat(action models.IAction) (map[string]any, error) {
	switch a := action.(type) {
	case models.PostbackAction:
		out := map[string]any{"type": string(models.ActionPostback), "label": a.Label, "data": a.Data}
		putNonEmpty(out, "displayText", a.DisplayText)
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.URIAction:
		out := map[string]any{"type": string(models.ActionURI), "label": a.Label, "uri": a.URI}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	case models.MessageAction:
		out := map[string]any{"type": string(models.ActionMessage), "label": a.Label, "text": a.Text}
		putNonEmpty(out, "id", a.ID)
		return out, nil
	default:
		return nil, &UnsupportedActionError{Action: action.ActionType(), Platform: models.PlatformWebchat}
	}
}
