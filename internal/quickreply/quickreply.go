// Package quickreply attaches capability-filtered quick-reply affordances
// to outgoing messages. Platforms differ in which action types they can
// render as quick replies and in how many items they allow; the composer
// filters, caps, and keeps the caller's ordering.
package quickreply

import (
	"fmt"

	"github.com/megabot/resolution-core/pkg/models"
)

// OverflowWarning is returned (non-fatally, alongside the capped result)
// when more actions were supplied than the platform allows. Callers log
// it to surface misconfiguration; processing continues.
type OverflowWarning struct {
	Platform models.Platform
	Max      int
	Given    int
}

func (e *OverflowWarning) Error() string {
	return fmt.Sprintf("quick reply overflow on %s: %d actions given, max %d", e.Platform, e.Given, e.Max)
}

// capability describes what a platform renders as quick replies.
type capability struct {
	maxItems int
	types    map[models.ActionType]bool
}

// Documented platform limits: LINE and Messenger cap quick replies at 13
// items; the webchat widget renders at most 10.
var capabilities = map[models.Platform]capability{
	models.PlatformLINE: {
		maxItems: 13,
		types: map[models.ActionType]bool{
			models.ActionPostback:       true,
			models.ActionURI:            true,
			models.ActionMessage:        true,
			models.ActionDatetimePicker: true,
			models.ActionRichMenuSwitch: true,
			models.ActionDefault:        true,
		},
	},
	models.PlatformFacebook: {
		maxItems: 13,
		types: map[models.ActionType]bool{
			models.ActionPostback: true,
			models.ActionMessage:  true,
			models.ActionCall:     true,
		},
	},
	models.PlatformWebchat: {
		maxItems: 10,
		types: map[models.ActionType]bool{
			models.ActionPostback: true,
			models.ActionURI:      true,
			models.ActionMessage:  true,
		},
	},
}

// Supports reports whether the platform can render the action type as a
// quick reply.
func Supports(platform models.Platform, t models.ActionType) bool {
	c, ok := capabilities[platform]
	return ok && c.types[t]
}

// Max returns the platform's quick-reply item limit (0 for unknown).
func Max(platform models.Platform) int {
	return capabilities[platform].maxItems
}

// Attach returns a copy of msg with the given actions attached as quick
// replies, filtered to what the platform supports and capped at the
// platform maximum, preserving input order. When the cap truncates the
// list, the capped message is still returned together with a non-nil
// *OverflowWarning so callers can detect misconfiguration — nothing is
// dropped silently.
func Attach(msg models.IMessage, actions []models.IAction, platform models.Platform) (models.IMessage, error) {
	items := make([]models.QuickReplyItem, 0, len(actions))
	for _, a := range actions {
		items = append(items, models.QuickReplyItem{Type: "action", Action: a})
	}
	return AttachItems(msg, items, platform)
}

// AttachItems is Attach for pre-built quick-reply items. Item fields
// beyond the action (imageUrl, type) pass through the capability filter
// untouched.
func AttachItems(msg models.IMessage, items []models.QuickReplyItem, platform models.Platform) (models.IMessage, error) {
	c, ok := capabilities[platform]
	if !ok {
		return msg, nil
	}

	kept := make([]models.QuickReplyItem, 0, len(items))
	for _, item := range items {
		if item.Action == nil || !c.types[item.Action.ActionType()] {
			continue
		}
		kept = append(kept, item)
	}

	if len(kept) == 0 {
		return msg, nil
	}

	var warn error
	if len(kept) > c.maxItems {
		warn = &OverflowWarning{Platform: platform, Max: c.maxItems, Given: len(kept)}
		kept = kept[:c.maxItems]
	}

	return msg.WithQuickReply(&models.QuickReply{Items: kept}), warn
}
