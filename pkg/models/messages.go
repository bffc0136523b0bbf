package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MessageType discriminates the IMessage union.
type MessageType string

const (
	MessageText          MessageType = "text"
	MessageImage         MessageType = "image"
	MessageVideo         MessageType = "video"
	MessageButtons       MessageType = "buttons"
	MessageImageMap      MessageType = "imagemap"
	MessageFlex          MessageType = "flex"
	MessageCarousel      MessageType = "carousel"
	MessageImageCarousel MessageType = "image_carousel"
)

// IMessage is the closed union of renderable message variants. Every
// variant carries an id and an optional quick-reply set.
type IMessage interface {
	MessageType() MessageType
	MessageID() string
	GetQuickReply() *QuickReply
	// WithQuickReply returns a copy of the message with the quick-reply
	// set replaced. The receiver is never mutated.
	WithQuickReply(qr *QuickReply) IMessage

	isMessage()
}

// TextMessage is plain text.
type TextMessage struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

// ImageMessage is a static image.
type ImageMessage struct {
	ID                 string      `json:"id"`
	OriginalContentURL string      `json:"originalContentUrl"`
	PreviewImageURL    string      `json:"previewImageUrl"`
	QuickReply         *QuickReply `json:"quickReply,omitempty"`
}

// VideoMessage is a playable video with a preview image.
type VideoMessage struct {
	ID                 string      `json:"id"`
	OriginalContentURL string      `json:"originalContentUrl"`
	PreviewImageURL    string      `json:"previewImageUrl"`
	QuickReply         *QuickReply `json:"quickReply,omitempty"`
}

// ButtonsMessage is a title/text card with up to a handful of actions.
type ButtonsMessage struct {
	ID                string      `json:"id"`
	AltText           string      `json:"altText"`
	Title             string      `json:"title,omitempty"`
	Text              string      `json:"text"`
	ThumbnailImageURL string      `json:"thumbnailImageUrl,omitempty"`
	Actions           ActionList  `json:"actions"`
	QuickReply        *QuickReply `json:"quickReply,omitempty"`
}

// Area is a tappable rectangle inside an image map.
type Area struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageMapAction binds an action to a tappable area of an image map.
type ImageMapAction struct {
	Action IAction `json:"action"`
	Area   Area    `json:"area"`
}

func (a *ImageMapAction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Action json.RawMessage `json:"action"`
		Area   Area            `json:"area"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Area = raw.Area
	if len(raw.Action) > 0 {
		act, err := UnmarshalAction(raw.Action)
		if err != nil {
			return err
		}
		a.Action = act
	}
	return nil
}

// ImageMapMessage is a single image with tappable regions.
type ImageMapMessage struct {
	ID         string           `json:"id"`
	AltText    string           `json:"altText"`
	ImgURL     string           `json:"imgUrl"`
	ImgWidth   int              `json:"imgWidth"`
	ImgHeight  int              `json:"imgHeight"`
	Actions    []ImageMapAction `json:"actions"`
	QuickReply *QuickReply      `json:"quickReply,omitempty"`
}

// FlexMessage carries a free-form flex container payload.
type FlexMessage struct {
	ID         string         `json:"id"`
	AltText    string         `json:"altText"`
	Contents   map[string]any `json:"contents"`
	QuickReply *QuickReply    `json:"quickReply,omitempty"`
}

// CarouselItem is one column of a carousel. Index is 0-based and must be
// unique and contiguous across the column list; only active items are
// eligible for rendering.
type CarouselItem struct {
	ID                string     `json:"id"`
	ThumbnailImageURL string     `json:"thumbnailImageUrl,omitempty"`
	Title             string     `json:"title,omitempty"`
	Text              string     `json:"text"`
	Actions           ActionList `json:"actions"`
	IsActive          bool       `json:"isActive"`
	Index             int        `json:"index"`
}

// CarouselMessage is a horizontally scrollable list of button cards.
type CarouselMessage struct {
	ID         string         `json:"id"`
	AltText    string         `json:"altText"`
	Columns    []CarouselItem `json:"columns"`
	QuickReply *QuickReply    `json:"quickReply,omitempty"`
}

// ImageCarouselItem is one column of an image carousel.
type ImageCarouselItem struct {
	ID       string  `json:"id"`
	ImageURL string  `json:"imageUrl"`
	Action   IAction `json:"action"`
	IsActive bool    `json:"isActive"`
	Index    int     `json:"index"`
}

func (i *ImageCarouselItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		ImageURL string          `json:"imageUrl"`
		Action   json.RawMessage `json:"action"`
		IsActive bool            `json:"isActive"`
		Index    int             `json:"index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.ID = raw.ID
	i.ImageURL = raw.ImageURL
	i.IsActive = raw.IsActive
	i.Index = raw.Index
	if len(raw.Action) > 0 {
		act, err := UnmarshalAction(raw.Action)
		if err != nil {
			return err
		}
		i.Action = act
	}
	return nil
}

// ImageCarouselMessage is a horizontally scrollable list of images, each
// bound to a single action.
type ImageCarouselMessage struct {
	ID         string              `json:"id"`
	AltText    string              `json:"altText"`
	Columns    []ImageCarouselItem `json:"columns"`
	QuickReply *QuickReply         `json:"quickReply,omitempty"`
}

func (TextMessage) MessageType() MessageType          { return MessageText }
func (ImageMessage) MessageType() MessageType         { return MessageImage }
func (VideoMessage) MessageType() MessageType         { return MessageVideo }
func (ButtonsMessage) MessageType() MessageType       { return MessageButtons }
func (ImageMapMessage) MessageType() MessageType      { return MessageImageMap }
func (FlexMessage) MessageType() MessageType          { return MessageFlex }
func (CarouselMessage) MessageType() MessageType      { return MessageCarousel }
func (ImageCarouselMessage) MessageType() MessageType { return MessageImageCarousel }

func (m TextMessage) MessageID() string          { return m.ID }
func (m ImageMessage) MessageID() string         { return m.ID }
func (m VideoMessage) MessageID() string         { return m.ID }
func (m ButtonsMessage) MessageID() string       { return m.ID }
func (m ImageMapMessage) MessageID() string      { return m.ID }
func (m FlexMessage) MessageID() string          { return m.ID }
func (m CarouselMessage) MessageID() string      { return m.ID }
func (m ImageCarouselMessage) MessageID() string { return m.ID }

func (m TextMessage) GetQuickReply() *QuickReply          { return m.QuickReply }
func (m ImageMessage) GetQuickReply() *QuickReply         { return m.QuickReply }
func (m VideoMessage) GetQuickReply() *QuickReply         { return m.QuickReply }
func (m ButtonsMessage) GetQuickReply() *QuickReply       { return m.QuickReply }
func (m ImageMapMessage) GetQuickReply() *QuickReply      { return m.QuickReply }
func (m FlexMessage) GetQuickReply() *QuickReply          { return m.QuickReply }
func (m CarouselMessage) GetQuickReply() *QuickReply      { return m.QuickReply }
func (m ImageCarouselMessage) GetQuickReply() *QuickReply { return m.QuickReply }

// Value receivers make WithQuickReply a copy-on-write: the struct is
// copied into m before the field is set.

func (m TextMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m ImageMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m VideoMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m ButtonsMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m ImageMapMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m FlexMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m CarouselMessage) WithQuickReply(qr *QuickReply) IMessage { m.QuickReply = qr; return m }

func (m ImageCarouselMessage) WithQuickReply(qr *QuickReply) IMessage {
	m.QuickReply = qr
	return m
}

func (TextMessage) isMessage()          {}
func (ImageMessage) isMessage()         {}
func (VideoMessage) isMessage()         {}
func (ButtonsMessage) isMessage()       {}
func (ImageMapMessage) isMessage()      {}
func (FlexMessage) isMessage()          {}
func (CarouselMessage) isMessage()      {}
func (ImageCarouselMessage) isMessage() {}

// ── JSON codec ───────────────────────────────────────────────

func (m TextMessage) MarshalJSON() ([]byte, error) {
	type alias TextMessage
	return marshalTaggedMessage(MessageText, alias(m))
}

func (m ImageMessage) MarshalJSON() ([]byte, error) {
	type alias ImageMessage
	return marshalTaggedMessage(MessageImage, alias(m))
}

func (m VideoMessage) MarshalJSON() ([]byte, error) {
	type alias VideoMessage
	return marshalTaggedMessage(MessageVideo, alias(m))
}

func (m ButtonsMessage) MarshalJSON() ([]byte, error) {
	type alias ButtonsMessage
	return marshalTaggedMessage(MessageButtons, alias(m))
}

func (m ImageMapMessage) MarshalJSON() ([]byte, error) {
	type alias ImageMapMessage
	return marshalTaggedMessage(MessageImageMap, alias(m))
}

func (m FlexMessage) MarshalJSON() ([]byte, error) {
	type alias FlexMessage
	return marshalTaggedMessage(MessageFlex, alias(m))
}

func (m CarouselMessage) MarshalJSON() ([]byte, error) {
	type alias CarouselMessage
	return marshalTaggedMessage(MessageCarousel, alias(m))
}

func (m ImageCarouselMessage) MarshalJSON() ([]byte, error) {
	type alias ImageCarouselMessage
	return marshalTaggedMessage(MessageImageCarousel, alias(m))
}

func marshalTaggedMessage(t MessageType, v any) ([]byte, error) {
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

// UnmarshalMessage decodes a single message object from its wire form.
// Unlike actions, the message set is closed on the wire too: an unknown
// type tag is an error.
func UnmarshalMessage(data []byte) (IMessage, error) {
	var probe struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch probe.Type {
	case MessageText:
		var m TextMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode text message: %w", err)
		}
		return m, nil
	case MessageImage:
		var m ImageMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode image message: %w", err)
		}
		return m, nil
	case MessageVideo:
		var m VideoMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode video message: %w", err)
		}
		return m, nil
	case MessageButtons:
		var m ButtonsMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode buttons message: %w", err)
		}
		return m, nil
	case MessageImageMap:
		var m ImageMapMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode imagemap message: %w", err)
		}
		return m, nil
	case MessageFlex:
		var m FlexMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode flex message: %w", err)
		}
		return m, nil
	case MessageCarousel:
		var m CarouselMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode carousel message: %w", err)
		}
		return m, nil
	case MessageImageCarousel:
		var m ImageCarouselMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode image_carousel message: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", probe.Type)
	}
}

// MessageList is a JSON-decodable slice of IMessage.
type MessageList []IMessage

func (l *MessageList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(MessageList, 0, len(raws))
	for _, raw := range raws {
		m, err := UnmarshalMessage(raw)
		if err != nil {
			return err
		}
		out = append(out, m)
	}
	*l = out
	return nil
}

// ── Carousel invariants ──────────────────────────────────────

// validateIndexes checks that the given 0-based indexes are exactly
// {0..n-1} with no duplicates.
func validateIndexes(indexes []int) error {
	seen := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(indexes) {
			return fmt.Errorf("column index %d out of range [0,%d)", idx, len(indexes))
		}
		if seen[idx] {
			return fmt.Errorf("duplicate column index %d", idx)
		}
		seen[idx] = true
	}
	return nil
}

// ValidateColumns enforces the carousel index invariant: indexes are
// unique and contiguous from 0 across active and inactive columns.
func (m CarouselMessage) ValidateColumns() error {
	indexes := make([]int, len(m.Columns))
	for i, c := range m.Columns {
		indexes[i] = c.Index
	}
	return validateIndexes(indexes)
}

// ActiveColumns returns only the columns eligible for rendering,
// ordered by index.
func (m CarouselMessage) ActiveColumns() []CarouselItem {
	out := make([]CarouselItem, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sortCarouselItems(out)
	return out
}

// ValidateColumns enforces the same index invariant for image carousels.
func (m ImageCarouselMessage) ValidateColumns() error {
	indexes := make([]int, len(m.Columns))
	for i, c := range m.Columns {
		indexes[i] = c.Index
	}
	return validateIndexes(indexes)
}

// ActiveColumns returns only the columns eligible for rendering,
// ordered by index.
func (m ImageCarouselMessage) ActiveColumns() []ImageCarouselItem {
	out := make([]ImageCarouselItem, 0, len(m.Columns))
	for _, c := range m.Columns {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sortImageCarouselItems(out)
	return out
}

func sortCarouselItems(items []CarouselItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })
}

func sortImageCarouselItems(items []ImageCarouselItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Index < items[j].Index })
}
