// Package flex builds, decodes and inspects LINE Flex Message card documents.
//
// A Document is a tagged variant: either a single Bubble or a Carousel of
// bubbles. Decoding keeps the received bytes so an imported document is
// re-emitted exactly as it arrived, while the typed view is used by the
// builder and the extractor.
package flex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// Container types.
const (
	TypeBubble   = "bubble"
	TypeCarousel = "carousel"
	typeFlex     = "flex"
)

// Component types.
const (
	TypeBox       = "box"
	TypeText      = "text"
	TypeSeparator = "separator"
	TypeButton    = "button"
	TypeImage     = "image"
)

// ErrEmptyDocument is returned when decoding an empty payload.
var ErrEmptyDocument = errors.New("flex: empty document")

// Document is either a single bubble or a carousel of bubbles.
type Document struct {
	bubble   *Bubble
	carousel []Bubble
	raw      json.RawMessage
}

// Bubble is a single card.
type Bubble struct {
	Type   string     `json:"type"`
	Size   string     `json:"size,omitempty"`
	Hero   *Component `json:"hero,omitempty"`
	Header *Box       `json:"header,omitempty"`
	Body   *Box       `json:"body,omitempty"`
	Footer *Box       `json:"footer,omitempty"`
}

// Box is a top-level bubble block. Contents is always emitted, even empty.
type Box struct {
	Type            string      `json:"type"`
	Layout          string      `json:"layout"`
	Contents        []Component `json:"contents"`
	Spacing         string      `json:"spacing,omitempty"`
	Margin          string      `json:"margin,omitempty"`
	PaddingAll      string      `json:"paddingAll,omitempty"`
	BackgroundColor string      `json:"backgroundColor,omitempty"`
}

// Component is one element of a box: text, separator, button, image or a
// nested box. Only the fields relevant to Type are set.
type Component struct {
	Type string `json:"type"`

	// box
	Layout   string      `json:"layout,omitempty"`
	Contents []Component `json:"contents,omitempty"`
	Spacing  string      `json:"spacing,omitempty"`

	// text
	Text   string `json:"text,omitempty"`
	Weight string `json:"weight,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
	Align  string `json:"align,omitempty"`

	// button
	Style  string  `json:"style,omitempty"`
	Height string  `json:"height,omitempty"`
	Action *Action `json:"action,omitempty"`

	// image
	URL         string `json:"url,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	AspectMode  string `json:"aspectMode,omitempty"`

	// shared
	Size            string `json:"size,omitempty"`
	Color           string `json:"color,omitempty"`
	Margin          string `json:"margin,omitempty"`
	PaddingAll      string `json:"paddingAll,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

// Action is the tap action of a button.
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	URI   string `json:"uri,omitempty"`
}

type carousel struct {
	Type     string   `json:"type"`
	Contents []Bubble `json:"contents"`
}

// NewBubble returns a single-bubble document.
func NewBubble(b Bubble) Document {
	b.Type = TypeBubble
	return Document{bubble: &b}
}

// NewCarousel returns a carousel document holding bubbles in order.
func NewCarousel(bubbles ...Bubble) Document {
	out := make([]Bubble, len(bubbles))
	for i, b := range bubbles {
		b.Type = TypeBubble
		out[i] = b
	}
	return Document{carousel: out}
}

// Type returns "bubble", "carousel" or "" for the zero Document.
func (d Document) Type() string {
	switch {
	case d.bubble != nil:
		return TypeBubble
	case d.carousel != nil:
		return TypeCarousel
	default:
		return ""
	}
}

// IsZero reports whether the document holds nothing.
func (d Document) IsZero() bool {
	return d.Type() == ""
}

// Bubbles returns the bubbles of the document in display order.
func (d Document) Bubbles() []Bubble {
	if d.bubble != nil {
		return []Bubble{*d.bubble}
	}
	return d.carousel
}

// Len returns the number of bubbles.
func (d Document) Len() int {
	return len(d.Bubbles())
}

// MarshalJSON emits the received bytes for decoded documents and the typed
// form for built ones.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	switch {
	case d.bubble != nil:
		return json.Marshal(d.bubble)
	case d.carousel != nil:
		return json.Marshal(carousel{Type: TypeCarousel, Contents: d.carousel})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare bubble or carousel container.
func (d *Document) UnmarshalJSON(b []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return fmt.Errorf("flex: decode container: %w", err)
	}

	var next Document
	switch head.Type {
	case TypeBubble:
		var bubble Bubble
		if err := decodeLenient(b, &bubble); err != nil {
			return fmt.Errorf("flex: decode bubble: %w", err)
		}
		next.bubble = &bubble
	case TypeCarousel:
		var c carousel
		if err := decodeLenient(b, &c); err != nil {
			return fmt.Errorf("flex: decode carousel: %w", err)
		}
		if c.Contents == nil {
			c.Contents = []Bubble{}
		}
		next.carousel = c.Contents
	default:
		return fmt.Errorf("flex: unsupported container type %q", head.Type)
	}

	next.raw = append(json.RawMessage(nil), b...)
	*d = next
	return nil
}

// decodeLenient decodes b into dst. Fields whose JSON type does not match
// are left zero and the rest of the value is still decoded.
func decodeLenient(b []byte, dst any) error {
	err := json.Unmarshal(b, dst)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// Decode parses a document from raw JSON. It accepts a bare container, a
// "flex" message envelope, or a JSON string holding either of those.
func Decode(raw []byte) (Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Document{}, ErrEmptyDocument
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Document{}, fmt.Errorf("flex: decode string payload: %w", err)
		}
		return Decode([]byte(inner))
	}

	var envelope struct {
		Type     string          `json:"type"`
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Document{}, fmt.Errorf("flex: decode payload: %w", err)
	}
	if envelope.Type == typeFlex {
		if len(envelope.Contents) == 0 {
			return Document{}, ErrEmptyDocument
		}
		raw = envelope.Contents
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DecodeRequest is Decode with errors reported as validation failures on
// field.
func DecodeRequest(field string, raw []byte) (Document, error) {
	doc, err := Decode(raw)
	if err != nil {
		return Document{}, &domain.ErrValidation{Field: field, Message: err.Error()}
	}
	return doc, nil
}
