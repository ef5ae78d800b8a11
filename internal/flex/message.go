package flex

import "unicode/utf8"

// maxAltText is the provider limit on notification text, in characters.
const maxAltText = 400

// Message is the "flex" envelope pushed to the messaging provider.
type Message struct {
	Type     string   `json:"type"`
	AltText  string   `json:"altText"`
	Contents Document `json:"contents"`
}

// NewMessage wraps doc in a flex message envelope.
func NewMessage(altText string, doc Document) Message {
	if utf8.RuneCountInString(altText) > maxAltText {
		altText = string([]rune(altText)[:maxAltText])
	}
	return Message{Type: typeFlex, AltText: altText, Contents: doc}
}
