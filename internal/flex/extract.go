package flex

import (
	"strings"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// Extract recovers contact fields from a document. Footer button URIs are
// classified by prefix and the last match of each kind wins, so website and
// facebook depend on button order. Hero image URLs are collected in order.
func Extract(d Document) domain.CardInfo {
	info := domain.CardInfo{
		Images:  []string{},
		Buttons: []domain.ButtonInfo{},
	}

	for i, b := range d.Bubbles() {
		if i == 0 {
			info.Name = firstBoldText(b.Body)
		}
		if b.Hero != nil && b.Hero.URL != "" {
			info.Images = append(info.Images, b.Hero.URL)
		}
		if b.Footer == nil {
			continue
		}
		for _, c := range b.Footer.Contents {
			if c.Type != TypeButton {
				continue
			}
			btn := domain.ButtonInfo{CardIndex: i + 1, Color: c.Color}
			if c.Action != nil {
				btn.Label = c.Action.Label
				btn.URI = c.Action.URI
				btn.ActionType = c.Action.Type
			}
			info.Buttons = append(info.Buttons, btn)
			classify(&info, btn.URI)
		}
	}
	return info
}

// ExtractJSON decodes raw and extracts its contact fields. A field of the
// wrong type yields no value for that field only; a payload that is not a
// bubble or carousel yields the empty result.
func ExtractJSON(raw []byte) domain.CardInfo {
	doc, err := Decode(raw)
	if err != nil {
		return Extract(Document{})
	}
	return Extract(doc)
}

func classify(info *domain.CardInfo, uri string) {
	switch {
	case strings.HasPrefix(uri, "tel:"):
		info.Phone = strings.TrimPrefix(uri, "tel:")
	case strings.HasPrefix(uri, "mailto:"):
		info.Email = strings.TrimPrefix(uri, "mailto:")
	case strings.Contains(uri, "facebook.com"):
		info.Facebook = uri
	case strings.HasPrefix(uri, "http"):
		info.Website = uri
	}
}

func firstBoldText(box *Box) string {
	if box == nil {
		return ""
	}
	for _, c := range box.Contents {
		if c.Type == TypeText && c.Weight == "bold" && c.Text != "" {
			return c.Text
		}
	}
	return ""
}
