package flex

import (
	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

const (
	headerLabel      = "Business Card"
	headerBackground = "#3C4142"
	headerColor      = "#ffffff"
	nameColor        = "#333333"
	detailColor      = "#666666"

	labelCall     = "📞 Call"
	labelWebsite  = "🌐 Website"
	labelFacebook = "📘 Facebook"
	labelMap      = "📍 Map"
)

// Build maps a customer onto the fixed single-bubble card layout.
// Position and company are omitted when empty. Footer buttons follow the
// order phone, website, facebook, map.
func Build(c domain.Customer) Document {
	body := []Component{
		{Type: TypeText, Text: c.Name, Weight: "bold", Size: "xl", Color: nameColor},
	}
	if c.Position != "" {
		body = append(body, Component{Type: TypeText, Text: c.Position, Size: "md", Color: detailColor, Margin: "sm"})
	}
	if c.Company != "" {
		body = append(body, Component{Type: TypeText, Text: c.Company, Size: "md", Color: detailColor, Margin: "sm"})
	}
	body = append(body, Component{Type: TypeSeparator, Margin: "lg"})

	footer := &Box{Type: TypeBox, Layout: "vertical", Contents: footerButtons(c)}
	if len(footer.Contents) > 0 {
		footer.Spacing = "sm"
		footer.PaddingAll = "20px"
	}

	return NewBubble(Bubble{
		Size: "kilo",
		Header: &Box{
			Type:   TypeBox,
			Layout: "vertical",
			Contents: []Component{
				{Type: TypeText, Text: headerLabel, Weight: "bold", Size: "sm", Color: headerColor},
			},
			PaddingAll:      "15px",
			BackgroundColor: headerBackground,
		},
		Body: &Box{
			Type:       TypeBox,
			Layout:     "vertical",
			Contents:   body,
			Spacing:    "sm",
			PaddingAll: "20px",
		},
		Footer: footer,
	})
}

func footerButtons(c domain.Customer) []Component {
	buttons := []Component{}
	if c.Phone != "" {
		buttons = append(buttons, uriButton("primary", labelCall, "tel:"+c.Phone, ""))
	}
	if c.Website != "" {
		buttons = append(buttons, uriButton("secondary", labelWebsite, c.Website, "sm"))
	}
	if c.FacebookURL != "" {
		buttons = append(buttons, uriButton("secondary", labelFacebook, c.FacebookURL, "sm"))
	}
	if c.MapURL != "" {
		buttons = append(buttons, uriButton("secondary", labelMap, c.MapURL, "sm"))
	}
	return buttons
}

func uriButton(style, label, uri, margin string) Component {
	return Component{
		Type:   TypeButton,
		Style:  style,
		Height: "sm",
		Action: &Action{Type: "uri", Label: label, URI: uri},
		Margin: margin,
	}
}

// AltText is the notification text shown for a customer's card.
func AltText(c domain.Customer) string {
	if c.Name == "" {
		return headerLabel
	}
	return c.Name + "'s business card"
}
