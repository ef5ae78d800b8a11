package flex

import "github.com/boddenberg/flexcard-bfa-go/internal/domain"

// Template is a ready-made card offered to designers.
type Template struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Type         string   `json:"type"`
	PreviewImage string   `json:"preview_image,omitempty"`
	FlexJSON     Document `json:"flex_json"`
}

// Templates returns the built-in templates in display order.
func Templates() []Template {
	sample := domain.Customer{
		Name:        "Jamie Chen",
		Position:    "Sales Manager",
		Company:     "Example Trading Co.",
		Phone:       "0912345678",
		Website:     "https://example.com",
		FacebookURL: "https://www.facebook.com/example",
		MapURL:      "https://maps.google.com/?q=Taipei+101",
	}

	return []Template{
		{
			ID:          "classic",
			Name:        "Classic",
			Description: "Single card with contact buttons",
			Type:        TypeBubble,
			FlexJSON:    Build(sample),
		},
		{
			ID:           "photo_carousel",
			Name:         "Photo carousel",
			Description:  "Three full-bleed photo cards with call and booking buttons",
			Type:         TypeCarousel,
			PreviewImage: "https://images.example.com/cards/photo-1.jpg",
			FlexJSON: NewCarousel(
				photoBubble("https://images.example.com/cards/photo-1.jpg",
					coloredButton("Share my card", "https://example.com/share", "#5c8bc3"),
					coloredButton("Add friend", "https://line.me/R/ti/p/@example", "#807e7c"),
				),
				photoBubble("https://images.example.com/cards/photo-2.jpg",
					coloredButton("Call us", "tel:0912345678", "#5c8bc3"),
					coloredButton("Book a visit", "https://example.com/booking", "#807e7c"),
				),
				photoBubble("https://images.example.com/cards/photo-3.jpg",
					coloredButton("Email", "mailto:hello@example.com", "#5c8bc3"),
					coloredButton("Facebook", "https://www.facebook.com/example", "#807e7c"),
				),
			),
		},
	}
}

func photoBubble(imageURL string, buttons ...Component) Bubble {
	return Bubble{
		Hero: &Component{
			Type:        TypeImage,
			URL:         imageURL,
			Size:        "full",
			AspectRatio: "2:3",
			AspectMode:  "cover",
		},
		Footer: &Box{
			Type:            TypeBox,
			Layout:          "vertical",
			Spacing:         "sm",
			Contents:        buttons,
			BackgroundColor: "#ffffff",
		},
	}
}

func coloredButton(label, uri, color string) Component {
	return Component{
		Type:   TypeButton,
		Style:  "primary",
		Color:  color,
		Action: &Action{Type: "uri", Label: label, URI: uri},
	}
}
