package flex_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
)

func fullCustomer() domain.Customer {
	return domain.Customer{
		Name:        "Ada Lin",
		Position:    "CTO",
		Company:     "Lin Labs",
		Phone:       "0911222333",
		Website:     "https://linlabs.example",
		FacebookURL: "https://facebook.com/linlabs",
		MapURL:      "https://maps.example/?q=lin",
	}
}

func TestBuild_Deterministic(t *testing.T) {
	c := fullCustomer()

	a, err := json.Marshal(flex.Build(c))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(flex.Build(c))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("expected identical output, got\n%s\n%s", a, b)
	}
}

func TestBuild_Layout(t *testing.T) {
	doc := flex.Build(fullCustomer())

	if doc.Type() != flex.TypeBubble {
		t.Fatalf("expected bubble, got %q", doc.Type())
	}
	b := doc.Bubbles()[0]

	if b.Header == nil || b.Header.Contents[0].Text != "Business Card" {
		t.Errorf("expected static header label")
	}
	if b.Header.BackgroundColor != "#3C4142" {
		t.Errorf("expected header background #3C4142, got %q", b.Header.BackgroundColor)
	}

	body := b.Body.Contents
	if len(body) != 4 {
		t.Fatalf("expected name, position, company, separator; got %d components", len(body))
	}
	if body[0].Text != "Ada Lin" || body[0].Weight != "bold" || body[0].Size != "xl" {
		t.Errorf("unexpected name component: %+v", body[0])
	}
	if body[3].Type != flex.TypeSeparator {
		t.Errorf("expected separator last, got %q", body[3].Type)
	}

	wantURIs := []string{
		"tel:0911222333",
		"https://linlabs.example",
		"https://facebook.com/linlabs",
		"https://maps.example/?q=lin",
	}
	footer := b.Footer.Contents
	if len(footer) != len(wantURIs) {
		t.Fatalf("expected %d buttons, got %d", len(wantURIs), len(footer))
	}
	for i, want := range wantURIs {
		if footer[i].Action.URI != want {
			t.Errorf("button %d: expected %q, got %q", i, want, footer[i].Action.URI)
		}
	}
	if footer[0].Style != "primary" || footer[1].Style != "secondary" {
		t.Errorf("expected primary call button followed by secondary buttons")
	}
	if b.Footer.Spacing != "sm" || b.Footer.PaddingAll != "20px" {
		t.Errorf("expected footer spacing and padding when buttons exist")
	}
}

func TestBuild_OmitsEmptyFields(t *testing.T) {
	doc := flex.Build(domain.Customer{Name: "Solo"})
	b := doc.Bubbles()[0]

	if len(b.Body.Contents) != 2 {
		t.Fatalf("expected name and separator only, got %d components", len(b.Body.Contents))
	}
	for _, c := range b.Body.Contents {
		if c.Type == flex.TypeText && c.Text == "" {
			t.Error("empty text component emitted")
		}
	}
	if len(b.Footer.Contents) != 0 {
		t.Errorf("expected empty footer, got %d buttons", len(b.Footer.Contents))
	}
	if b.Footer.Spacing != "" || b.Footer.PaddingAll != "" {
		t.Error("expected no footer spacing or padding without buttons")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"footer":{"type":"box","layout":"vertical","contents":[]}`) {
		t.Errorf("expected footer with empty contents array, got %s", raw)
	}
}

func TestExtract_RecoversBuiltFields(t *testing.T) {
	c := fullCustomer()
	info := flex.Extract(flex.Build(c))

	if info.Name != c.Name {
		t.Errorf("expected name %q, got %q", c.Name, info.Name)
	}
	if info.Phone != c.Phone {
		t.Errorf("expected phone %q, got %q", c.Phone, info.Phone)
	}
	if info.Facebook != c.FacebookURL {
		t.Errorf("expected facebook %q, got %q", c.FacebookURL, info.Facebook)
	}
	// the map button is an http URI placed after the website button
	if info.Website != c.MapURL {
		t.Errorf("expected last http URI %q, got %q", c.MapURL, info.Website)
	}
	if len(info.Buttons) != 4 {
		t.Errorf("expected 4 buttons, got %d", len(info.Buttons))
	}
}

func TestExtract_WebsiteWithoutMap(t *testing.T) {
	c := fullCustomer()
	c.MapURL = ""

	info := flex.Extract(flex.Build(c))
	if info.Website != c.Website {
		t.Errorf("expected website %q, got %q", c.Website, info.Website)
	}
}

func TestExtractJSON_Carousel(t *testing.T) {
	raw := `{
		"type": "carousel",
		"contents": [
			{"type": "bubble",
			 "hero": {"type": "image", "url": "https://img.example/1.jpg"},
			 "footer": {"type": "box", "layout": "vertical", "contents": [
				{"type": "button", "color": "#5c8bc3", "action": {"type": "uri", "label": "Call", "uri": "tel:0800"}},
				{"type": "text", "text": "ignored"}
			 ]}},
			{"type": "bubble",
			 "hero": {"type": "image", "url": "https://img.example/2.jpg"},
			 "footer": {"type": "box", "layout": "vertical", "contents": [
				{"type": "button", "action": {"type": "uri", "label": "Mail", "uri": "mailto:a@b.example"}},
				{"type": "button", "action": {"type": "uri", "label": "Call", "uri": "tel:0900"}}
			 ]}},
			{"type": "bubble"}
		]
	}`

	info := flex.ExtractJSON([]byte(raw))

	if len(info.Images) != 2 || info.Images[1] != "https://img.example/2.jpg" {
		t.Errorf("unexpected images: %v", info.Images)
	}
	if info.Phone != "0900" {
		t.Errorf("expected last phone to win, got %q", info.Phone)
	}
	if info.Email != "a@b.example" {
		t.Errorf("expected email, got %q", info.Email)
	}
	if len(info.Buttons) != 3 {
		t.Fatalf("expected 3 buttons, got %d", len(info.Buttons))
	}
	if info.Buttons[0].CardIndex != 1 || info.Buttons[2].CardIndex != 2 {
		t.Errorf("unexpected card indexes: %+v", info.Buttons)
	}
	if info.Buttons[0].Color != "#5c8bc3" {
		t.Errorf("expected button color, got %q", info.Buttons[0].Color)
	}
}

func TestExtractJSON_MalformedYieldsEmpty(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{"type": "video"}`,
		`{"type": "bubble", "footer": {"contents": "oops"}}`,
		`[1, 2, 3]`,
	}
	for _, raw := range cases {
		info := flex.ExtractJSON([]byte(raw))
		if info.Phone != "" || info.Website != "" || len(info.Images) != 0 || len(info.Buttons) != 0 {
			t.Errorf("%q: expected empty result, got %+v", raw, info)
		}
		if info.Images == nil || info.Buttons == nil {
			t.Errorf("%q: expected non-nil empty slices", raw)
		}
	}
}

func TestExtractJSON_WrongTypedFieldKeepsSiblings(t *testing.T) {
	raw := `{
		"type": "carousel",
		"contents": [
			{"type": "bubble",
			 "hero": {"type": "image", "url": "https://img.example/1.jpg"},
			 "footer": {"type": "box", "layout": "vertical", "contents": [
				{"type": "button", "action": {"type": "uri", "label": "Call", "uri": "tel:0912"}}
			 ]}},
			{"type": "bubble",
			 "footer": {"type": "box", "layout": "vertical", "contents": [
				{"type": "button", "action": {"type": "uri", "label": "Broken", "uri": 123}}
			 ]}}
		]
	}`

	doc, err := flex.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Len() != 2 {
		t.Fatalf("expected 2 bubbles, got %d", doc.Len())
	}

	info := flex.ExtractJSON([]byte(raw))
	if info.Phone != "0912" {
		t.Errorf("expected phone 0912, got %q", info.Phone)
	}
	if len(info.Images) != 1 || info.Images[0] != "https://img.example/1.jpg" {
		t.Errorf("unexpected images: %v", info.Images)
	}
	if len(info.Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(info.Buttons))
	}
	if info.Buttons[1].Label != "Broken" || info.Buttons[1].URI != "" {
		t.Errorf("expected label kept and uri dropped, got %+v", info.Buttons[1])
	}
}

func TestExtract_MissingActionIsNoValue(t *testing.T) {
	info := flex.ExtractJSON([]byte(`{"type":"bubble","footer":{"type":"box","layout":"vertical","contents":[{"type":"button"}]}}`))
	if len(info.Buttons) != 1 {
		t.Fatalf("expected 1 button, got %d", len(info.Buttons))
	}
	if info.Buttons[0].URI != "" || info.Website != "" {
		t.Errorf("expected no values, got %+v", info)
	}
}

func TestDecode_PreservesReceivedBytes(t *testing.T) {
	raw := `{"type":"bubble","size":"mega","unknownField":{"x":1},"body":{"type":"box","layout":"vertical","contents":[]}}`

	doc, err := flex.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Errorf("expected bytes preserved\nwant %s\ngot  %s", raw, out)
	}
}

func TestDecode_EnvelopeAndString(t *testing.T) {
	envelope := `{"type":"flex","altText":"hi","contents":{"type":"carousel","contents":[{"type":"bubble"},{"type":"bubble"}]}}`

	doc, err := flex.Decode([]byte(envelope))
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if doc.Type() != flex.TypeCarousel || doc.Len() != 2 {
		t.Errorf("expected carousel of 2, got %s of %d", doc.Type(), doc.Len())
	}

	quoted, _ := json.Marshal(envelope)
	doc, err = flex.Decode(quoted)
	if err != nil {
		t.Fatalf("decode string: %v", err)
	}
	if doc.Len() != 2 {
		t.Errorf("expected 2 bubbles from string payload, got %d", doc.Len())
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := flex.Decode(nil); err != flex.ErrEmptyDocument {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := flex.Decode([]byte(`{"type":"flex"}`)); err != flex.ErrEmptyDocument {
		t.Errorf("expected ErrEmptyDocument for empty envelope, got %v", err)
	}

	_, err := flex.DecodeRequest("flex_json", []byte(`{"type":"video"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*domain.ErrValidation); !ok {
		t.Errorf("expected *domain.ErrValidation, got %T", err)
	}
}

func TestNewMessage(t *testing.T) {
	msg := flex.NewMessage(flex.AltText(domain.Customer{Name: "Ada"}), flex.Build(domain.Customer{Name: "Ada"}))

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(raw), `{"type":"flex","altText":"Ada's business card","contents":{"type":"bubble"`) {
		t.Errorf("unexpected envelope: %s", raw)
	}

	long := flex.NewMessage(strings.Repeat("名", 500), flex.Document{})
	if n := utf8.RuneCountInString(long.AltText); n != 400 {
		t.Errorf("expected altText truncated to 400 characters, got %d", n)
	}
}

func TestTemplates_Decodable(t *testing.T) {
	for _, tpl := range flex.Templates() {
		raw, err := json.Marshal(tpl.FlexJSON)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tpl.ID, err)
		}
		doc, err := flex.Decode(raw)
		if err != nil {
			t.Fatalf("%s: decode: %v", tpl.ID, err)
		}
		if doc.Type() != tpl.Type {
			t.Errorf("%s: expected type %q, got %q", tpl.ID, tpl.Type, doc.Type())
		}
	}
}
