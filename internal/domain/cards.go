package domain

import (
	"encoding/json"
	"time"
)

// ============================================================
// Published cards
// ============================================================

// PublishedCard links a customer to a serialized Flex document reachable
// through a public share id. At most one active card exists per customer.
type PublishedCard struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	ShareID    string          `json:"card_id"`
	Title      string          `json:"title"`
	CardData   json.RawMessage `json:"card_data"`
	ShareURL   string          `json:"share_url"`
	ViewCount  int64           `json:"view_count"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Customer   *Customer       `json:"customer,omitempty"`
}

// PublishRequest is the body for POST /cards/publish. CardData is optional:
// when absent the document is generated from the customer record.
type PublishRequest struct {
	CustomerID int64           `json:"customer_id"`
	CardData   json.RawMessage `json:"card_data,omitempty"`
	Title      string          `json:"title,omitempty"`
}

// PublishResult is returned by publish and import.
type PublishResult struct {
	Success    bool   `json:"success"`
	CustomerID int64  `json:"customer_id"`
	ShareID    string `json:"card_id"`
	ShareURL   string `json:"share_url"`
	Message    string `json:"message,omitempty"`
}

// CardStats is returned by GET /cards/stats.
type CardStats struct {
	TotalCustomers int64            `json:"total_customers"`
	ActiveCards    int64            `json:"active_cards"`
	InactiveCards  int64            `json:"inactive_cards"`
	TotalViews     int64            `json:"total_views"`
	TopCards       []CardViewRank   `json:"top_cards"`
	Process        map[string]int64 `json:"process,omitempty"`
}

// CardViewRank is one entry of the most viewed cards.
type CardViewRank struct {
	ShareID      string `json:"card_id" db:"share_id"`
	Title        string `json:"title" db:"title"`
	CustomerID   int64  `json:"customer_id" db:"customer_id"`
	CustomerName string `json:"customer_name" db:"customer_name"`
	ViewCount    int64  `json:"view_count" db:"view_count"`
}

// CardPreview is returned by GET /cards/preview/{customer_id}. FlexMessage
// holds the serialized message envelope.
type CardPreview struct {
	CustomerID   int64           `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	FlexMessage  json.RawMessage `json:"flex_message"`
}

// CardExport is the payload of GET /cards/export.
type CardExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Cards       []PublishedCard `json:"cards"`
	DownloadURL string          `json:"download_url,omitempty"`
}

// ============================================================
// Import
// ============================================================

// ImportRequest is the body for POST /cards/import. FlexJSON may be a JSON
// string holding the document or the document itself.
type ImportRequest struct {
	FlexJSON     json.RawMessage `json:"flex_json"`
	CardName     string          `json:"card_name"`
	CustomerName string          `json:"customer_name,omitempty"`
	Company      string          `json:"company,omitempty"`
	LineUserID   string          `json:"line_user_id,omitempty"`
}

// ImportResult is returned by POST /cards/import.
type ImportResult struct {
	PublishResult
	CardInfo CardInfo `json:"card_info"`
}

// ParseResult is returned by POST /cards/parse-flex.
type ParseResult struct {
	Success    bool     `json:"success"`
	CardInfo   CardInfo `json:"card_info"`
	CardType   string   `json:"card_type"`
	CardsCount int      `json:"cards_count"`
}

// CardInfo holds the contact fields recovered from a Flex document.
type CardInfo struct {
	Name     string       `json:"name"`
	Company  string       `json:"company"`
	Phone    string       `json:"phone"`
	Email    string       `json:"email"`
	Website  string       `json:"website"`
	Facebook string       `json:"facebook"`
	Address  string       `json:"address"`
	Images   []string     `json:"images"`
	Buttons  []ButtonInfo `json:"buttons"`
}

// ButtonInfo describes one footer button found in a document.
type ButtonInfo struct {
	CardIndex  int    `json:"card_index"`
	Label      string `json:"label"`
	URI        string `json:"uri"`
	Color      string `json:"color"`
	ActionType string `json:"type"`
}

// ============================================================
// Events
// ============================================================

// Card event types.
const (
	EventCardPublished   = "card.published"
	EventCardUnpublished = "card.unpublished"
	EventCardImported    = "card.imported"
)

// CardEvent is emitted after a card lifecycle change has been committed.
type CardEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	CustomerID int64     `json:"customer_id"`
	ShareID    string    `json:"card_id"`
	ShareURL   string    `json:"share_url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
