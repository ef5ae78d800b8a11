// Package events publishes card lifecycle events to a message broker.
// Publishing happens after the owning transaction commits; a failed publish
// is logged by the caller and never undoes the committed change.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// Subject prefix for every card event, e.g. "flexcard.card.published".
const subjectPrefix = "flexcard."

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType string, card *domain.PublishedCard) domain.CardEvent {
	return domain.CardEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		CustomerID: card.CustomerID,
		ShareID:    card.ShareID,
		ShareURL:   card.ShareURL,
		OccurredAt: time.Now().UTC(),
	}
}

// Subject returns the routing key / subject for an event type.
func Subject(eventType string) string {
	return subjectPrefix + eventType
}

func encode(evt domain.CardEvent) ([]byte, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", evt.Type, err)
	}
	return body, nil
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, domain.CardEvent) error { return nil }
func (Nop) Close() error                                    { return nil }
