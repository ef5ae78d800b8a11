package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

var displayTracer = otel.Tracer("service/display")

// DisplayService serves the public card pages.
type DisplayService struct {
	store    port.Store
	claims   port.ClaimStore
	dedupTTL time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewDisplayService creates a new display service. Views carrying the same
// idempotency key within dedupTTL are counted once.
func NewDisplayService(store port.Store, claims port.ClaimStore, dedupTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *DisplayService {
	return &DisplayService{
		store:    store,
		claims:   claims,
		dedupTTL: dedupTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// View returns the active card for shareID and counts the view. A repeated
// idempotencyKey is served without counting again.
func (s *DisplayService) View(ctx context.Context, shareID, idempotencyKey string) (*domain.PublishedCard, error) {
	ctx, span := displayTracer.Start(ctx, "DisplayService.View")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", shareID))

	var claimKey string
	if idempotencyKey != "" {
		claimKey = "view:" + shareID + ":" + idempotencyKey
		if !s.claim(ctx, shareID, claimKey) {
			s.metrics.IncrView(false)
			return s.Card(ctx, shareID)
		}
	}

	card, err := s.store.Cards().IncrementViews(ctx, shareID)
	if err != nil {
		s.release(ctx, shareID, claimKey)
		return nil, fmt.Errorf("increment views: %w", err)
	}
	if card == nil {
		s.release(ctx, shareID, claimKey)
		return nil, &domain.ErrNotFound{Resource: "card", ID: shareID}
	}
	s.metrics.IncrView(true)
	return card, nil
}

// claim reports whether this view should be counted. Claim store failures
// count the view.
func (s *DisplayService) claim(ctx context.Context, shareID, key string) bool {
	ok, err := s.claims.Claim(ctx, key, s.dedupTTL)
	if err != nil {
		s.metrics.IncrExternalError("claims")
		s.logger.Warn("view claim failed", zap.String("card_id", shareID), zap.Error(err))
		return true
	}
	return ok
}

// release gives back a claim for a view that was not counted.
func (s *DisplayService) release(ctx context.Context, shareID, key string) {
	if key == "" {
		return
	}
	if err := s.claims.Release(ctx, key); err != nil {
		s.metrics.IncrExternalError("claims")
		s.logger.Warn("view claim release failed", zap.String("card_id", shareID), zap.Error(err))
	}
}

// Card returns the active card without counting a view.
func (s *DisplayService) Card(ctx context.Context, shareID string) (*domain.PublishedCard, error) {
	ctx, span := displayTracer.Start(ctx, "DisplayService.Card")
	defer span.End()

	card, err := s.store.Cards().GetActiveCardByShareID(ctx, shareID)
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	if card == nil {
		return nil, &domain.ErrNotFound{Resource: "card", ID: shareID}
	}
	return card, nil
}

// Contact merges what the stored document shows with the customer record.
// Values read from the document win.
func Contact(card *domain.PublishedCard) domain.CardInfo {
	info := flex.ExtractJSON(card.CardData)
	if c := card.Customer; c != nil {
		fill := func(dst *string, v string) {
			if *dst == "" {
				*dst = v
			}
		}
		fill(&info.Name, c.Name)
		fill(&info.Company, c.Company)
		fill(&info.Phone, c.Phone)
		fill(&info.Email, c.Email)
		fill(&info.Website, c.Website)
		fill(&info.Facebook, c.FacebookURL)
		fill(&info.Address, c.Address)
	}
	return info
}

// Line breaks of any style become the escaped \n so a value cannot start a
// new property line.
var vcardEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\r\n", `\n`, "\r", `\n`, "\n", `\n`)

// VCard renders a vCard 3.0 (RFC 2426) for the card's contact details.
func VCard(card *domain.PublishedCard) string {
	info := Contact(card)
	title := ""
	if card.Customer != nil {
		title = card.Customer.Position
	}

	var b strings.Builder
	line := func(key, value string) {
		if value != "" {
			b.WriteString(key + ":" + vcardEscaper.Replace(value) + "\r\n")
		}
	}
	b.WriteString("BEGIN:VCARD\r\nVERSION:3.0\r\n")
	name := info.Name
	if name == "" {
		name = card.Title
	}
	line("FN", name)
	b.WriteString("N:" + vcardEscaper.Replace(name) + ";;;;\r\n")
	line("ORG", info.Company)
	line("TITLE", title)
	line("TEL;TYPE=CELL", info.Phone)
	line("EMAIL", info.Email)
	line("URL", info.Website)
	if info.Address != "" {
		b.WriteString("ADR;TYPE=WORK:;;" + vcardEscaper.Replace(info.Address) + ";;;;\r\n")
	}
	line("X-SOCIALPROFILE;TYPE=facebook", info.Facebook)
	b.WriteString("END:VCARD\r\n")
	return b.String()
}
