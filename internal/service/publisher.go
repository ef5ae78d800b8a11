package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/events"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

var publishTracer = otel.Tracer("service/publisher")

const topCardsLimit = 10

// publishRetry bounds the whole-transaction retries after a share id
// collision or a lost race on the one-active-card index.
var publishRetry = resilience.Config{
	MaxRetries:     4,
	InitialBackoff: 5 * time.Millisecond,
}

// PublisherService owns the published card lifecycle.
type PublisherService struct {
	store      port.Store
	events     port.EventPublisher
	archive    port.CardArchive
	metrics    *observability.Metrics
	baseURL    string
	newShareID func() (string, error)
	now        func() time.Time
	logger     *zap.Logger
}

// PublisherOption configures a PublisherService.
type PublisherOption func(*PublisherService)

// WithShareIDGenerator replaces the random share id source.
func WithShareIDGenerator(fn func() (string, error)) PublisherOption {
	return func(p *PublisherService) { p.newShareID = fn }
}

// NewPublisherService creates a new publisher. baseURL is the public origin
// share URLs are built from.
func NewPublisherService(store port.Store, events port.EventPublisher, archive port.CardArchive, metrics *observability.Metrics, baseURL string, logger *zap.Logger, opts ...PublisherOption) *PublisherService {
	p := &PublisherService{
		store:      store,
		events:     events,
		archive:    archive,
		metrics:    metrics,
		baseURL:    baseURL,
		newShareID: newShareID,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShareURL returns the public URL of a share id.
func (p *PublisherService) ShareURL(shareID string) string {
	return p.baseURL + "/card/" + shareID
}

// Publish stores req.CardData as the customer's active card, or a document
// generated from the customer record when no card data is given.
func (p *PublisherService) Publish(ctx context.Context, req domain.PublishRequest) (*domain.PublishResult, error) {
	ctx, span := publishTracer.Start(ctx, "PublisherService.Publish")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", req.CustomerID))

	if req.CustomerID <= 0 {
		return nil, &domain.ErrValidation{Field: "customer_id", Message: "customer_id is required"}
	}

	var doc *flex.Document
	if len(req.CardData) > 0 && string(req.CardData) != "null" {
		d, err := flex.DecodeRequest("card_data", req.CardData)
		if err != nil {
			return nil, err
		}
		doc = &d
	}

	card, created, err := p.publish(ctx, req.CustomerID, doc, req.Title)
	if err != nil {
		return nil, err
	}
	p.afterPublish(ctx, card, created, domain.EventCardPublished)
	return p.result(card, created), nil
}

// PublishGenerated builds the card from the customer record and publishes it.
func (p *PublisherService) PublishGenerated(ctx context.Context, customerID int64) (*domain.PublishResult, error) {
	return p.Publish(ctx, domain.PublishRequest{CustomerID: customerID})
}

func (p *PublisherService) publish(ctx context.Context, customerID int64, doc *flex.Document, title string) (*domain.PublishedCard, bool, error) {
	return p.publishWith(ctx, func(tx port.Store) (*domain.Customer, flex.Document, error) {
		c, err := getCustomer(ctx, tx, customerID)
		if err != nil {
			return nil, flex.Document{}, err
		}
		if doc != nil {
			return c, *doc, nil
		}
		return c, flex.Build(*c), nil
	}, title)
}

// cardSource resolves, inside the publish transaction, the customer a card
// belongs to and the document to store.
type cardSource func(tx port.Store) (*domain.Customer, flex.Document, error)

// publishWith runs resolve and publishTx in one transaction, retrying the
// whole transaction on a share id collision or a lost active-card race.
func (p *PublisherService) publishWith(ctx context.Context, resolve cardSource, title string) (*domain.PublishedCard, bool, error) {
	var (
		card    *domain.PublishedCard
		created bool
	)
	attempt := 0
	err := resilience.RetryWithBackoff(ctx, publishRetry, func() error {
		attempt++
		err := p.store.InTx(ctx, func(tx port.Store) error {
			c, doc, err := resolve(tx)
			if err != nil {
				return err
			}
			card, created, err = p.publishTx(ctx, tx, c, doc, title)
			return err
		})
		if errors.Is(err, port.ErrShareIDTaken) || errors.Is(err, port.ErrActiveCardExists) {
			p.logger.Debug("publish conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return resilience.Permanent(err)
	})
	if err != nil {
		return nil, false, err
	}
	return card, created, nil
}

// publishTx upserts the active card of c within tx. An existing card keeps
// its share id and view count.
func (p *PublisherService) publishTx(ctx context.Context, tx port.Store, c *domain.Customer, doc flex.Document, title string) (*domain.PublishedCard, bool, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, false, fmt.Errorf("encode card: %w", err)
	}
	if title == "" {
		title = flex.AltText(*c)
	}

	existing, err := tx.Cards().LockActiveCard(ctx, c.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		existing.Title = title
		existing.CardData = data
		existing.ShareURL = p.ShareURL(existing.ShareID)
		if err := tx.Cards().UpdateCardContent(ctx, existing); err != nil {
			return nil, false, err
		}
		existing.Customer = c
		return existing, false, nil
	}

	shareID, err := p.newShareID()
	if err != nil {
		return nil, false, fmt.Errorf("generate share id: %w", err)
	}
	card := &domain.PublishedCard{
		CustomerID: c.ID,
		ShareID:    shareID,
		Title:      title,
		CardData:   data,
		ShareURL:   p.ShareURL(shareID),
		IsActive:   true,
	}
	if err := tx.Cards().InsertCard(ctx, card); err != nil {
		return nil, false, err
	}
	card.Customer = c
	return card, true, nil
}

func (p *PublisherService) afterPublish(ctx context.Context, card *domain.PublishedCard, created bool, eventType string) {
	p.metrics.IncrPublished(created)
	if err := p.archive.PutCard(ctx, card); err != nil {
		p.metrics.IncrExternalError("archive")
		p.logger.Warn("card archive failed", zap.String("card_id", card.ShareID), zap.Error(err))
	}
	emit(ctx, p.events, p.logger, events.NewEvent(eventType, card))

	p.logger.Info("card published",
		zap.Int64("customer_id", card.CustomerID),
		zap.String("card_id", card.ShareID),
		zap.Bool("created", created),
	)
}

func (p *PublisherService) result(card *domain.PublishedCard, created bool) *domain.PublishResult {
	msg := "card updated"
	if created {
		msg = "card published"
	}
	return &domain.PublishResult{
		Success:    true,
		CustomerID: card.CustomerID,
		ShareID:    card.ShareID,
		ShareURL:   card.ShareURL,
		Message:    msg,
	}
}

// Unpublish deactivates the customer's active card. The row is kept.
func (p *PublisherService) Unpublish(ctx context.Context, customerID int64) error {
	ctx, span := publishTracer.Start(ctx, "PublisherService.Unpublish")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", customerID))

	var card *domain.PublishedCard
	err := p.store.InTx(ctx, func(tx port.Store) error {
		var err error
		card, err = tx.Cards().LockActiveCard(ctx, customerID)
		if err != nil {
			return err
		}
		if card == nil {
			return &domain.ErrNotFound{Resource: "published card", ID: strconv.FormatInt(customerID, 10)}
		}
		return tx.Cards().DeactivateCard(ctx, card.ID)
	})
	if err != nil {
		return err
	}

	p.metrics.IncrUnpublished()
	emit(ctx, p.events, p.logger, events.NewEvent(domain.EventCardUnpublished, card))
	p.logger.Info("card unpublished", zap.Int64("customer_id", customerID), zap.String("card_id", card.ShareID))
	return nil
}

func (p *PublisherService) ListPublished(ctx context.Context) ([]domain.PublishedCard, error) {
	ctx, span := publishTracer.Start(ctx, "PublisherService.ListPublished")
	defer span.End()

	cards, err := p.store.Cards().ListActiveCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published cards: %w", err)
	}
	return cards, nil
}

func (p *PublisherService) GetPublished(ctx context.Context, customerID int64) (*domain.PublishedCard, error) {
	ctx, span := publishTracer.Start(ctx, "PublisherService.GetPublished")
	defer span.End()

	card, err := p.store.Cards().GetActiveCard(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get published card: %w", err)
	}
	if card == nil {
		return nil, &domain.ErrNotFound{Resource: "published card", ID: strconv.FormatInt(customerID, 10)}
	}
	return card, nil
}

// Preview builds the flex message for a customer without storing anything.
func (p *PublisherService) Preview(ctx context.Context, customerID int64) (*domain.CardPreview, error) {
	ctx, span := publishTracer.Start(ctx, "PublisherService.Preview")
	defer span.End()

	c, err := getCustomer(ctx, p.store, customerID)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(flex.NewMessage(flex.AltText(*c), flex.Build(*c)))
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return &domain.CardPreview{CustomerID: c.ID, CustomerName: c.Name, FlexMessage: msg}, nil
}

// Stats returns card totals, the most viewed cards and this process's
// counters.
func (p *PublisherService) Stats(ctx context.Context) (*domain.CardStats, error) {
	ctx, span := publishTracer.Start(ctx, "PublisherService.Stats")
	defer span.End()

	stats, err := p.store.Cards().CardStats(ctx, topCardsLimit)
	if err != nil {
		return nil, fmt.Errorf("card stats: %w", err)
	}
	stats.Process = p.metrics.Snapshot()
	return stats, nil
}

// Export returns every active card. When an archive is configured the export
// is also uploaded and a download URL is attached.
func (p *PublisherService) Export(ctx context.Context) (*domain.CardExport, error) {
	ctx, span := publishTracer.Start(ctx, "PublisherService.Export")
	defer span.End()

	cards, err := p.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	export := &domain.CardExport{GeneratedAt: p.now(), Cards: cards}

	body, err := json.Marshal(export)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	name := "cards-" + export.GeneratedAt.Format("20060102T150405Z") + ".json"
	url, err := p.archive.PutExport(ctx, name, body)
	if err != nil {
		p.metrics.IncrExternalError("archive")
		p.logger.Warn("export archive failed", zap.String("name", name), zap.Error(err))
	}
	export.DownloadURL = url

	p.logger.Info("cards exported", zap.Int("count", len(cards)), zap.Bool("archived", url != ""))
	return export, nil
}
