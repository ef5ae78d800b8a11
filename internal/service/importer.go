package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

var importTracer = otel.Tracer("service/importer")

// ImportService turns externally designed Flex documents into customers and
// published cards.
type ImportService struct {
	publisher *PublisherService
	logger    *zap.Logger
}

// NewImportService creates a new import service. Cards are stored through
// publisher so the one-active-card rule and its retries apply.
func NewImportService(publisher *PublisherService, logger *zap.Logger) *ImportService {
	return &ImportService{publisher: publisher, logger: logger}
}

// ParseFlex reports the container type, bubble count and contact fields of
// a document without storing anything.
func (s *ImportService) ParseFlex(ctx context.Context, raw json.RawMessage) (*domain.ParseResult, error) {
	_, span := importTracer.Start(ctx, "ImportService.ParseFlex")
	defer span.End()

	doc, err := flex.DecodeRequest("flex_json", raw)
	if err != nil {
		return nil, err
	}
	return &domain.ParseResult{
		Success:    true,
		CardInfo:   flex.Extract(doc),
		CardType:   doc.Type(),
		CardsCount: doc.Len(),
	}, nil
}

// Import stores the document as the active card of the matching customer.
// A customer with the same name and phone is reused and enriched with any
// non-empty contact field; otherwise a new customer is created. Everything
// happens in one transaction.
func (s *ImportService) Import(ctx context.Context, req domain.ImportRequest) (*domain.ImportResult, error) {
	ctx, span := importTracer.Start(ctx, "ImportService.Import")
	defer span.End()

	if len(req.FlexJSON) == 0 {
		return nil, &domain.ErrValidation{Field: "flex_json", Message: "flex_json is required"}
	}
	cardName := strings.TrimSpace(req.CardName)
	if cardName == "" {
		return nil, &domain.ErrValidation{Field: "card_name", Message: "card_name is required"}
	}
	doc, err := flex.DecodeRequest("flex_json", req.FlexJSON)
	if err != nil {
		return nil, err
	}

	info := flex.Extract(doc)
	incoming := domain.Customer{
		Name:           firstNonEmpty(req.CustomerName, info.Name),
		Company:        firstNonEmpty(req.Company, info.Company),
		Phone:          strings.TrimSpace(info.Phone),
		Email:          strings.TrimSpace(info.Email),
		Website:        info.Website,
		FacebookURL:    info.Facebook,
		Address:        info.Address,
		ExternalUserID: strings.TrimSpace(req.LineUserID),
	}
	if incoming.Name == "" {
		return nil, &domain.ErrValidation{Field: "customer_name", Message: "customer_name is required when the card shows no name"}
	}

	reused := false
	card, created, err := s.publisher.publishWith(ctx, func(tx port.Store) (*domain.Customer, flex.Document, error) {
		c, wasReused, err := upsertImportedCustomer(ctx, tx, incoming)
		reused = wasReused
		return c, doc, err
	}, cardName)
	if err != nil {
		return nil, err
	}
	s.publisher.afterPublish(ctx, card, created, domain.EventCardImported)

	s.logger.Info("card imported",
		zap.Int64("customer_id", card.CustomerID),
		zap.String("card_id", card.ShareID),
		zap.Bool("customer_reused", reused),
		zap.String("card_type", doc.Type()),
	)

	res := s.publisher.result(card, created)
	res.Message = "card imported"
	return &domain.ImportResult{PublishResult: *res, CardInfo: info}, nil
}

func upsertImportedCustomer(ctx context.Context, tx port.Store, incoming domain.Customer) (*domain.Customer, bool, error) {
	existing, err := tx.Customers().FindCustomerByNamePhone(ctx, incoming.Name, incoming.Phone)
	if err != nil {
		return nil, false, fmt.Errorf("find customer: %w", err)
	}
	if existing != nil {
		existing.MergeNonEmpty(incoming)
		if err := tx.Customers().UpdateCustomer(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("update customer: %w", err)
		}
		return existing, true, nil
	}

	c := incoming
	if err := tx.Customers().CreateCustomer(ctx, &c); err != nil {
		return nil, false, fmt.Errorf("create customer: %w", err)
	}
	return &c, false, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
