package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

var messagingTracer = otel.Tracer("service/messaging")

const maxBatchSize = 500

// MessagingService pushes cards to customers over LINE.
type MessagingService struct {
	store       port.Store
	gateway     port.MessagingGateway
	metrics     *observability.Metrics
	concurrency int
	logger      *zap.Logger
}

// NewMessagingService creates a new messaging service. concurrency caps the
// number of pushes a batch runs at once.
func NewMessagingService(store port.Store, gateway port.MessagingGateway, metrics *observability.Metrics, concurrency int, logger *zap.Logger) *MessagingService {
	return &MessagingService{
		store:       store,
		gateway:     gateway,
		metrics:     metrics,
		concurrency: max(concurrency, 1),
		logger:      logger,
	}
}

// SendCard pushes the customer's card to their LINE user id. The active
// published document is sent when there is one; otherwise the card is
// generated from the customer record.
func (s *MessagingService) SendCard(ctx context.Context, customerID int64) (*domain.SendResult, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.SendCard")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", customerID))

	c, err := s.send(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &domain.SendResult{
		CustomerID:   c.ID,
		CustomerName: c.Name,
		Success:      true,
		Message:      "card sent",
	}, nil
}

// SendBatch sends to every id independently. One failure never affects the
// others; results keep the input order.
func (s *MessagingService) SendBatch(ctx context.Context, customerIDs []int64) (*domain.BatchResult, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.SendBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(customerIDs)))

	if len(customerIDs) == 0 {
		return nil, &domain.ErrValidation{Field: "customer_ids", Message: "at least one customer id is required"}
	}
	if len(customerIDs) > maxBatchSize {
		return nil, &domain.ErrValidation{Field: "customer_ids", Message: fmt.Sprintf("at most %d customer ids per batch", maxBatchSize)}
	}

	results := make([]domain.SendResult, len(customerIDs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range customerIDs {
		g.Go(func() error {
			res := domain.SendResult{CustomerID: id}
			c, err := s.send(ctx, id)
			if c != nil {
				res.CustomerName = c.Name
			}
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
				res.Message = "card sent"
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := &domain.BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.ErrorCount++
		}
	}

	s.logger.Info("batch send finished",
		zap.Int("total", out.Total),
		zap.Int("success", out.SuccessCount),
		zap.Int("errors", out.ErrorCount),
	)
	return out, nil
}

// send resolves the customer and pushes one message. The customer is
// returned whenever it was found, even if the push failed.
func (s *MessagingService) send(ctx context.Context, customerID int64) (*domain.Customer, error) {
	c, err := getCustomer(ctx, s.store, customerID)
	if err != nil {
		return nil, err
	}
	if c.ExternalUserID == "" {
		return c, &domain.ErrValidation{Field: "external_user_id", Message: "customer has no LINE user id"}
	}

	doc, err := s.document(ctx, c)
	if err != nil {
		return c, err
	}

	err = s.gateway.PushMessage(ctx, c.ExternalUserID, flex.NewMessage(flex.AltText(*c), doc))
	s.metrics.IncrPush(err == nil)
	if err != nil {
		s.recordExternal(err)
		s.logger.Warn("line push failed", zap.Int64("customer_id", c.ID), zap.Error(err))
		return c, err
	}

	s.logger.Info("card sent", zap.Int64("customer_id", c.ID))
	return c, nil
}

func (s *MessagingService) document(ctx context.Context, c *domain.Customer) (flex.Document, error) {
	card, err := s.store.Cards().GetActiveCard(ctx, c.ID)
	if err != nil {
		return flex.Document{}, fmt.Errorf("get published card: %w", err)
	}
	if card == nil {
		return flex.Build(*c), nil
	}
	doc, err := flex.Decode(card.CardData)
	if err != nil {
		s.logger.Warn("stored card undecodable, sending generated card",
			zap.Int64("customer_id", c.ID),
			zap.String("card_id", card.ShareID),
			zap.Error(err),
		)
		return flex.Build(*c), nil
	}
	return doc, nil
}

func (s *MessagingService) recordExternal(err error) {
	var cfgErr *domain.ErrConfiguration
	if !errors.As(err, &cfgErr) {
		s.metrics.IncrExternalError("line")
	}
}

// TestConnection checks the credentials against the bot info endpoint.
func (s *MessagingService) TestConnection(ctx context.Context) (*domain.ConnectionResult, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.TestConnection")
	defer span.End()

	info, err := s.gateway.BotInfo(ctx)
	if err != nil {
		s.recordExternal(err)
		return nil, err
	}

	s.logger.Info("line connection ok", zap.String("bot", info.DisplayName))
	return &domain.ConnectionResult{
		Success: true,
		Message: "LINE API connection succeeded",
		BotInfo: *info,
	}, nil
}
