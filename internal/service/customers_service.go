package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/events"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

var customerTracer = otel.Tracer("service/customers")

const (
	defaultPageSize = 20
	maxPageSize     = 100
	searchLimit     = 50
)

// CustomerService manages customer records.
type CustomerService struct {
	store  port.Store
	events port.EventPublisher
	logger *zap.Logger
}

// NewCustomerService creates a new customer service.
func NewCustomerService(store port.Store, events port.EventPublisher, logger *zap.Logger) *CustomerService {
	return &CustomerService{store: store, events: events, logger: logger}
}

func (s *CustomerService) Create(ctx context.Context, in domain.CustomerInput) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Create")
	defer span.End()

	c, err := domain.NewCustomer(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.Customers().CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	s.logger.Info("customer created", zap.Int64("customer_id", c.ID))
	return c, nil
}

func (s *CustomerService) Get(ctx context.Context, id int64) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))

	return getCustomer(ctx, s.store, id)
}

func (s *CustomerService) List(ctx context.Context, page, pageSize int) (*domain.ListResponse[domain.CustomerSummary], error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.List")
	defer span.End()

	page = max(page, 1)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	items, total, err := s.store.Customers().ListCustomers(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return &domain.ListResponse[domain.CustomerSummary]{
		Data:     items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  page*pageSize < total,
	}, nil
}

// Search matches q against name, company, phone and email. A blank query
// returns no results.
func (s *CustomerService) Search(ctx context.Context, q string) ([]domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Search")
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return []domain.Customer{}, nil
	}
	found, err := s.store.Customers().SearchCustomers(ctx, q, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	if found == nil {
		found = []domain.Customer{}
	}
	return found, nil
}

func (s *CustomerService) Update(ctx context.Context, id int64, patch domain.CustomerPatch) (*domain.Customer, error) {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))

	var updated *domain.Customer
	err := s.store.InTx(ctx, func(tx port.Store) error {
		c, err := getCustomer(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := c.Apply(patch); err != nil {
			return err
		}
		if err := tx.Customers().UpdateCustomer(ctx, c); err != nil {
			return fmt.Errorf("update customer: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("customer updated", zap.Int64("customer_id", id))
	return updated, nil
}

// Delete removes the customer and deactivates its published card in the
// same transaction, so no active card outlives its customer.
func (s *CustomerService) Delete(ctx context.Context, id int64) error {
	ctx, span := customerTracer.Start(ctx, "CustomerService.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", id))

	var unpublished *domain.PublishedCard
	err := s.store.InTx(ctx, func(tx port.Store) error {
		card, err := tx.Cards().LockActiveCard(ctx, id)
		if err != nil {
			return err
		}
		if card != nil {
			if err := tx.Cards().DeactivateCard(ctx, card.ID); err != nil {
				return err
			}
			unpublished = card
		}

		deleted, err := tx.Customers().DeleteCustomer(ctx, id)
		if err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		if !deleted {
			return &domain.ErrNotFound{Resource: "customer", ID: strconv.FormatInt(id, 10)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if unpublished != nil {
		emit(ctx, s.events, s.logger, events.NewEvent(domain.EventCardUnpublished, unpublished))
	}
	s.logger.Info("customer deleted", zap.Int64("customer_id", id), zap.Bool("card_unpublished", unpublished != nil))
	return nil
}

func getCustomer(ctx context.Context, store port.Store, id int64) (*domain.Customer, error) {
	c, err := store.Customers().GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if c == nil {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: strconv.FormatInt(id, 10)}
	}
	return c, nil
}

// emit publishes a committed event. Broker failures are logged only.
func emit(ctx context.Context, publisher port.EventPublisher, logger *zap.Logger, evt domain.CardEvent) {
	if err := publisher.Publish(ctx, evt); err != nil {
		logger.Warn("event publish failed",
			zap.String("event_type", evt.Type),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
	}
}
