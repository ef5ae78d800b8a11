package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"gorm.io/gorm/clause"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

const cardColumns = `id, customer_id, share_id, title, card_data, share_url, view_count,
	is_active, created_at, updated_at`

func (s *Store) activeCard(ctx context.Context, customerID int64, lock bool) (*domain.PublishedCard, error) {
	q := s.db(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row cardRow
	err := q.Where("customer_id = ? AND is_active", customerID).First(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active card: %w", err)
	}
	card := row.toDomain()
	return &card, nil
}

func (s *Store) LockActiveCard(ctx context.Context, customerID int64) (*domain.PublishedCard, error) {
	return s.activeCard(ctx, customerID, true)
}

func (s *Store) GetActiveCard(ctx context.Context, customerID int64) (*domain.PublishedCard, error) {
	return s.activeCard(ctx, customerID, false)
}

func (s *Store) GetActiveCardByShareID(ctx context.Context, shareID string) (*domain.PublishedCard, error) {
	var row cardRow
	err := s.db(ctx).Where("share_id = ? AND is_active", shareID).First(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get card by share id: %w", err)
	}
	card := row.toDomain()
	if err := s.attachCustomer(ctx, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *Store) InsertCard(ctx context.Context, card *domain.PublishedCard) error {
	row := cardFromDomain(card)
	if err := s.db(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert card: %w", translate(err))
	}
	card.ID = row.ID
	card.CreatedAt = row.CreatedAt
	card.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) UpdateCardContent(ctx context.Context, card *domain.PublishedCard) error {
	now := time.Now().UTC()
	res := s.db(ctx).Model(&cardRow{ID: card.ID}).Updates(map[string]any{
		"title":      card.Title,
		"card_data":  cardFromDomain(card).CardData,
		"share_url":  card.ShareURL,
		"updated_at": now,
	})
	if res.Error != nil {
		return fmt.Errorf("update card: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "published card", ID: strconv.FormatInt(card.ID, 10)}
	}
	card.UpdatedAt = now
	return nil
}

func (s *Store) DeactivateCard(ctx context.Context, cardID int64) error {
	res := s.db(ctx).Model(&cardRow{ID: cardID}).Updates(map[string]any{
		"is_active":  false,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("deactivate card: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "published card", ID: strconv.FormatInt(cardID, 10)}
	}
	return nil
}

// IncrementViews is a single UPDATE ... RETURNING so concurrent viewers
// never lose an increment.
func (s *Store) IncrementViews(ctx context.Context, shareID string) (*domain.PublishedCard, error) {
	qctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var rows []cardRow
	err := pgxscan.Select(qctx, s.pool, &rows, `
		UPDATE published_cards
		SET view_count = view_count + 1
		WHERE share_id = $1 AND is_active
		RETURNING `+cardColumns, shareID)
	if err != nil {
		return nil, fmt.Errorf("increment views: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	card := rows[0].toDomain()
	if err := s.attachCustomer(ctx, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *Store) ListActiveCards(ctx context.Context) ([]domain.PublishedCard, error) {
	var rows []cardRow
	if err := s.db(ctx).Where("is_active").Order("updated_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CustomerID)
	}
	customers := make(map[int64]domain.Customer, len(ids))
	if len(ids) > 0 {
		var crow []customerRow
		if err := s.db(ctx).Where("id IN ?", ids).Find(&crow).Error; err != nil {
			return nil, fmt.Errorf("load card customers: %w", err)
		}
		for _, c := range crow {
			customers[c.ID] = c.toDomain()
		}
	}

	out := make([]domain.PublishedCard, 0, len(rows))
	for _, r := range rows {
		card := r.toDomain()
		if c, ok := customers[card.CustomerID]; ok {
			card.Customer = &c
		}
		out = append(out, card)
	}
	return out, nil
}

func (s *Store) CardStats(ctx context.Context, top int) (*domain.CardStats, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var totals struct {
		TotalCustomers int64 `db:"total_customers"`
		ActiveCards    int64 `db:"active_cards"`
		InactiveCards  int64 `db:"inactive_cards"`
		TotalViews     int64 `db:"total_views"`
	}
	err := pgxscan.Get(ctx, s.pool, &totals, `
		SELECT
			(SELECT count(*) FROM customers)            AS total_customers,
			count(*) FILTER (WHERE is_active)           AS active_cards,
			count(*) FILTER (WHERE NOT is_active)       AS inactive_cards,
			COALESCE(sum(view_count), 0)::bigint        AS total_views
		FROM published_cards`)
	if err != nil {
		return nil, fmt.Errorf("card totals: %w", err)
	}

	ranks := []domain.CardViewRank{}
	err = pgxscan.Select(ctx, s.pool, &ranks, `
		SELECT pc.share_id, pc.title, pc.customer_id,
			COALESCE(c.name, '') AS customer_name, pc.view_count
		FROM published_cards pc
		LEFT JOIN customers c ON c.id = pc.customer_id
		WHERE pc.is_active
		ORDER BY pc.view_count DESC, pc.share_id
		LIMIT $1`, top)
	if err != nil {
		return nil, fmt.Errorf("top cards: %w", err)
	}

	return &domain.CardStats{
		TotalCustomers: totals.TotalCustomers,
		ActiveCards:    totals.ActiveCards,
		InactiveCards:  totals.InactiveCards,
		TotalViews:     totals.TotalViews,
		TopCards:       ranks,
	}, nil
}

func (s *Store) attachCustomer(ctx context.Context, card *domain.PublishedCard) error {
	c, err := s.GetCustomer(ctx, card.CustomerID)
	if err != nil {
		return err
	}
	card.Customer = c
	return nil
}
