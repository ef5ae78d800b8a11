package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

const customerColumns = `id, name, phone, email, company, position, external_user_id, address,
	website, facebook_url, map_url, notes, contract_end_date, created_at, updated_at`

func (s *Store) CreateCustomer(ctx context.Context, c *domain.Customer) error {
	row := customerFromDomain(c)
	if err := s.db(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	*c = row.toDomain()
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var row customerRow
	err := s.db(ctx).First(&row, id).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c := row.toDomain()
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *domain.Customer) error {
	row := customerFromDomain(c)
	row.UpdatedAt = time.Now().UTC()

	res := s.db(ctx).Model(&customerRow{ID: c.ID}).
		Select("*").Omit("id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update customer: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "customer", ID: strconv.FormatInt(c.ID, 10)}
	}
	c.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) (bool, error) {
	res := s.db(ctx).Delete(&customerRow{}, id)
	if res.Error != nil {
		return false, fmt.Errorf("delete customer: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListCustomers(ctx context.Context, page, pageSize int) ([]domain.CustomerSummary, int, error) {
	var total int64
	if err := s.db(ctx).Model(&customerRow{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	var rows []customerListRow
	err := s.db(ctx).Table("customers").
		Select(`customers.*, EXISTS (
			SELECT 1 FROM published_cards pc
			WHERE pc.customer_id = customers.id AND pc.is_active
		) AS has_published_card`).
		Order("created_at DESC, id DESC").
		Limit(pageSize).
		Offset((max(page, 1) - 1) * pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}

	out := make([]domain.CustomerSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CustomerSummary{Customer: r.Customer.toDomain(), HasPublishedCard: r.HasPublishedCard})
	}
	return out, int(total), nil
}

// SearchCustomers runs a case-insensitive substring match over name,
// company, phone and email.
func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	pattern := "%" + escapeLike(query) + "%"
	var rows []customerRow
	err := pgxscan.Select(ctx, s.pool, &rows, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE name ILIKE $1 OR company ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1
		ORDER BY name, id
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}

	out := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) FindCustomerByNamePhone(ctx context.Context, name, phone string) (*domain.Customer, error) {
	var row customerRow
	err := s.db(ctx).Where("name = ? AND phone = ?", name, phone).Order("id").First(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	c := row.toDomain()
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
