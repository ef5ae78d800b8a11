package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// Rows carry gorm column tags for the ORM paths and db tags for pgxscan.

type customerRow struct {
	ID              int64      `gorm:"column:id;primaryKey" db:"id"`
	Name            string     `gorm:"column:name" db:"name"`
	Phone           string     `gorm:"column:phone" db:"phone"`
	Email           string     `gorm:"column:email" db:"email"`
	Company         string     `gorm:"column:company" db:"company"`
	Position        string     `gorm:"column:position" db:"position"`
	ExternalUserID  string     `gorm:"column:external_user_id" db:"external_user_id"`
	Address         string     `gorm:"column:address" db:"address"`
	Website         string     `gorm:"column:website" db:"website"`
	FacebookURL     string     `gorm:"column:facebook_url" db:"facebook_url"`
	MapURL          string     `gorm:"column:map_url" db:"map_url"`
	Notes           string     `gorm:"column:notes" db:"notes"`
	ContractEndDate *time.Time `gorm:"column:contract_end_date;type:date" db:"contract_end_date"`
	CreatedAt       time.Time  `gorm:"column:created_at" db:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" db:"updated_at"`
}

func (customerRow) TableName() string { return "customers" }

func customerFromDomain(c *domain.Customer) customerRow {
	row := customerRow{
		ID:             c.ID,
		Name:           c.Name,
		Phone:          c.Phone,
		Email:          c.Email,
		Company:        c.Company,
		Position:       c.Position,
		ExternalUserID: c.ExternalUserID,
		Address:        c.Address,
		Website:        c.Website,
		FacebookURL:    c.FacebookURL,
		MapURL:         c.MapURL,
		Notes:          c.Notes,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.ContractEndDate != nil {
		t := c.ContractEndDate.Time
		row.ContractEndDate = &t
	}
	return row
}

func (r customerRow) toDomain() domain.Customer {
	c := domain.Customer{
		ID:             r.ID,
		Name:           r.Name,
		Phone:          r.Phone,
		Email:          r.Email,
		Company:        r.Company,
		Position:       r.Position,
		ExternalUserID: r.ExternalUserID,
		Address:        r.Address,
		Website:        r.Website,
		FacebookURL:    r.FacebookURL,
		MapURL:         r.MapURL,
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ContractEndDate != nil {
		c.ContractEndDate = &domain.Date{Time: *r.ContractEndDate}
	}
	return c
}

type customerListRow struct {
	Customer         customerRow `gorm:"embedded"`
	HasPublishedCard bool        `gorm:"column:has_published_card"`
}

type cardRow struct {
	ID         int64          `gorm:"column:id;primaryKey" db:"id"`
	CustomerID int64          `gorm:"column:customer_id" db:"customer_id"`
	ShareID    string         `gorm:"column:share_id" db:"share_id"`
	Title      string         `gorm:"column:title" db:"title"`
	CardData   datatypes.JSON `gorm:"column:card_data;type:json" db:"card_data"`
	ShareURL   string         `gorm:"column:share_url" db:"share_url"`
	ViewCount  int64          `gorm:"column:view_count" db:"view_count"`
	IsActive   bool           `gorm:"column:is_active" db:"is_active"`
	CreatedAt  time.Time      `gorm:"column:created_at" db:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" db:"updated_at"`
}

func (cardRow) TableName() string { return "published_cards" }

func cardFromDomain(c *domain.PublishedCard) cardRow {
	return cardRow{
		ID:         c.ID,
		CustomerID: c.CustomerID,
		ShareID:    c.ShareID,
		Title:      c.Title,
		CardData:   datatypes.JSON(c.CardData),
		ShareURL:   c.ShareURL,
		ViewCount:  c.ViewCount,
		IsActive:   c.IsActive,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (r cardRow) toDomain() domain.PublishedCard {
	return domain.PublishedCard{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		ShareID:    r.ShareID,
		Title:      r.Title,
		CardData:   json.RawMessage(r.CardData),
		ShareURL:   r.ShareURL,
		ViewCount:  r.ViewCount,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type userRow struct {
	ID           int64      `gorm:"column:id;primaryKey"`
	Username     string     `gorm:"column:username"`
	Email        string     `gorm:"column:email"`
	FullName     string     `gorm:"column:full_name"`
	PasswordHash string     `gorm:"column:password_hash"`
	Role         string     `gorm:"column:role"`
	IsActive     bool       `gorm:"column:is_active"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	LastLogin    *time.Time `gorm:"column:last_login"`
	CreatedBy    *int64     `gorm:"column:created_by"`
}

func (userRow) TableName() string { return "auth_users" }

func userFromDomain(u *domain.AuthUser) userRow {
	return userRow{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
		CreatedBy:    u.CreatedBy,
	}
}

func (r userRow) toDomain() domain.AuthUser {
	return domain.AuthUser{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		FullName:     r.FullName,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		LastLogin:    r.LastLogin,
		CreatedBy:    r.CreatedBy,
	}
}

type sessionRow struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    int64     `gorm:"column:user_id"`
	TokenHash string    `gorm:"column:token_hash"`
	CreatedAt time.Time `gorm:"column:created_at"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
	IsActive  bool      `gorm:"column:is_active"`
	IPAddress string    `gorm:"column:ip_address"`
	UserAgent string    `gorm:"column:user_agent"`
}

func (sessionRow) TableName() string { return "user_sessions" }

func (r sessionRow) toDomain() domain.UserSession {
	return domain.UserSession{
		ID:        r.ID,
		UserID:    r.UserID,
		TokenHash: r.TokenHash,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		IsActive:  r.IsActive,
		IPAddress: r.IPAddress,
		UserAgent: r.UserAgent,
	}
}
