// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
)

// Store errors reported by every persistence adapter.
var (
	// ErrShareIDTaken means the generated share id collided with an existing card.
	ErrShareIDTaken = errors.New("share id already in use")
	// ErrActiveCardExists means another active card was inserted concurrently
	// for the same customer.
	ErrActiveCardExists = errors.New("customer already has an active card")
	// ErrDuplicate means a unique user attribute (username, email) is taken.
	ErrDuplicate = errors.New("duplicate value")
)

// Store is the transactional persistence boundary. Lookups return (nil, nil)
// when the row does not exist.
type Store interface {
	Customers() CustomerStore
	Cards() CardStore
	Users() UserStore
	Sessions() SessionStore

	// InTx runs fn against a transactional view of the store. Any error
	// returned by fn rolls back every write made through that view.
	InTx(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
}

// CustomerStore handles customer records.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c *domain.Customer) error
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, c *domain.Customer) error
	DeleteCustomer(ctx context.Context, id int64) (bool, error)
	ListCustomers(ctx context.Context, page, pageSize int) ([]domain.CustomerSummary, int, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	FindCustomerByNamePhone(ctx context.Context, name, phone string) (*domain.Customer, error)
}

// CardStore handles published cards.
type CardStore interface {
	// LockActiveCard returns the active card of a customer, locking the row
	// until the surrounding transaction ends.
	LockActiveCard(ctx context.Context, customerID int64) (*domain.PublishedCard, error)
	GetActiveCard(ctx context.Context, customerID int64) (*domain.PublishedCard, error)
	GetActiveCardByShareID(ctx context.Context, shareID string) (*domain.PublishedCard, error)

	// InsertCard returns ErrShareIDTaken or ErrActiveCardExists when a unique
	// constraint rejects the row.
	InsertCard(ctx context.Context, card *domain.PublishedCard) error
	UpdateCardContent(ctx context.Context, card *domain.PublishedCard) error
	DeactivateCard(ctx context.Context, cardID int64) error

	// IncrementViews atomically adds one view to an active card and returns
	// the updated row, or nil when no active card has that share id.
	IncrementViews(ctx context.Context, shareID string) (*domain.PublishedCard, error)

	ListActiveCards(ctx context.Context) ([]domain.PublishedCard, error)
	CardStats(ctx context.Context, top int) (*domain.CardStats, error)
}

// UserStore handles operator accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.AuthUser) error
	GetUser(ctx context.Context, id int64) (*domain.AuthUser, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.AuthUser, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.AuthUser, error)
	ListUsers(ctx context.Context) ([]domain.AuthUser, error)
	UpdateUser(ctx context.Context, u *domain.AuthUser) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// SessionStore handles login sessions, keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.UserSession) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.UserSession, error)
	DeactivateSession(ctx context.Context, tokenHash string) error
	DeactivateUserSessions(ctx context.Context, userID int64) (int64, error)
}

// MessagingGateway sends messages through the LINE Messaging API.
type MessagingGateway interface {
	PushMessage(ctx context.Context, to string, messages ...flex.Message) error
	BotInfo(ctx context.Context) (*domain.BotInfo, error)
}

// EventPublisher announces committed card lifecycle changes.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.CardEvent) error
	Close() error
}

// CardArchive stores published documents and exports in object storage.
type CardArchive interface {
	PutCard(ctx context.Context, card *domain.PublishedCard) error
	PutExport(ctx context.Context, name string, body []byte) (downloadURL string, err error)
}

// ClaimStore records one-time claims, such as a counted page view for a
// given idempotency key.
type ClaimStore interface {
	// Claim returns true when key was not claimed within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a claim so the key can be claimed again.
	Release(ctx context.Context, key string) error
}
