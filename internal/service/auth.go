// Package service holds the application use cases. Services depend on the
// ports in internal/port and never on a concrete store or broker.
package service

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const bcryptCost = 12

// AuthService handles operator login, sessions, permissions and user
// administration.
type AuthService struct {
	store   port.Store
	metrics *observability.Metrics
	cost    int
	now     func() time.Time
	logger  *zap.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.cost = cost }
}

// WithClock overrides the time source used for session expiry.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.Store, metrics *observability.Metrics, logger *zap.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		store:   store,
		metrics: metrics,
		cost:    bcryptCost,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) hashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// burnCompare spends the same time as a real password check so unknown
// usernames are not distinguishable by latency.
func (s *AuthService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}
