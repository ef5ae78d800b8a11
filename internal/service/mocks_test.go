package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/archive"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

const testBaseURL = "https://cards.example.com"

// --- Mocks ---

type mockEvents struct {
	mu     sync.Mutex
	events []domain.CardEvent
	err    error
}

func (m *mockEvents) Publish(_ context.Context, evt domain.CardEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockEvents) Close() error { return nil }

func (m *mockEvents) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type push struct {
	to      string
	message flex.Message
}

type mockGateway struct {
	mu      sync.Mutex
	pushes  []push
	failFor map[string]error
	info    *domain.BotInfo
	infoErr error
}

func (m *mockGateway) PushMessage(_ context.Context, to string, messages ...flex.Message) error {
	if err := m.failFor[to]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.pushes = append(m.pushes, push{to: to, message: msg})
	}
	return nil
}

func (m *mockGateway) BotInfo(_ context.Context) (*domain.BotInfo, error) {
	return m.info, m.infoErr
}

type mockArchive struct {
	archive.Nop
	url string
}

func (m *mockArchive) PutExport(_ context.Context, name string, _ []byte) (string, error) {
	return m.url + "/" + name, nil
}

type mockClaims struct {
	seen map[string]bool
	err  error
}

func (m *mockClaims) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockClaims) Release(_ context.Context, key string) error {
	delete(m.seen, key)
	return nil
}

// --- Fixtures ---

type fixture struct {
	store     *memstore.Store
	events    *mockEvents
	metrics   *observability.Metrics
	customers *service.CustomerService
	publisher *service.PublisherService
}

func newFixture(t *testing.T, opts ...service.PublisherOption) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		events:  &mockEvents{},
		metrics: observability.NewMetrics(),
	}
	f.customers = service.NewCustomerService(f.store, f.events, zap.NewNop())
	f.publisher = service.NewPublisherService(f.store, f.events, archive.Nop{}, f.metrics, testBaseURL, zap.NewNop(), opts...)
	return f
}

func (f *fixture) customer(t *testing.T, in domain.CustomerInput) *domain.Customer {
	t.Helper()
	c, err := f.customers.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
