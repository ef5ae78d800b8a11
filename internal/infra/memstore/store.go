// Package memstore is an in-process implementation of port.Store used for
// local runs without Postgres and by the service and handler tests.
//
// A transaction holds the store lock for its whole duration and restores a
// snapshot of every table when its callback fails.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

type tables struct {
	customers map[int64]domain.Customer
	cards     map[int64]domain.PublishedCard
	users     map[int64]domain.AuthUser
	sessions  map[string]domain.UserSession

	nextCustomerID int64
	nextCardID     int64
	nextUserID     int64
	nextSessionID  int64
}

func (t *tables) clone() *tables {
	c := *t
	c.customers = maps.Clone(t.customers)
	c.cards = maps.Clone(t.cards)
	c.users = maps.Clone(t.users)
	c.sessions = maps.Clone(t.sessions)
	return &c
}

// Store keeps every table in memory.
type Store struct {
	mu   *sync.Mutex
	t    *tables
	inTx bool
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		mu: &sync.Mutex{},
		t: &tables{
			customers: make(map[int64]domain.Customer),
			cards:     make(map[int64]domain.PublishedCard),
			users:     make(map[int64]domain.AuthUser),
			sessions:  make(map[string]domain.UserSession),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ port.Store = (*Store)(nil)

func (s *Store) Customers() port.CustomerStore { return s }
func (s *Store) Cards() port.CardStore         { return s }
func (s *Store) Users() port.UserStore         { return s }
func (s *Store) Sessions() port.SessionStore   { return s }

// InTx runs fn with exclusive access to the store. Nested calls join the
// outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx port.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.t.clone()
	tx := &Store{mu: s.mu, t: s.t, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		*s.t = *snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// ============================================================
// Customers
// ============================================================

func (s *Store) CreateCustomer(_ context.Context, c *domain.Customer) error {
	defer s.lock()()

	s.t.nextCustomerID++
	now := s.now()
	c.ID = s.t.nextCustomerID
	c.CreatedAt = now
	c.UpdatedAt = now
	s.t.customers[c.ID] = *c
	return nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	defer s.lock()()

	c, ok := s.t.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c *domain.Customer) error {
	defer s.lock()()

	existing, ok := s.t.customers[c.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "customer", ID: idString(c.ID)}
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	s.t.customers[c.ID] = *c
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) (bool, error) {
	defer s.lock()()

	if _, ok := s.t.customers[id]; !ok {
		return false, nil
	}
	delete(s.t.customers, id)
	return true, nil
}

func (s *Store) ListCustomers(_ context.Context, page, pageSize int) ([]domain.CustomerSummary, int, error) {
	defer s.lock()()

	active := make(map[int64]bool)
	for _, card := range s.t.cards {
		if card.IsActive {
			active[card.CustomerID] = true
		}
	}

	all := slices.Collect(maps.Values(s.t.customers))
	slices.SortFunc(all, func(a, b domain.Customer) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(all)
	page = max(page, 1)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	out := make([]domain.CustomerSummary, 0, end-start)
	for _, c := range all[start:end] {
		out = append(out, domain.CustomerSummary{Customer: c, HasPublishedCard: active[c.ID]})
	}
	return out, total, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	defer s.lock()()

	q := strings.ToLower(query)
	var out []domain.Customer
	for _, c := range s.t.customers {
		for _, field := range []string{c.Name, c.Company, c.Phone, c.Email} {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, c)
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Customer) int { return cmp.Compare(a.Name, b.Name) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindCustomerByNamePhone(_ context.Context, name, phone string) (*domain.Customer, error) {
	defer s.lock()()

	var found *domain.Customer
	for _, c := range s.t.customers {
		if c.Name == name && c.Phone == phone && (found == nil || c.ID < found.ID) {
			found = &c
		}
	}
	return found, nil
}

// ============================================================
// Published cards
// ============================================================

func (s *Store) activeCard(customerID int64) *domain.PublishedCard {
	for _, card := range s.t.cards {
		if card.CustomerID == customerID && card.IsActive {
			return &card
		}
	}
	return nil
}

func (s *Store) LockActiveCard(_ context.Context, customerID int64) (*domain.PublishedCard, error) {
	defer s.lock()()
	return s.activeCard(customerID), nil
}

func (s *Store) GetActiveCard(_ context.Context, customerID int64) (*domain.PublishedCard, error) {
	defer s.lock()()
	return s.activeCard(customerID), nil
}

func (s *Store) GetActiveCardByShareID(_ context.Context, shareID string) (*domain.PublishedCard, error) {
	defer s.lock()()

	for _, card := range s.t.cards {
		if card.ShareID == shareID && card.IsActive {
			if c, ok := s.t.customers[card.CustomerID]; ok {
				card.Customer = &c
			}
			return &card, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertCard(_ context.Context, card *domain.PublishedCard) error {
	defer s.lock()()

	for _, existing := range s.t.cards {
		if existing.ShareID == card.ShareID {
			return port.ErrShareIDTaken
		}
		if card.IsActive && existing.IsActive && existing.CustomerID == card.CustomerID {
			return port.ErrActiveCardExists
		}
	}

	s.t.nextCardID++
	now := s.now()
	card.ID = s.t.nextCardID
	card.CreatedAt = now
	card.UpdatedAt = now
	stored := *card
	stored.Customer = nil
	s.t.cards[card.ID] = stored
	return nil
}

func (s *Store) UpdateCardContent(_ context.Context, card *domain.PublishedCard) error {
	defer s.lock()()

	existing, ok := s.t.cards[card.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "published card", ID: idString(card.ID)}
	}
	existing.Title = card.Title
	existing.CardData = card.CardData
	existing.ShareURL = card.ShareURL
	existing.UpdatedAt = s.now()
	s.t.cards[card.ID] = existing

	card.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *Store) DeactivateCard(_ context.Context, cardID int64) error {
	defer s.lock()()

	existing, ok := s.t.cards[cardID]
	if !ok {
		return &domain.ErrNotFound{Resource: "published card", ID: idString(cardID)}
	}
	existing.IsActive = false
	existing.UpdatedAt = s.now()
	s.t.cards[cardID] = existing
	return nil
}

func (s *Store) IncrementViews(_ context.Context, shareID string) (*domain.PublishedCard, error) {
	defer s.lock()()

	for id, card := range s.t.cards {
		if card.ShareID == shareID && card.IsActive {
			card.ViewCount++
			s.t.cards[id] = card
			if c, ok := s.t.customers[card.CustomerID]; ok {
				card.Customer = &c
			}
			return &card, nil
		}
	}
	return nil, nil
}

func (s *Store) ListActiveCards(_ context.Context) ([]domain.PublishedCard, error) {
	defer s.lock()()

	out := []domain.PublishedCard{}
	for _, card := range s.t.cards {
		if !card.IsActive {
			continue
		}
		if c, ok := s.t.customers[card.CustomerID]; ok {
			card.Customer = &c
		}
		out = append(out, card)
	}
	slices.SortFunc(out, func(a, b domain.PublishedCard) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) CardStats(_ context.Context, top int) (*domain.CardStats, error) {
	defer s.lock()()

	stats := &domain.CardStats{
		TotalCustomers: int64(len(s.t.customers)),
		TopCards:       []domain.CardViewRank{},
	}
	for _, card := range s.t.cards {
		stats.TotalViews += card.ViewCount
		if !card.IsActive {
			stats.InactiveCards++
			continue
		}
		stats.ActiveCards++
		rank := domain.CardViewRank{
			ShareID:    card.ShareID,
			Title:      card.Title,
			CustomerID: card.CustomerID,
			ViewCount:  card.ViewCount,
		}
		if c, ok := s.t.customers[card.CustomerID]; ok {
			rank.CustomerName = c.Name
		}
		stats.TopCards = append(stats.TopCards, rank)
	}
	slices.SortFunc(stats.TopCards, func(a, b domain.CardViewRank) int {
		if c := cmp.Compare(b.ViewCount, a.ViewCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ShareID, b.ShareID)
	})
	if len(stats.TopCards) > top {
		stats.TopCards = stats.TopCards[:top]
	}
	return stats, nil
}

// ============================================================
// Users
// ============================================================

// uniqueUser matches usernames exactly and emails case-insensitively, the
// same rules as the Postgres unique indexes.
func (s *Store) uniqueUser(u *domain.AuthUser) error {
	for _, existing := range s.t.users {
		if existing.ID == u.ID {
			continue
		}
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return port.ErrDuplicate
		}
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, u *domain.AuthUser) error {
	defer s.lock()()

	if err := s.uniqueUser(u); err != nil {
		return err
	}
	s.t.nextUserID++
	u.ID = s.t.nextUserID
	u.CreatedAt = s.now()
	s.t.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.AuthUser, error) {
	defer s.lock()()

	u, ok := s.t.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.AuthUser, error) {
	defer s.lock()()

	for _, u := range s.t.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.AuthUser, error) {
	defer s.lock()()

	for _, u := range s.t.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.AuthUser, error) {
	defer s.lock()()

	out := slices.Collect(maps.Values(s.t.users))
	slices.SortFunc(out, func(a, b domain.AuthUser) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u *domain.AuthUser) error {
	defer s.lock()()

	existing, ok := s.t.users[u.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: idString(u.ID)}
	}
	if err := s.uniqueUser(u); err != nil {
		return err
	}
	u.CreatedAt = existing.CreatedAt
	s.t.users[u.ID] = *u
	return nil
}

func (s *Store) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	defer s.lock()()

	u, ok := s.t.users[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: idString(userID)}
	}
	u.LastLogin = &at
	s.t.users[userID] = u
	return nil
}

// ============================================================
// Sessions
// ============================================================

func (s *Store) CreateSession(_ context.Context, sess *domain.UserSession) error {
	defer s.lock()()

	if _, ok := s.t.sessions[sess.TokenHash]; ok {
		return port.ErrDuplicate
	}
	s.t.nextSessionID++
	sess.ID = s.t.nextSessionID
	s.t.sessions[sess.TokenHash] = *sess
	return nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.UserSession, error) {
	defer s.lock()()

	sess, ok := s.t.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *Store) DeactivateSession(_ context.Context, tokenHash string) error {
	defer s.lock()()

	if sess, ok := s.t.sessions[tokenHash]; ok {
		sess.IsActive = false
		s.t.sessions[tokenHash] = sess
	}
	return nil
}

func (s *Store) DeactivateUserSessions(_ context.Context, userID int64) (int64, error) {
	defer s.lock()()

	var n int64
	for hash, sess := range s.t.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			s.t.sessions[hash] = sess
			n++
		}
	}
	return n, nil
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
