package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// ============================================================
// Users
// ============================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.AuthUser) error {
	row := userFromDomain(u)
	if err := s.db(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert user: %w", translate(err))
	}
	u.ID = row.ID
	u.CreatedAt = row.CreatedAt
	return nil
}

func (s *Store) getUserWhere(ctx context.Context, query string, args ...any) (*domain.AuthUser, error) {
	var row userRow
	err := s.db(ctx).Where(query, args...).First(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := row.toDomain()
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.AuthUser, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.AuthUser, error) {
	return s.getUserWhere(ctx, "username = ?", username)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.AuthUser, error) {
	return s.getUserWhere(ctx, "lower(email) = lower(?)", email)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.AuthUser, error) {
	var rows []userRow
	if err := s.db(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.AuthUser, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.AuthUser) error {
	res := s.db(ctx).Model(&userRow{ID: u.ID}).Updates(map[string]any{
		"email":         u.Email,
		"full_name":     u.FullName,
		"password_hash": u.PasswordHash,
		"role":          string(u.Role),
		"is_active":     u.IsActive,
	})
	if res.Error != nil {
		return fmt.Errorf("update user: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(u.ID, 10)}
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	err := s.db(ctx).Model(&userRow{ID: userID}).Update("last_login", at).Error
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// ============================================================
// Sessions
// ============================================================

func (s *Store) CreateSession(ctx context.Context, sess *domain.UserSession) error {
	row := sessionRow{
		UserID:    sess.UserID,
		TokenHash: sess.TokenHash,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		IsActive:  sess.IsActive,
		IPAddress: sess.IPAddress,
		UserAgent: sess.UserAgent,
	}
	if err := s.db(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert session: %w", translate(err))
	}
	sess.ID = row.ID
	return nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.UserSession, error) {
	var row sessionRow
	err := s.db(ctx).Where("token_hash = ?", tokenHash).First(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess := row.toDomain()
	return &sess, nil
}

func (s *Store) DeactivateSession(ctx context.Context, tokenHash string) error {
	err := s.db(ctx).Model(&sessionRow{}).
		Where("token_hash = ? AND is_active", tokenHash).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

func (s *Store) DeactivateUserSessions(ctx context.Context, userID int64) (int64, error) {
	res := s.db(ctx).Model(&sessionRow{}).
		Where("user_id = ? AND is_active", userID).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
