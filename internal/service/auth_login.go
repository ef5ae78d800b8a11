package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

// ============================================================
// Login (POST /auth/login)
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "username and password are required"}
	}
	span.SetAttributes(attribute.String("username", username))

	user, err := s.store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		s.burnCompare(req.Password)
		s.metrics.IncrLogin(false)
		s.logger.Warn("login: unknown or inactive user", zap.String("username", username))
		return nil, &domain.ErrInvalidCredentials{}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.IncrLogin(false)
		s.logger.Warn("login: wrong password", zap.Int64("user_id", user.ID))
		return nil, &domain.ErrInvalidCredentials{}
	}

	token, tokenHash, err := newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now()
	sess := &domain.UserSession{
		UserID:    user.ID,
		TokenHash: tokenHash,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.SessionTTL),
		IsActive:  true,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
	err = s.store.InTx(ctx, func(tx port.Store) error {
		if err := tx.Sessions().CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return tx.Users().TouchLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		return nil, err
	}
	user.LastLogin = &now

	s.metrics.IncrLogin(true)
	s.logger.Info("user logged in", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))

	return &domain.LoginResponse{
		Message:   "login successful",
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      user.Profile(),
	}, nil
}

// ============================================================
// Sessions
// ============================================================

// Authenticate resolves a bearer token to its user. It returns (nil, nil)
// for an unknown, revoked or expired session and for an inactive user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.AuthUser, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	if token == "" {
		return nil, nil
	}
	sess, err := s.store.Sessions().GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil || !sess.IsActive || sess.Expired(s.now()) {
		return nil, nil
	}

	user, err := s.store.Users().GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil
	}
	return user, nil
}

// Authorize authenticates token and checks the role grants perm.
func (s *AuthService) Authorize(ctx context.Context, token string, perm domain.Permission) (*domain.AuthUser, error) {
	user, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{}
	}
	if !user.Role.Can(perm) {
		return nil, &domain.ErrForbidden{Action: string(perm)}
	}
	return user, nil
}

// Logout revokes the session. Unknown and already revoked tokens succeed.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if token == "" {
		return nil
	}
	if err := s.store.Sessions().DeactivateSession(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
