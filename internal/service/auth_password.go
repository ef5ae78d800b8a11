package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
)

// ============================================================
// Change password (POST /auth/change-password)
// ============================================================

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req *domain.ChangePasswordRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ChangePassword")
	defer span.End()

	if req.OldPassword == "" || req.NewPassword == "" {
		return &domain.ErrValidation{Field: "new_password", Message: "old and new password are required"}
	}
	if err := validatePassword("new_password", req.NewPassword); err != nil {
		return err
	}

	user, err := s.getUser(ctx, s.store, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return &domain.ErrValidation{Field: "old_password", Message: "current password is incorrect"}
	}

	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.store.Users().UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("password changed", zap.Int64("user_id", userID))
	return nil
}

func validatePassword(field, password string) error {
	if len(password) < domain.MinPasswordLength {
		return &domain.ErrValidation{
			Field:   field,
			Message: fmt.Sprintf("password must be at least %d characters", domain.MinPasswordLength),
		}
	}
	if len(password) > domain.MaxPasswordBytes {
		return &domain.ErrValidation{
			Field:   field,
			Message: fmt.Sprintf("password must be at most %d bytes", domain.MaxPasswordBytes),
		}
	}
	return nil
}
