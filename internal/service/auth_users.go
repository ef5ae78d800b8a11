package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

// ============================================================
// User administration (/auth/users)
// ============================================================

func (s *AuthService) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ListUsers")
	defer span.End()

	users, err := s.store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.UserProfile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Profile())
	}
	return out, nil
}

// CreateUser adds an operator account on behalf of actor.
func (s *AuthService) CreateUser(ctx context.Context, actor *domain.AuthUser, req *domain.CreateUserRequest) (*domain.UserProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.CreateUser")
	defer span.End()

	var createdBy *int64
	if actor != nil {
		createdBy = &actor.ID
	}
	u, err := s.createUser(ctx, req, createdBy)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

// CreateInitialAdmin creates an admin account with no creator. Used to
// bootstrap a fresh installation from the command line.
func (s *AuthService) CreateInitialAdmin(ctx context.Context, username, email, password, fullName string) (*domain.AuthUser, error) {
	return s.createUser(ctx, &domain.CreateUserRequest{
		Username: username,
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     domain.RoleAdmin,
	}, nil)
}

// EnsureInitialAdmin creates an admin account when the store holds no users
// yet. It returns nil when accounts already exist.
func (s *AuthService) EnsureInitialAdmin(ctx context.Context, username, email, password string) (*domain.AuthUser, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.EnsureInitialAdmin")
	defer span.End()

	users, err := s.store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if len(users) > 0 {
		return nil, nil
	}
	return s.CreateInitialAdmin(ctx, username, email, password, "Administrator")
}

func (s *AuthService) createUser(ctx context.Context, req *domain.CreateUserRequest, createdBy *int64) (*domain.AuthUser, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	switch {
	case username == "":
		return nil, &domain.ErrValidation{Field: "username", Message: "username is required"}
	case !validEmail(email):
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	case !req.Role.Valid():
		return nil, &domain.ErrValidation{Field: "role", Message: "role must be one of admin, developer, sales, designer"}
	}
	if err := validatePassword("password", req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.AuthUser{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
		CreatedBy:    createdBy,
	}

	err = s.store.InTx(ctx, func(tx port.Store) error {
		if existing, err := tx.Users().GetUserByUsername(ctx, username); err != nil {
			return err
		} else if existing != nil {
			return &domain.ErrConflict{Message: "username already exists"}
		}
		if existing, err := tx.Users().GetUserByEmail(ctx, email); err != nil {
			return err
		} else if existing != nil {
			return &domain.ErrConflict{Message: "email already exists"}
		}
		return tx.Users().CreateUser(ctx, u)
	})
	if err != nil {
		return nil, conflictOnDuplicate(err)
	}

	s.logger.Info("user created",
		zap.Int64("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// UpdateUser applies an admin edit. Deactivating a user revokes their
// sessions; admins cannot deactivate or demote themselves.
func (s *AuthService) UpdateUser(ctx context.Context, actor *domain.AuthUser, id int64, req *domain.UpdateUserRequest) (*domain.UserProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id))

	var updated *domain.AuthUser
	err := s.store.InTx(ctx, func(tx port.Store) error {
		u, err := s.getUser(ctx, tx, id)
		if err != nil {
			return err
		}

		if req.Email != nil {
			email := strings.TrimSpace(*req.Email)
			if !validEmail(email) {
				return &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
			}
			other, err := tx.Users().GetUserByEmail(ctx, email)
			if err != nil {
				return err
			}
			if other != nil && other.ID != id {
				return &domain.ErrConflict{Message: "email already exists"}
			}
			u.Email = email
		}
		if req.FullName != nil {
			u.FullName = strings.TrimSpace(*req.FullName)
		}
		if req.Role != nil {
			if !req.Role.Valid() {
				return &domain.ErrValidation{Field: "role", Message: "role must be one of admin, developer, sales, designer"}
			}
			if actor != nil && actor.ID == id && *req.Role != domain.RoleAdmin {
				return &domain.ErrInvalidOperation{Message: "cannot change your own role"}
			}
			u.Role = *req.Role
		}
		if req.Password != nil {
			if err := validatePassword("password", *req.Password); err != nil {
				return err
			}
			hash, err := s.hashPassword(*req.Password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			u.PasswordHash = hash
		}
		deactivated := false
		if req.IsActive != nil {
			if actor != nil && actor.ID == id && !*req.IsActive {
				return &domain.ErrInvalidOperation{Message: "cannot deactivate your own account"}
			}
			deactivated = u.IsActive && !*req.IsActive
			u.IsActive = *req.IsActive
		}

		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return err
		}
		if deactivated {
			if _, err := tx.Sessions().DeactivateUserSessions(ctx, id); err != nil {
				return err
			}
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, conflictOnDuplicate(err)
	}

	s.logger.Info("user updated", zap.Int64("user_id", id))
	p := updated.Profile()
	return &p, nil
}

// DeleteUser soft-deletes the target: it is deactivated and every session
// it holds is revoked, in one transaction. An actor cannot delete itself.
func (s *AuthService) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	ctx, span := authTracer.Start(ctx, "AuthService.DeleteUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", targetID))

	if actorID == targetID {
		return &domain.ErrInvalidOperation{Message: "cannot delete your own account"}
	}

	var revoked int64
	err := s.store.InTx(ctx, func(tx port.Store) error {
		u, err := s.getUser(ctx, tx, targetID)
		if err != nil {
			return err
		}
		u.IsActive = false
		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return err
		}
		revoked, err = tx.Sessions().DeactivateUserSessions(ctx, targetID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("user deactivated",
		zap.Int64("user_id", targetID),
		zap.Int64("actor_id", actorID),
		zap.Int64("sessions_revoked", revoked),
	)
	return nil
}

func (s *AuthService) getUser(ctx context.Context, store port.Store, id int64) (*domain.AuthUser, error) {
	u, err := store.Users().GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(id, 10)}
	}
	return u, nil
}

// conflictOnDuplicate turns a unique index rejection that slipped past the
// pre-checks into a conflict.
func conflictOnDuplicate(err error) error {
	if errors.Is(err, port.ErrDuplicate) {
		return &domain.ErrConflict{Message: "username or email already exists"}
	}
	return err
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
