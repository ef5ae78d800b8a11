package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

type authFixture struct {
	svc     *service.AuthService
	metrics *observability.Metrics
	now     time.Time
	admin   *domain.AuthUser
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		metrics: observability.NewMetrics(),
		now:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = service.NewAuthService(memstore.New(), f.metrics, zap.NewNop(),
		service.WithBcryptCost(bcrypt.MinCost),
		service.WithClock(func() time.Time { return f.now }),
	)

	admin, err := f.svc.CreateInitialAdmin(context.Background(), "admin", "admin@example.com", "admin-pass", "Admin")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	f.admin = admin
	return f
}

func (f *authFixture) user(t *testing.T, username string, role domain.Role) *domain.UserProfile {
	t.Helper()
	p, err := f.svc.CreateUser(context.Background(), f.admin, &domain.CreateUserRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret-pass",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return p
}

func (f *authFixture) login(t *testing.T, username, password string) string {
	t.Helper()
	res, err := f.svc.Login(context.Background(), &domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res.Token
}

func TestLogin_IssuesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, &domain.LoginRequest{Username: "admin", Password: "admin-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || !res.ExpiresAt.Equal(f.now.Add(24*time.Hour)) {
		t.Errorf("unexpected login response %+v", res)
	}
	if res.User.LastLogin == nil || !res.User.Permissions[domain.PermUserManagement] {
		t.Errorf("unexpected profile %+v", res.User)
	}

	user, err := f.svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user == nil || user.Username != "admin" {
		t.Fatalf("expected admin, got %+v", user)
	}
	if f.metrics.Snapshot()["login_success"] != 1 {
		t.Error("expected login counted")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for _, req := range []domain.LoginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "nobody", Password: "admin-pass"},
	} {
		_, err := f.svc.Login(ctx, &req)
		var invalid *domain.ErrInvalidCredentials
		if !errors.As(err, &invalid) {
			t.Errorf("expected invalid credentials for %q, got %v", req.Username, err)
		}
	}

	var vErr *domain.ErrValidation
	if _, err := f.svc.Login(ctx, &domain.LoginRequest{Username: "admin"}); !errors.As(err, &vErr) {
		t.Errorf("expected validation error, got %v", err)
	}
	if f.metrics.Snapshot()["login_failure"] != 2 {
		t.Errorf("expected 2 failed logins, got %v", f.metrics.Snapshot())
	}
}

func TestAuthenticate_ExpiresAfter24h(t *testing.T) {
	f := newAuthFixture(t)
	token := f.login(t, "admin", "admin-pass")

	f.now = f.now.Add(23 * time.Hour)
	if u, _ := f.svc.Authenticate(context.Background(), token); u == nil {
		t.Fatal("expected session valid before expiry")
	}

	f.now = f.now.Add(2 * time.Hour)
	u, err := f.svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u != nil {
		t.Error("expected expired session to be rejected")
	}
}

func TestLogout_Idempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	token := f.login(t, "admin", "admin-pass")

	for range 2 {
		if err := f.svc.Logout(ctx, token); err != nil {
			t.Fatalf("logout: %v", err)
		}
	}
	if err := f.svc.Logout(ctx, "never-issued"); err != nil {
		t.Errorf("expected unknown token logout to succeed, got %v", err)
	}
	if u, _ := f.svc.Authenticate(ctx, token); u != nil {
		t.Error("expected revoked session to be rejected")
	}
}

func TestAuthorize_PermissionTable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	tests := []struct {
		role    domain.Role
		allowed []domain.Permission
		denied  []domain.Permission
	}{
		{domain.RoleDeveloper,
			[]domain.Permission{domain.PermSystemSettings, domain.PermExportData},
			[]domain.Permission{domain.PermUserManagement}},
		{domain.RoleSales,
			[]domain.Permission{domain.PermCustomerManagement, domain.PermCardPublish, domain.PermViewStatistics},
			[]domain.Permission{domain.PermCardDesign, domain.PermCardImport, domain.PermUserManagement, domain.PermSystemSettings, domain.PermExportData}},
		{domain.RoleDesigner,
			[]domain.Permission{domain.PermCardDesign, domain.PermCardPublish, domain.PermCardImport},
			[]domain.Permission{domain.PermCustomerManagement, domain.PermViewStatistics, domain.PermExportData}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := f.user(t, "u-"+string(tt.role), tt.role)
			token := f.login(t, p.Username, "secret-pass")

			for _, perm := range tt.allowed {
				if _, err := f.svc.Authorize(ctx, token, perm); err != nil {
					t.Errorf("expected %s allowed, got %v", perm, err)
				}
			}
			for _, perm := range tt.denied {
				_, err := f.svc.Authorize(ctx, token, perm)
				var forbidden *domain.ErrForbidden
				if !errors.As(err, &forbidden) {
					t.Errorf("expected %s forbidden, got %v", perm, err)
				}
			}
		})
	}

	_, err := f.svc.Authorize(ctx, "bogus", domain.PermCardPublish)
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	f := newAuthFixture(t)
	f.user(t, "ana", domain.RoleSales)
	ctx := context.Background()

	var conflict *domain.ErrConflict
	_, err := f.svc.CreateUser(ctx, f.admin, &domain.CreateUserRequest{Username: "ana", Email: "other@example.com", Password: "secret-pass", Role: domain.RoleSales})
	if !errors.As(err, &conflict) {
		t.Errorf("expected username conflict, got %v", err)
	}
	_, err = f.svc.CreateUser(ctx, f.admin, &domain.CreateUserRequest{Username: "ana2", Email: "ana@example.com", Password: "secret-pass", Role: domain.RoleSales})
	if !errors.As(err, &conflict) {
		t.Errorf("expected email conflict, got %v", err)
	}

	for name, req := range map[string]domain.CreateUserRequest{
		"email":    {Username: "x", Email: "not-an-email", Password: "secret-pass", Role: domain.RoleSales},
		"role":     {Username: "x", Email: "x@example.com", Password: "secret-pass", Role: "owner"},
		"password": {Username: "x", Email: "x@example.com", Password: "123", Role: domain.RoleSales},
	} {
		var vErr *domain.ErrValidation
		if _, err := f.svc.CreateUser(ctx, f.admin, &req); !errors.As(err, &vErr) || vErr.Field != name {
			t.Errorf("expected validation error on %s, got %v", name, err)
		}
	}

	users, err := f.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}
	if users[1].CreatedBy == nil || *users[1].CreatedBy != f.admin.ID {
		t.Errorf("expected created_by set to the admin, got %v", users[1].CreatedBy)
	}
}

func TestPassword_TooLongIsValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	long := strings.Repeat("p", domain.MaxPasswordBytes+1)

	var vErr *domain.ErrValidation
	_, err := f.svc.CreateUser(ctx, f.admin, &domain.CreateUserRequest{Username: "x", Email: "x@example.com", Password: long, Role: domain.RoleSales})
	if !errors.As(err, &vErr) || vErr.Field != "password" {
		t.Errorf("create: expected validation error on password, got %v", err)
	}

	err = f.svc.ChangePassword(ctx, f.admin.ID, &domain.ChangePasswordRequest{OldPassword: "admin-pass", NewPassword: long})
	if !errors.As(err, &vErr) || vErr.Field != "new_password" {
		t.Errorf("change: expected validation error on new_password, got %v", err)
	}

	exact := strings.Repeat("p", domain.MaxPasswordBytes)
	if _, err := f.svc.CreateUser(ctx, f.admin, &domain.CreateUserRequest{Username: "y", Email: "y@example.com", Password: exact, Role: domain.RoleSales}); err != nil {
		t.Errorf("expected %d-byte password to be accepted, got %v", domain.MaxPasswordBytes, err)
	}
}

func TestEnsureInitialAdmin(t *testing.T) {
	ctx := context.Background()
	svc := service.NewAuthService(memstore.New(), observability.NewMetrics(), zap.NewNop(), service.WithBcryptCost(bcrypt.MinCost))

	admin, err := svc.EnsureInitialAdmin(ctx, "root", "root@example.com", "root-pass")
	if err != nil || admin == nil {
		t.Fatalf("expected admin on empty store, got %v %v", admin, err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Errorf("expected admin role, got %q", admin.Role)
	}
	if _, err := svc.Login(ctx, &domain.LoginRequest{Username: "root", Password: "root-pass"}); err != nil {
		t.Errorf("expected bootstrap admin to log in, got %v", err)
	}

	again, err := svc.EnsureInitialAdmin(ctx, "other", "other@example.com", "other-pass")
	if err != nil || again != nil {
		t.Errorf("expected no-op once users exist, got %v %v", again, err)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sales := f.user(t, "sam", domain.RoleSales)
	token := f.login(t, "sam", "secret-pass")

	var invalid *domain.ErrInvalidOperation
	if err := f.svc.DeleteUser(ctx, f.admin.ID, f.admin.ID); !errors.As(err, &invalid) {
		t.Errorf("expected self delete to be rejected, got %v", err)
	}

	if err := f.svc.DeleteUser(ctx, f.admin.ID, sales.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if u, _ := f.svc.Authenticate(ctx, token); u != nil {
		t.Error("expected sessions revoked")
	}
	_, err := f.svc.Login(ctx, &domain.LoginRequest{Username: "sam", Password: "secret-pass"})
	var creds *domain.ErrInvalidCredentials
	if !errors.As(err, &creds) {
		t.Errorf("expected deactivated user to be unable to log in, got %v", err)
	}

	users, _ := f.svc.ListUsers(ctx)
	if len(users) != 2 || users[1].IsActive {
		t.Errorf("expected user kept but inactive, got %+v", users)
	}

	var nf *domain.ErrNotFound
	if err := f.svc.DeleteUser(ctx, f.admin.ID, 404); !errors.As(err, &nf) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	designer := f.user(t, "dee", domain.RoleDesigner)
	token := f.login(t, "dee", "secret-pass")

	inactive := false
	var invalid *domain.ErrInvalidOperation
	if _, err := f.svc.UpdateUser(ctx, f.admin, f.admin.ID, &domain.UpdateUserRequest{IsActive: &inactive}); !errors.As(err, &invalid) {
		t.Errorf("expected self deactivate rejected, got %v", err)
	}
	sales := domain.RoleSales
	if _, err := f.svc.UpdateUser(ctx, f.admin, f.admin.ID, &domain.UpdateUserRequest{Role: &sales}); !errors.As(err, &invalid) {
		t.Errorf("expected self demote rejected, got %v", err)
	}

	name := "Dee Signer"
	p, err := f.svc.UpdateUser(ctx, f.admin, designer.ID, &domain.UpdateUserRequest{FullName: &name, Role: &sales})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.FullName != name || p.Role != domain.RoleSales || !p.Permissions[domain.PermCustomerManagement] {
		t.Errorf("unexpected profile %+v", p)
	}

	if _, err := f.svc.UpdateUser(ctx, f.admin, designer.ID, &domain.UpdateUserRequest{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if u, _ := f.svc.Authenticate(ctx, token); u != nil {
		t.Error("expected deactivation to revoke sessions")
	}
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, f.admin.ID, &domain.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "new-secret"})
	var vErr *domain.ErrValidation
	if !errors.As(err, &vErr) || vErr.Field != "old_password" {
		t.Errorf("expected old_password validation, got %v", err)
	}

	err = f.svc.ChangePassword(ctx, f.admin.ID, &domain.ChangePasswordRequest{OldPassword: "admin-pass", NewPassword: "123"})
	if !errors.As(err, &vErr) || vErr.Field != "new_password" {
		t.Errorf("expected new_password validation, got %v", err)
	}

	if err := f.svc.ChangePassword(ctx, f.admin.ID, &domain.ChangePasswordRequest{OldPassword: "admin-pass", NewPassword: "new-secret"}); err != nil {
		t.Fatalf("change password: %v", err)
	}
	f.login(t, "admin", "new-secret")
}
