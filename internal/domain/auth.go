package domain

import "time"

// SessionTTL is the fixed lifetime of a login session.
const SessionTTL = 24 * time.Hour

// MinPasswordLength applies to passwords set through change-password and user admin.
const MinPasswordLength = 6

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ============================================================
// Roles & permissions
// ============================================================

// Role is one of the fixed operator roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleSales     Role = "sales"
	RoleDesigner  Role = "designer"
)

// Permission names an administrative capability.
type Permission string

const (
	PermCustomerManagement Permission = "customer_management"
	PermCardDesign         Permission = "card_design"
	PermCardPublish        Permission = "card_publish"
	PermCardImport         Permission = "card_import"
	PermUserManagement     Permission = "user_management"
	PermSystemSettings     Permission = "system_settings"
	PermViewStatistics     Permission = "view_statistics"
	PermExportData         Permission = "export_data"
)

// AllPermissions lists every permission in display order.
var AllPermissions = []Permission{
	PermCustomerManagement,
	PermCardDesign,
	PermCardPublish,
	PermCardImport,
	PermUserManagement,
	PermSystemSettings,
	PermViewStatistics,
	PermExportData,
}

// rolePermissions is the static grant table. No inheritance, no overrides.
var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermCustomerManagement: true,
		PermCardDesign:         true,
		PermCardPublish:        true,
		PermCardImport:         true,
		PermUserManagement:     true,
		PermSystemSettings:     true,
		PermViewStatistics:     true,
		PermExportData:         true,
	},
	RoleDeveloper: {
		PermCustomerManagement: true,
		PermCardDesign:         true,
		PermCardPublish:        true,
		PermCardImport:         true,
		PermSystemSettings:     true,
		PermViewStatistics:     true,
		PermExportData:         true,
	},
	RoleSales: {
		PermCustomerManagement: true,
		PermCardPublish:        true,
		PermViewStatistics:     true,
	},
	RoleDesigner: {
		PermCardDesign:  true,
		PermCardPublish: true,
		PermCardImport:  true,
	},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Can reports whether the role is granted p.
func (r Role) Can(p Permission) bool {
	return rolePermissions[r][p]
}

// Permissions returns the full grant map for the role, including denials.
func (r Role) Permissions() map[Permission]bool {
	out := make(map[Permission]bool, len(AllPermissions))
	for _, p := range AllPermissions {
		out[p] = r.Can(p)
	}
	return out
}

// ============================================================
// Users & sessions
// ============================================================

// AuthUser is an operator account. PasswordHash never leaves the server.
type AuthUser struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedBy    *int64     `json:"created_by"`
}

// UserProfile is the public view of an AuthUser.
type UserProfile struct {
	*AuthUser
	Permissions map[Permission]bool `json:"permissions"`
}

// Profile returns the public view of the user.
func (u *AuthUser) Profile() UserProfile {
	return UserProfile{AuthUser: u, Permissions: u.Role.Permissions()}
}

// UserSession is a server-side login session. Only the token hash is stored.
type UserSession struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}

// Expired reports whether the session is past its expiry at now.
func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ============================================================
// Auth request and response types
// ============================================================

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse is the body for 200 from POST /auth/login.
type LoginResponse struct {
	Message   string      `json:"message"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserProfile `json:"user"`
}

// CreateUserRequest is the body for POST /auth/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// UpdateUserRequest is the body for PUT /auth/users/{id}.
type UpdateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Role     *Role   `json:"role"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password"`
}

// ChangePasswordRequest is the body for POST /auth/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}
