package domain

import "strings"

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "user", "":
		return RoleUser, nil
	}
	return "", &ValidationError{Field: "role", Message: "must be Admin or User"}
}

// Identity is the authenticated caller, resolved once per request by the
// auth middleware.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller may act on resources owned by userID.
func (i Identity) CanAccess(userID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == userID)
}
