package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// User is keyed by the subject issued by the identity provider.
type User struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	FirstName string     `json:"first_name" db:"first_name"`
	LastName  string     `json:"last_name" db:"last_name"`
	Role      Role       `json:"role" db:"role"`
	Phone     string     `json:"phone" db:"phone"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type NewUserParams struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Role      string
}

func NewUser(p NewUserParams, now time.Time) (*User, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "is required"}
	}
	if len(id) > 128 {
		return nil, &ValidationError{Field: "id", Message: "must be at most 128 characters"}
	}
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return nil, err
	}
	role, err := ParseRole(p.Role)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:        id,
		Email:     email,
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Role:      role,
		Phone:     strings.TrimSpace(p.Phone),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UserUpdate carries the user-editable profile fields; nil means unchanged.
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
}

func (u *User) Apply(upd UserUpdate) error {
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return err
		}
		u.Email = email
	}
	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	return nil
}

// Anonymize scrubs personal data and deactivates the account. Order history
// stays attached to the id.
func (u *User) Anonymize(now time.Time) {
	u.FirstName = "Deleted"
	u.LastName = "User"
	u.Email = fmt.Sprintf("deleted_user_%s@example.com", u.ID)
	u.Phone = "000-000-0000"
	u.IsActive = false
	u.DeletedAt = &now
	u.UpdatedAt = now
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Address != strings.TrimSpace(raw) {
		return "", &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	return strings.ToLower(addr.Address), nil
}
