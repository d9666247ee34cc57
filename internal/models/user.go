package models

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleDoctor    Role = "doctor"
	RolePatient   Role = "patient"
	RoleManager   Role = "manager"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleDoctor, RolePatient, RoleManager, RoleAssistant, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return lo.Contains(Roles, r)
}

// ParseRole converts a string to a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User represents a user in the system
type User struct {
	BaseModel
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password     string     `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FullName     string     `gorm:"size:255;index" json:"fullName"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	Role         Role       `gorm:"size:20;index;not null" json:"role"`
	IsActive     bool       `json:"isActive"`
	IsSuperuser  bool       `json:"isSuperuser"`
	ProfileImage string     `gorm:"type:text" json:"profileImage,omitempty"`
	DeviceToken  string     `gorm:"size:512" json:"-"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"fullName"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"isActive"`
	IsSuperuser  bool       `json:"isSuperuser"`
	ProfileImage string     `json:"profileImage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// UserSummary is the reduced view returned to users who may only know who a patient is.
type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Privileged reports whether the user bypasses relationship checks.
func (u *User) Privileged() bool {
	return u.IsSuperuser || u.Role == RoleAdmin
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		BirthDate:    u.BirthDate,
		Role:         u.Role,
		IsActive:     u.IsActive,
		IsSuperuser:  u.IsSuperuser,
		ProfileImage: u.ProfileImage,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// Summary returns the reduced view of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FullName: u.FullName, Role: u.Role}
}
