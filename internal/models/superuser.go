package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// EnsureSuperuser creates an active admin account with the given email if none exists.
// It returns the existing or created user and whether it was created.
func EnsureSuperuser(db *gorm.DB, email, password, fullName string) (*User, bool, error) {
	var user User
	err := db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup superuser: %w", err)
	}

	user = User{
		Email:       email,
		FullName:    fullName,
		Role:        RoleAdmin,
		IsActive:    true,
		IsSuperuser: true,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, false, fmt.Errorf("hash superuser password: %w", err)
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, false, fmt.Errorf("create superuser: %w", err)
	}
	return &user, true, nil
}
