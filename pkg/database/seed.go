package database

import (
	"errors"

	"github.com/shoplane/accounts/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultAdmin defines the bootstrap superuser credentials
type DefaultAdmin struct {
	FirstName string
	Email     string
	Username  string
	Password  string
}

// GetDefaultAdmin returns the bootstrap superuser
func GetDefaultAdmin() DefaultAdmin {
	return DefaultAdmin{
		FirstName: "Admin",
		Email:     "admin@accounts.local",
		Username:  "admin",
		Password:  "Admin@123", // Change this in production!
	}
}

// Seed creates initial data for the database
func Seed(db *gorm.DB) error {
	return SeedSuperuser(db)
}

// SeedSuperuser creates the bootstrap superuser if not exists
func SeedSuperuser(db *gorm.DB) error {
	admin := GetDefaultAdmin()

	var existing model.User
	result := db.Where("email = ?", admin.Email).First(&existing)

	if result.Error == nil {
		// Superuser already exists, skip seeding
		return nil
	}

	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := model.User{
		FirstName:   admin.FirstName,
		Email:       admin.Email,
		Username:    admin.Username,
		Password:    string(hashedPassword),
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
	}

	return db.Create(&user).Error
}
