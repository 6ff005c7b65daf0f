package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email     string `gorm:"column:email;uniqueIndex;not null"`
	Username  string `gorm:"column:username;uniqueIndex;not null"`
	Mobile    *string `gorm:"column:mobile;uniqueIndex"`
	Password  string `gorm:"column:password;not null"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`
	Address   string `gorm:"column:address;type:text"`
	PinCode   string `gorm:"column:pin_code"`

	IsActive    bool `gorm:"column:is_active;default:true;not null"`
	IsStaff     bool `gorm:"column:is_staff;default:false;not null"`
	IsSuperuser bool `gorm:"column:is_superuser;default:false;not null"`

	LastLogin *time.Time `gorm:"column:last_login"`
}
