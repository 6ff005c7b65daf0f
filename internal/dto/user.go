package dto

import "time"

type RegisterRequest struct {
	FirstName string `json:"first_name" binding:"omitempty,max=30"`
	LastName  string `json:"last_name" binding:"omitempty,max=30"`
	Email     string `json:"email" binding:"required,email"`
	Mobile    string `json:"mobile" binding:"omitempty,mobile"`
	Address   string `json:"address" binding:"omitempty,max=500"`
	PinCode   string `json:"pin_code" binding:"omitempty,len=6,numeric"`
	Password  string `json:"password" binding:"required,min=6,max=100"`
}

// UpdateProfileRequest carries the mutable profile fields. Identity fields
// (email, username) are not accepted here.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" binding:"omitempty,max=30"`
	LastName  *string `json:"last_name" binding:"omitempty,max=30"`
	Mobile    *string `json:"mobile" binding:"omitempty,mobile"`
	Address   *string `json:"address" binding:"omitempty,max=500"`
	PinCode   *string `json:"pin_code" binding:"omitempty,len=6,numeric"`
}

type UserResponse struct {
	ID          uint       `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Mobile      string     `json:"mobile,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Address     string     `json:"address,omitempty"`
	PinCode     string     `json:"pin_code,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
