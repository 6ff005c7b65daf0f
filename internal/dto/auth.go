package dto

type LoginRequest struct {
	// Identifier accepts either the email address or the username.
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Access    string       `json:"access"`
	Refresh   string       `json:"refresh"`
	ExpiresIn int          `json:"expires_in"` // access token lifetime in seconds
	User      UserResponse `json:"user"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type RefreshResponse struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh,omitempty"` // present only when rotation is enabled
	ExpiresIn int    `json:"expires_in"`
}

type LogoutRequest struct {
	Refresh string `json:"refresh"`
}
