package model

import (
	"time"

	"gorm.io/gorm"
)

// RefreshToken is the outstanding-token record for one issued refresh token.
// A row exists for every refresh token we ever signed; RevokedAt marks
// membership in the revocation set.
type RefreshToken struct {
	gorm.Model
	JTI       string     `gorm:"column:jti;uniqueIndex;not null"`
	UserID    uint       `gorm:"column:user_id;index;not null"`
	User      User       `gorm:"foreignKey:UserID"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
}

func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}
