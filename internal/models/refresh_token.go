package models

import (
	"time"
)

// RefreshToken is one issued refresh JWT. Rotation revokes it and issues a
// new row; a revoked token never becomes active again.
type RefreshToken struct {
	BaseModel
	UserID    string     `gorm:"size:36;index" json:"userId"`
	Token     string     `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IsRevoked bool       `gorm:"default:false;index" json:"isRevoked"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the token can still be exchanged at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// MarkRevoked revokes the token at now.
func (t *RefreshToken) MarkRevoked(now time.Time) {
	t.IsRevoked = true
	t.RevokedAt = &now
	t.ExpiresAt = now
}
