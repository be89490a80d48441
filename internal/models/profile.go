package models

import "time"

// Profile is the marketplace-facing record of a user known to the external auth provider.
// Phone and Address are gated fields: they never serialise directly and are disclosed only
// through the secure profile resolver.
type Profile struct {
	UserID      string  `gorm:"primaryKey;size:64" json:"user_id"`
	DisplayName string  `gorm:"size:120;not null" json:"display_name"`
	AvatarURL   string  `gorm:"size:512" json:"avatar_url"`
	Rating      float64 `gorm:"not null;default:0" json:"rating"`
	ReviewCount int     `gorm:"not null;default:0" json:"review_count"`

	Phone   string `gorm:"size:32" json:"-"`
	Address string `gorm:"size:512" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasContactDetails reports whether the profile carries any gated field worth requesting.
func (p *Profile) HasContactDetails() bool {
	if p == nil {
		return false
	}
	return p.Phone != "" || p.Address != ""
}
