package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactPermissionStatus enumerates the persisted states of a disclosure request.
// Revocation deletes the row, so there is no revoked status.
type ContactPermissionStatus string

const (
	ContactPermissionPending  ContactPermissionStatus = "pending"
	ContactPermissionApproved ContactPermissionStatus = "approved"
	ContactPermissionRejected ContactPermissionStatus = "rejected"
)

// Valid reports whether the status is one of the known values.
func (s ContactPermissionStatus) Valid() bool {
	switch s {
	case ContactPermissionPending, ContactPermissionApproved, ContactPermissionRejected:
		return true
	default:
		return false
	}
}

// ContactPermission records one owner/requester disclosure relationship. The pair is unique
// regardless of status.
type ContactPermission struct {
	ID          string                  `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string                  `gorm:"size:64;not null;uniqueIndex:idx_contact_permissions_pair,priority:1;check:chk_contact_permissions_not_self,owner_id <> requester_id" json:"owner_id"`
	RequesterID string                  `gorm:"size:64;not null;uniqueIndex:idx_contact_permissions_pair,priority:2;index" json:"requester_id"`
	Status      ContactPermissionStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Note        string                  `gorm:"size:280" json:"note,omitempty"`
	GrantedAt   *time.Time              `json:"granted_at,omitempty"`
	ExpiresAt   *time.Time              `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt   time.Time               `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (p *ContactPermission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// IsEffective reports whether the permission currently discloses the owner's gated fields.
// It is the single definition of "effective" shared by every read path.
func (p *ContactPermission) IsEffective(now time.Time) bool {
	if p == nil || p.Status != ContactPermissionApproved {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// IsExpired reports whether an approved permission has passed its expiry.
func (p *ContactPermission) IsExpired(now time.Time) bool {
	if p == nil || p.Status != ContactPermissionApproved || p.ExpiresAt == nil {
		return false
	}
	return !p.ExpiresAt.After(now)
}
