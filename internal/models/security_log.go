package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SecurityLogEntry is an append-only record of a security-relevant action.
type SecurityLogEntry struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	EventType    string         `gorm:"size:64;not null;index" json:"event_type"`
	UserID       *string        `gorm:"size:64;index:idx_security_log_user_created,priority:1" json:"user_id,omitempty"`
	TargetUserID *string        `gorm:"size:64;index" json:"target_user_id,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	IPAddress    string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    string         `gorm:"size:512" json:"user_agent,omitempty"`
	CreatedAt    time.Time      `gorm:"index:idx_security_log_user_created,priority:2" json:"created_at"`
}

// BeforeCreate assigns an identifier when the caller did not supply one.
func (e *SecurityLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
