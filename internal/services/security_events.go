package services

import "time"

// Security event types persisted in security_log_entries.event_type.
const (
	EventContactPermissionRequested   = "contact_permission_requested"
	EventContactPermissionDuplicate   = "contact_permission_duplicate_request"
	EventContactPermissionRateLimited = "contact_permission_rate_limited"
	EventContactPermissionApproved    = "contact_permission_approved"
	EventContactPermissionRejected    = "contact_permission_rejected"
	EventContactPermissionRevoked     = "contact_permission_revoked"
	EventSecureProfileAccessAttempt   = "secure_profile_access_attempt"
	EventSecureProfileAccessSuccess   = "secure_profile_access_success"
	EventSecureProfileAccessError     = "secure_profile_access_error"
	EventProfileAccessRateLimited     = "profile_access_rate_limited"
)

// SecurityEvent is the closed set of payloads accepted by the security log. Each implementation
// maps to exactly one event type.
type SecurityEvent interface {
	EventType() string
	metadata() map[string]any
}

// PermissionRequested records a newly created pending permission.
type PermissionRequested struct {
	PermissionID string
	HasNote      bool
}

func (PermissionRequested) EventType() string { return EventContactPermissionRequested }

func (e PermissionRequested) metadata() map[string]any {
	return map[string]any{"permission_id": e.PermissionID, "has_note": e.HasNote}
}

// DuplicatePermissionRequest records a request for a pair that already has a row.
type DuplicatePermissionRequest struct {
	ExistingStatus string
}

func (DuplicatePermissionRequest) EventType() string { return EventContactPermissionDuplicate }

func (e DuplicatePermissionRequest) metadata() map[string]any {
	return map[string]any{"existing_status": e.ExistingStatus}
}

// PermissionRateLimited records a request refused by the limiter.
type PermissionRateLimited struct {
	MaxAttempts int
	Window      time.Duration
	RetryAfter  time.Duration
}

func (PermissionRateLimited) EventType() string { return EventContactPermissionRateLimited }

func (e PermissionRateLimited) metadata() map[string]any {
	return map[string]any{
		"max_attempts":        e.MaxAttempts,
		"window_seconds":      int64(e.Window / time.Second),
		"retry_after_seconds": roundedSeconds(e.RetryAfter),
	}
}

// PermissionApproved records an owner approving a pending request.
type PermissionApproved struct {
	PermissionID string
	ExpiresAt    *time.Time
}

func (PermissionApproved) EventType() string { return EventContactPermissionApproved }

func (e PermissionApproved) metadata() map[string]any {
	meta := map[string]any{"permission_id": e.PermissionID}
	if e.ExpiresAt != nil {
		meta["expires_at"] = e.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// PermissionRejected records an owner rejecting a pending request.
type PermissionRejected struct {
	PermissionID string
}

func (PermissionRejected) EventType() string { return EventContactPermissionRejected }

func (e PermissionRejected) metadata() map[string]any {
	return map[string]any{"permission_id": e.PermissionID}
}

// PermissionRevoked records the deletion of a permission row by its owner.
type PermissionRevoked struct {
	PermissionID   string
	PreviousStatus string
}

func (PermissionRevoked) EventType() string { return EventContactPermissionRevoked }

func (e PermissionRevoked) metadata() map[string]any {
	return map[string]any{"permission_id": e.PermissionID, "previous_status": e.PreviousStatus}
}

// ProfileAccessAttempt records the start of a secure profile read.
type ProfileAccessAttempt struct {
	Anonymous bool
}

func (ProfileAccessAttempt) EventType() string { return EventSecureProfileAccessAttempt }

func (e ProfileAccessAttempt) metadata() map[string]any {
	return map[string]any{"anonymous": e.Anonymous}
}

// ProfileAccessSuccess records a resolved profile and whether gated fields were disclosed.
type ProfileAccessSuccess struct {
	ContactIncluded bool
	Self            bool
}

func (ProfileAccessSuccess) EventType() string { return EventSecureProfileAccessSuccess }

func (e ProfileAccessSuccess) metadata() map[string]any {
	return map[string]any{"contact_included": e.ContactIncluded, "self": e.Self}
}

// ProfileAccessError records a failed secure profile read.
type ProfileAccessError struct {
	Reason string
}

func (ProfileAccessError) EventType() string { return EventSecureProfileAccessError }

func (e ProfileAccessError) metadata() map[string]any {
	return map[string]any{"reason": e.Reason}
}

// ProfileAccessRateLimited records a profile read refused by the limiter.
type ProfileAccessRateLimited struct {
	RetryAfter time.Duration
}

func (ProfileAccessRateLimited) EventType() string { return EventProfileAccessRateLimited }

func (e ProfileAccessRateLimited) metadata() map[string]any {
	return map[string]any{"retry_after_seconds": roundedSeconds(e.RetryAfter)}
}
