package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charlesng35/tradepost/internal/models"
	"github.com/charlesng35/tradepost/internal/ratelimit"
	apperrors "github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/metrics"
	"github.com/charlesng35/tradepost/pkg/sanitize"
)

const (
	defaultContactRequestLimit  = 5
	defaultContactRequestWindow = 15 * time.Minute
	maxContactNoteLength        = 280
)

// Realtime events published to the affected user.
const (
	RealtimeEventPermissionRequested = "contact_permission.requested"
	RealtimeEventPermissionApproved  = "contact_permission.approved"
	RealtimeEventPermissionRejected  = "contact_permission.rejected"
	RealtimeEventPermissionRevoked   = "contact_permission.revoked"
)

// Request outcomes reported to the requester.
const (
	RequestOutcomeRequested        = "requested"
	RequestOutcomeAlreadyRequested = "already_requested"
)

// Relationship states reported by RequestStatus.
const (
	RequestStatusOwner    = "owner"
	RequestStatusNone     = "none"
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
	RequestStatusExpired  = "expired"
)

var (
	// ErrContactSelfRequest rejects a request addressed to the caller's own profile.
	ErrContactSelfRequest = apperrors.New("CONTACT_SELF_REQUEST", "You cannot request access to your own contact details", http.StatusBadRequest)
	// ErrContactPermissionResolved indicates the row was already approved or rejected.
	ErrContactPermissionResolved = apperrors.New("CONTACT_PERMISSION_RESOLVED", "This request has already been resolved", http.StatusConflict)
	// ErrContactRequestRateLimited reports a throttled request; copies carry the retry hint.
	ErrContactRequestRateLimited = apperrors.ErrRateLimit.WithMessage("Too many contact requests, please try again later")
)

// EventPublisher pushes change notifications to a user's open realtime connections.
type EventPublisher interface {
	Publish(userID, event string, data any)
}

// ContactPermissionOptions tunes the workflow.
type ContactPermissionOptions struct {
	RequestLimit    int
	RequestWindow   time.Duration
	DefaultGrantTTL time.Duration
	Clock           func() time.Time
}

// RequestInput carries a requester's disclosure request.
type RequestInput struct {
	OwnerID string
	Note    string
}

// RequestResult reports the outcome of Request. A duplicate request is a success with
// Status == already_requested.
type RequestResult struct {
	Status         string                         `json:"status"`
	Permission     *models.ContactPermission      `json:"permission,omitempty"`
	ExistingStatus models.ContactPermissionStatus `json:"existing_status,omitempty"`
}

// ApproveInput controls the lifetime of an approval. ExpiresAt and ExpiresIn are mutually exclusive;
// when both are unset the configured default applies.
type ApproveInput struct {
	ExpiresAt *time.Time
	ExpiresIn *time.Duration
}

// IncomingRequest is a row owned by the caller together with the requester's public profile.
type IncomingRequest struct {
	models.ContactPermission
	Requester *PublicProfile `json:"requester,omitempty"`
}

// OutgoingRequest is a row requested by the caller together with the owner's public profile.
type OutgoingRequest struct {
	models.ContactPermission
	Owner *PublicProfile `json:"owner,omitempty"`
}

// ContactPermissionService implements the request, approve, reject and revoke workflow.
type ContactPermissionService struct {
	store     *PermissionStore
	profiles  *ProfileService
	limiter   ratelimit.Limiter
	security  SecurityRecorder
	publisher EventPublisher
	opts      ContactPermissionOptions
}

// NewContactPermissionService constructs the workflow service. The publisher may be nil.
func NewContactPermissionService(store *PermissionStore, profiles *ProfileService, limiter ratelimit.Limiter, security SecurityRecorder, publisher EventPublisher, opts ContactPermissionOptions) (*ContactPermissionService, error) {
	if store == nil {
		return nil, errors.New("contact permission service: store is required")
	}
	if profiles == nil {
		return nil, errors.New("contact permission service: profile service is required")
	}
	if limiter == nil {
		return nil, errors.New("contact permission service: limiter is required")
	}
	if security == nil {
		return nil, errors.New("contact permission service: security recorder is required")
	}
	if opts.RequestLimit <= 0 {
		opts.RequestLimit = defaultContactRequestLimit
	}
	if opts.RequestWindow <= 0 {
		opts.RequestWindow = defaultContactRequestWindow
	}
	if opts.DefaultGrantTTL < 0 {
		opts.DefaultGrantTTL = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &ContactPermissionService{
		store:     store,
		profiles:  profiles,
		limiter:   limiter,
		security:  security,
		publisher: publisher,
		opts:      opts,
	}, nil
}

// Request creates a pending permission from requesterID to input.OwnerID.
func (s *ContactPermissionService) Request(ctx context.Context, requesterID string, input RequestInput) (*RequestResult, error) {
	ctx = ensureContext(ctx)

	requesterID = strings.TrimSpace(requesterID)
	ownerID := strings.TrimSpace(input.OwnerID)
	if requesterID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if ownerID == "" {
		s.observe("request", "invalid")
		return nil, apperrors.NewBadRequest("owner_id is required")
	}
	if ownerID == requesterID {
		s.observe("request", "invalid")
		return nil, ErrContactSelfRequest
	}

	exists, err := s.profiles.Exists(ctx, ownerID)
	if err != nil {
		s.observe("request", "error")
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	if !exists {
		s.observe("request", "not_found")
		return nil, ErrProfileNotFound
	}

	key := ratelimit.ContactRequestKey(requesterID)
	allowed, err := s.limiter.Allow(ctx, key, s.opts.RequestLimit, s.opts.RequestWindow)
	if err != nil {
		s.observe("request", "error")
		return nil, apperrors.ErrInternalServer.WithInternal(fmt.Errorf("contact permission service: rate limit: %w", err))
	}
	if !allowed {
		wait, waitErr := s.limiter.RemainingTime(ctx, key, s.opts.RequestWindow)
		if waitErr != nil {
			wait = s.opts.RequestWindow
		}
		s.security.Record(ctx, requesterID, ownerID, PermissionRateLimited{
			MaxAttempts: s.opts.RequestLimit,
			Window:      s.opts.RequestWindow,
			RetryAfter:  wait,
		})
		metrics.RateLimitRejections.WithLabelValues("contact_request").Inc()
		s.observe("request", "rate_limited")
		return nil, ErrContactRequestRateLimited.WithRetryAfter(wait)
	}

	permission := &models.ContactPermission{
		OwnerID:     ownerID,
		RequesterID: requesterID,
		Status:      models.ContactPermissionPending,
		Note:        sanitize.Truncate(sanitize.Text(input.Note), maxContactNoteLength),
	}

	err = s.store.Create(ctx, permission)
	if errors.Is(err, errPermissionExists) {
		return s.handleDuplicate(ctx, permission)
	}
	if err != nil {
		s.observe("request", "error")
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	s.security.Record(ctx, requesterID, ownerID, PermissionRequested{
		PermissionID: permission.ID,
		HasNote:      permission.Note != "",
	})
	s.publish(ownerID, RealtimeEventPermissionRequested, permission)
	s.observe("request", "ok")

	return &RequestResult{Status: RequestOutcomeRequested, Permission: permission}, nil
}

// handleDuplicate resolves a unique violation. An expired approval counts as absent, so it is
// replaced by the new pending row; anything else is reported as already requested.
func (s *ContactPermissionService) handleDuplicate(ctx context.Context, permission *models.ContactPermission) (*RequestResult, error) {
	existing, err := s.store.FindPair(ctx, permission.OwnerID, permission.RequesterID)
	if err != nil && !errors.Is(err, ErrContactPermissionNotFound) {
		s.observe("request", "error")
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	if existing != nil && existing.IsExpired(s.now()) {
		replaced, replaceErr := s.store.ReplaceExpired(ctx, existing.ID, s.now(), permission)
		if replaceErr != nil {
			s.observe("request", "error")
			return nil, apperrors.ErrInternalServer.WithInternal(replaceErr)
		}
		if replaced {
			s.security.Record(ctx, permission.RequesterID, permission.OwnerID, PermissionRequested{
				PermissionID: permission.ID,
				HasNote:      permission.Note != "",
			})
			s.publish(permission.OwnerID, RealtimeEventPermissionRequested, permission)
			s.observe("request", "ok")
			return &RequestResult{Status: RequestOutcomeRequested, Permission: permission}, nil
		}
	}

	result := &RequestResult{Status: RequestOutcomeAlreadyRequested}
	if existing != nil {
		result.ExistingStatus = existing.Status
	}
	s.security.Record(ctx, permission.RequesterID, permission.OwnerID, DuplicatePermissionRequest{
		ExistingStatus: string(result.ExistingStatus),
	})
	s.observe("request", "duplicate")
	return result, nil
}

// Approve grants a pending request owned by ownerID.
func (s *ContactPermissionService) Approve(ctx context.Context, ownerID, permissionID string, input ApproveInput) (*models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	now := s.now()
	expiresAt, err := s.resolveExpiry(now, input)
	if err != nil {
		s.observe("approve", "invalid")
		return nil, err
	}

	permission, err := s.transition(ctx, "approve", ownerID, permissionID, models.ContactPermissionApproved, &now, expiresAt)
	if err != nil {
		return nil, err
	}

	s.security.Record(ctx, ownerID, permission.RequesterID, PermissionApproved{
		PermissionID: permission.ID,
		ExpiresAt:    permission.ExpiresAt,
	})
	s.publish(permission.RequesterID, RealtimeEventPermissionApproved, permission)
	return permission, nil
}

// Reject declines a pending request owned by ownerID.
func (s *ContactPermissionService) Reject(ctx context.Context, ownerID, permissionID string) (*models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	permission, err := s.transition(ctx, "reject", ownerID, permissionID, models.ContactPermissionRejected, nil, nil)
	if err != nil {
		return nil, err
	}

	s.security.Record(ctx, ownerID, permission.RequesterID, PermissionRejected{PermissionID: permission.ID})
	s.publish(permission.RequesterID, RealtimeEventPermissionRejected, permission)
	return permission, nil
}

func (s *ContactPermissionService) transition(ctx context.Context, action, ownerID, permissionID string, to models.ContactPermissionStatus, grantedAt, expiresAt *time.Time) (*models.ContactPermission, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		s.observe(action, "invalid")
		return nil, apperrors.NewBadRequest("permission id is required")
	}

	changed, err := s.store.Transition(ctx, permissionID, ownerID, to, s.now(), grantedAt, expiresAt)
	if err != nil {
		s.observe(action, "error")
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	permission, err := s.store.FindByID(ctx, permissionID)
	switch {
	case errors.Is(err, ErrContactPermissionNotFound):
		s.observe(action, "not_found")
		return nil, ErrContactPermissionNotFound
	case err != nil:
		s.observe(action, "error")
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	case permission.OwnerID != ownerID:
		s.observe(action, "not_found")
		return nil, ErrContactPermissionNotFound
	case !changed:
		s.observe(action, "conflict")
		return nil, ErrContactPermissionResolved
	}

	s.observe(action, "ok")
	return permission, nil
}

// Revoke deletes the row for (ownerID, requesterID) whatever its status. Disclosure ends at the
// next read.
func (s *ContactPermissionService) Revoke(ctx context.Context, ownerID, requesterID string) error {
	ctx = ensureContext(ctx)

	ownerID = strings.TrimSpace(ownerID)
	requesterID = strings.TrimSpace(requesterID)
	if ownerID == "" {
		return apperrors.ErrUnauthorized
	}
	if requesterID == "" {
		s.observe("revoke", "invalid")
		return apperrors.NewBadRequest("requester id is required")
	}

	deleted, err := s.store.DeletePair(ctx, ownerID, requesterID)
	if errors.Is(err, ErrContactPermissionNotFound) {
		s.observe("revoke", "not_found")
		return ErrContactPermissionNotFound
	}
	if err != nil {
		s.observe("revoke", "error")
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	s.security.Record(ctx, ownerID, requesterID, PermissionRevoked{
		PermissionID:   deleted.ID,
		PreviousStatus: string(deleted.Status),
	})
	s.publish(requesterID, RealtimeEventPermissionRevoked, map[string]string{
		"id":       deleted.ID,
		"owner_id": ownerID,
	})
	s.observe("revoke", "ok")
	return nil
}

// Check reports whether callerID currently holds an effective permission for ownerID's contact
// details. Anonymous callers never do.
func (s *ContactPermissionService) Check(ctx context.Context, callerID, ownerID string) (bool, error) {
	ctx = ensureContext(ctx)

	callerID = strings.TrimSpace(callerID)
	ownerID = strings.TrimSpace(ownerID)
	if callerID == "" || ownerID == "" {
		return false, nil
	}

	_, err := s.store.FindEffective(ctx, ownerID, callerID, s.now())
	if errors.Is(err, ErrContactPermissionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.ErrInternalServer.WithInternal(err)
	}
	return true, nil
}

// ListIncoming returns requests addressed to ownerID newest first, optionally filtered by status.
func (s *ContactPermissionService) ListIncoming(ctx context.Context, ownerID string, status models.ContactPermissionStatus) ([]IncomingRequest, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewBadRequest("status must be pending, approved or rejected")
	}

	rows, err := s.store.ListForOwner(ctx, ownerID, status)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RequesterID)
	}
	summaries, err := s.profiles.PublicSummaries(ctx, ids)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	out := make([]IncomingRequest, 0, len(rows))
	for _, row := range rows {
		item := IncomingRequest{ContactPermission: row}
		if summary, ok := summaries[row.RequesterID]; ok {
			item.Requester = &summary
		}
		out = append(out, item)
	}
	return out, nil
}

// ListOutgoing returns requests made by requesterID newest first.
func (s *ContactPermissionService) ListOutgoing(ctx context.Context, requesterID string) ([]OutgoingRequest, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(requesterID) == "" {
		return nil, apperrors.ErrUnauthorized
	}

	rows, err := s.store.ListForRequester(ctx, requesterID)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.OwnerID)
	}
	summaries, err := s.profiles.PublicSummaries(ctx, ids)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	out := make([]OutgoingRequest, 0, len(rows))
	for _, row := range rows {
		item := OutgoingRequest{ContactPermission: row}
		if summary, ok := summaries[row.OwnerID]; ok {
			item.Owner = &summary
		}
		out = append(out, item)
	}
	return out, nil
}

// RequestStatus describes the relationship between viewerID and ownerID for display purposes.
func (s *ContactPermissionService) RequestStatus(ctx context.Context, viewerID, ownerID string) (string, *models.ContactPermission, error) {
	ctx = ensureContext(ctx)

	viewerID = strings.TrimSpace(viewerID)
	ownerID = strings.TrimSpace(ownerID)
	if viewerID == "" {
		return RequestStatusNone, nil, nil
	}
	if viewerID == ownerID {
		return RequestStatusOwner, nil, nil
	}

	permission, err := s.store.FindPair(ctx, ownerID, viewerID)
	if errors.Is(err, ErrContactPermissionNotFound) {
		return RequestStatusNone, nil, nil
	}
	if err != nil {
		return "", nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	switch {
	case permission.IsExpired(s.now()):
		return RequestStatusExpired, permission, nil
	case permission.Status == models.ContactPermissionApproved:
		return RequestStatusApproved, permission, nil
	case permission.Status == models.ContactPermissionRejected:
		return RequestStatusRejected, permission, nil
	default:
		return RequestStatusPending, permission, nil
	}
}

func (s *ContactPermissionService) resolveExpiry(now time.Time, input ApproveInput) (*time.Time, error) {
	if input.ExpiresAt != nil && input.ExpiresIn != nil {
		return nil, apperrors.NewBadRequest("expires_at and expires_in are mutually exclusive")
	}

	switch {
	case input.ExpiresAt != nil:
		at := input.ExpiresAt.UTC()
		if !at.After(now) {
			return nil, apperrors.NewBadRequest("expires_at must be in the future")
		}
		return &at, nil
	case input.ExpiresIn != nil:
		if *input.ExpiresIn < 0 {
			return nil, apperrors.NewBadRequest("expires_in must not be negative")
		}
		if *input.ExpiresIn == 0 {
			return nil, nil
		}
		at := now.Add(*input.ExpiresIn)
		return &at, nil
	case s.opts.DefaultGrantTTL > 0:
		at := now.Add(s.opts.DefaultGrantTTL)
		return &at, nil
	default:
		return nil, nil
	}
}

func (s *ContactPermissionService) now() time.Time {
	return s.opts.Clock().UTC()
}

func (s *ContactPermissionService) publish(userID, event string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(userID, event, data)
}

func (s *ContactPermissionService) observe(action, outcome string) {
	metrics.ContactPermissionTransitions.WithLabelValues(action, outcome).Inc()
}
