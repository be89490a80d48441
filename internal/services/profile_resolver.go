package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charlesng35/tradepost/internal/auditctx"
	"github.com/charlesng35/tradepost/internal/ratelimit"
	apperrors "github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/metrics"
)

const (
	defaultProfileAccessLimit  = 60
	defaultProfileAccessWindow = time.Minute
)

// ErrProfileAccessRateLimited reports throttled profile reads; copies carry the retry hint.
var ErrProfileAccessRateLimited = apperrors.ErrRateLimit.WithMessage("Too many profile views, please try again later")

// SecureProfile is the gated view of a profile for one viewer. Phone and Address are populated only
// when CanViewContact is true.
type SecureProfile struct {
	PublicProfile
	Phone            *string    `json:"phone,omitempty"`
	Address          *string    `json:"address,omitempty"`
	CanViewContact   bool       `json:"can_view_contact"`
	IsOwner          bool       `json:"is_owner"`
	ContactExpiresAt *time.Time `json:"contact_expires_at,omitempty"`
}

// ProfileResolverOptions tunes viewer throttling.
type ProfileResolverOptions struct {
	AccessLimit  int
	AccessWindow time.Duration
	Clock        func() time.Time
}

// ProfileResolver is the only read path for another user's profile. The gating decision is made
// here, before gated columns are loaded.
type ProfileResolver struct {
	profiles *ProfileService
	store    *PermissionStore
	limiter  ratelimit.Limiter
	security SecurityRecorder
	opts     ProfileResolverOptions
}

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(profiles *ProfileService, store *PermissionStore, limiter ratelimit.Limiter, security SecurityRecorder, opts ProfileResolverOptions) (*ProfileResolver, error) {
	if profiles == nil {
		return nil, errors.New("profile resolver: profile service is required")
	}
	if store == nil {
		return nil, errors.New("profile resolver: permission store is required")
	}
	if limiter == nil {
		return nil, errors.New("profile resolver: limiter is required")
	}
	if security == nil {
		return nil, errors.New("profile resolver: security recorder is required")
	}
	if opts.AccessLimit <= 0 {
		opts.AccessLimit = defaultProfileAccessLimit
	}
	if opts.AccessWindow <= 0 {
		opts.AccessWindow = defaultProfileAccessWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &ProfileResolver{
		profiles: profiles,
		store:    store,
		limiter:  limiter,
		security: security,
		opts:     opts,
	}, nil
}

// GetSecureProfile resolves targetID for viewerID, who may be empty for anonymous viewers.
func (r *ProfileResolver) GetSecureProfile(ctx context.Context, viewerID, targetID string) (*SecureProfile, error) {
	ctx = ensureContext(ctx)

	viewerID = strings.TrimSpace(viewerID)
	targetID = strings.TrimSpace(targetID)

	r.security.Record(ctx, viewerID, targetID, ProfileAccessAttempt{Anonymous: viewerID == ""})

	if targetID == "" {
		return nil, r.fail(ctx, viewerID, targetID, "invalid_target", apperrors.NewBadRequest("profile id is required"))
	}

	if err := r.throttle(ctx, viewerID, targetID); err != nil {
		return nil, err
	}

	public, err := r.profiles.Public(ctx, targetID)
	if errors.Is(err, ErrProfileNotFound) {
		return nil, r.fail(ctx, viewerID, targetID, "not_found", ErrProfileNotFound)
	}
	if err != nil {
		return nil, r.fail(ctx, viewerID, targetID, "lookup_failed", apperrors.ErrInternalServer.WithInternal(err))
	}

	result := &SecureProfile{PublicProfile: *public}

	switch {
	case viewerID != "" && viewerID == targetID:
		result.IsOwner = true
		result.CanViewContact = true
	case viewerID != "":
		permission, findErr := r.store.FindEffective(ctx, targetID, viewerID, r.opts.Clock().UTC())
		if findErr != nil && !errors.Is(findErr, ErrContactPermissionNotFound) {
			return nil, r.fail(ctx, viewerID, targetID, "permission_lookup_failed", apperrors.ErrInternalServer.WithInternal(findErr))
		}
		if permission != nil {
			result.CanViewContact = true
			result.ContactExpiresAt = permission.ExpiresAt
		}
	}

	if result.CanViewContact {
		details, detailErr := r.profiles.ContactDetails(ctx, targetID)
		if detailErr != nil {
			return nil, r.fail(ctx, viewerID, targetID, "contact_lookup_failed", apperrors.ErrInternalServer.WithInternal(detailErr))
		}
		result.Phone = &details.Phone
		result.Address = &details.Address
	}

	r.security.Record(ctx, viewerID, targetID, ProfileAccessSuccess{
		ContactIncluded: result.CanViewContact,
		Self:            result.IsOwner,
	})
	if result.CanViewContact {
		metrics.ProfileResolutions.WithLabelValues("included").Inc()
	} else {
		metrics.ProfileResolutions.WithLabelValues("withheld").Inc()
	}

	return result, nil
}

func (r *ProfileResolver) throttle(ctx context.Context, viewerID, targetID string) error {
	clientIP := ""
	if actor, ok := auditctx.FromContext(ctx); ok {
		clientIP = actor.IPAddress
	}
	key := ratelimit.ProfileAccessKey(viewerID, clientIP)

	allowed, err := r.limiter.Allow(ctx, key, r.opts.AccessLimit, r.opts.AccessWindow)
	if err != nil {
		return r.fail(ctx, viewerID, targetID, "rate_limit_unavailable", apperrors.ErrInternalServer.WithInternal(err))
	}
	if allowed {
		return nil
	}

	wait, err := r.limiter.RemainingTime(ctx, key, r.opts.AccessWindow)
	if err != nil {
		wait = r.opts.AccessWindow
	}
	r.security.Record(ctx, viewerID, targetID, ProfileAccessRateLimited{RetryAfter: wait})
	metrics.RateLimitRejections.WithLabelValues("profile_access").Inc()
	metrics.ProfileResolutions.WithLabelValues("rate_limited").Inc()
	return ErrProfileAccessRateLimited.WithRetryAfter(wait)
}

func (r *ProfileResolver) fail(ctx context.Context, viewerID, targetID, reason string, err error) error {
	r.security.Record(ctx, viewerID, targetID, ProfileAccessError{Reason: reason})
	metrics.ProfileResolutions.WithLabelValues("error").Inc()
	return err
}
