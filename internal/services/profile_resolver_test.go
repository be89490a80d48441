package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/internal/auditctx"
	"github.com/charlesng35/tradepost/internal/models"
	apperrors "github.com/charlesng35/tradepost/pkg/errors"
)

func TestProfileResolver_GatesContactFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	rows := []models.ContactPermission{
		{OwnerID: alice, RequesterID: bob, Status: models.ContactPermissionApproved, GrantedAt: &now},
		{OwnerID: bob, RequesterID: alice, Status: models.ContactPermissionPending},
		{OwnerID: carol, RequesterID: alice, Status: models.ContactPermissionRejected},
		{OwnerID: carol, RequesterID: bob, Status: models.ContactPermissionApproved, GrantedAt: &now, ExpiresAt: &past},
		{OwnerID: bob, RequesterID: carol, Status: models.ContactPermissionApproved, GrantedAt: &now, ExpiresAt: &future},
	}
	for i := range rows {
		require.NoError(t, f.db.Create(&rows[i]).Error)
	}

	cases := []struct {
		name    string
		viewer  string
		target  string
		visible bool
	}{
		{"owner", alice, alice, true},
		{"approved", bob, alice, true},
		{"approved with future expiry", carol, bob, true},
		{"anonymous", "", alice, false},
		{"no relationship", carol, alice, false},
		{"pending", alice, bob, false},
		{"rejected", alice, carol, false},
		{"expired", bob, carol, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile, err := f.resolver.GetSecureProfile(ctx, tc.viewer, tc.target)
			require.NoError(t, err)
			require.Equal(t, tc.target, profile.UserID)
			require.NotEmpty(t, profile.DisplayName)
			require.Equal(t, tc.visible, profile.CanViewContact)
			if tc.visible {
				require.NotNil(t, profile.Phone)
				require.NotNil(t, profile.Address)
			} else {
				require.Nil(t, profile.Phone)
				require.Nil(t, profile.Address)
			}
		})
	}
}

func TestProfileResolver_LogsAttemptAndOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.GetSecureProfile(ctx, bob, alice)
	require.NoError(t, err)
	require.Equal(t, []string{EventSecureProfileAccessAttempt, EventSecureProfileAccessSuccess}, f.security.types())

	success := f.security.last()
	require.Equal(t, bob, success.UserID)
	require.Equal(t, alice, success.TargetID)
	require.False(t, success.Event.(ProfileAccessSuccess).ContactIncluded)

	f.security.reset()

	_, err = f.resolver.GetSecureProfile(ctx, bob, "user-missing")
	require.ErrorIs(t, err, ErrProfileNotFound)
	require.Equal(t, []string{EventSecureProfileAccessAttempt, EventSecureProfileAccessError}, f.security.types())
	require.Equal(t, "not_found", f.security.last().Event.(ProfileAccessError).Reason)
}

func TestProfileResolver_SanitizesDisplayedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&models.Profile{}).Where("user_id = ?", alice).
		Updates(map[string]any{
			"display_name": "<img src=x onerror=alert(1)>Alice",
			"address":      "<b>12 Market Street</b>\n\nSpringfield",
		}).Error)

	profile, err := f.resolver.GetSecureProfile(ctx, alice, alice)
	require.NoError(t, err)
	require.Equal(t, "Alice", profile.DisplayName)
	require.Equal(t, "12 Market Street\nSpringfield", *profile.Address)
	require.True(t, profile.IsOwner)
}

func TestProfileResolver_ThrottlesViewers(t *testing.T) {
	f := newFixture(t, withProfileAccessLimit(2))
	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{IPAddress: "203.0.113.7"})

	for i := 0; i < 2; i++ {
		_, err := f.resolver.GetSecureProfile(ctx, "", alice)
		require.NoError(t, err)
	}

	f.clock.Advance(15 * time.Second)
	_, err := f.resolver.GetSecureProfile(ctx, "", alice)
	require.ErrorIs(t, err, apperrors.ErrRateLimit)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 45*time.Second, appErr.RetryAfter)
	require.Equal(t, EventProfileAccessRateLimited, f.security.last().Event.EventType())

	// Signed-in viewers have their own budget.
	_, err = f.resolver.GetSecureProfile(ctx, bob, alice)
	require.NoError(t, err)
}

func TestProfileResolver_RequiresTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.GetSecureProfile(context.Background(), bob, " ")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.Equal(t, EventSecureProfileAccessError, f.security.last().Event.EventType())
}
