package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/internal/database/testutil"
	apperrors "github.com/charlesng35/tradepost/pkg/errors"
)

func newTestProfileService(t *testing.T) *ProfileService {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithProfiles(seedProfiles()...))
	svc, err := NewProfileService(db)
	require.NoError(t, err)
	return svc
}

func TestProfileService_UpsertSanitizesInput(t *testing.T) {
	svc := newTestProfileService(t)
	ctx := context.Background()

	phone := " +1 (555) 123-4567 "
	address := "<p>1 Harbour Road</p>\n  Portsmouth  "
	profile, err := svc.Upsert(ctx, "user-dave", UpdateProfileInput{
		DisplayName: "<b>Dave</b> the   seller",
		Phone:       &phone,
		Address:     &address,
	})
	require.NoError(t, err)
	require.Equal(t, "Dave the seller", profile.DisplayName)
	require.Equal(t, "+1 (555) 123-4567", profile.Phone)
	require.Equal(t, "1 Harbour Road\nPortsmouth", profile.Address)

	profile, err = svc.Upsert(ctx, "user-dave", UpdateProfileInput{DisplayName: "Dave"})
	require.NoError(t, err)
	require.Equal(t, "Dave", profile.DisplayName)
	require.Equal(t, "+1 (555) 123-4567", profile.Phone, "nil phone leaves the stored value")
}

func TestProfileService_UpsertValidation(t *testing.T) {
	svc := newTestProfileService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, "", UpdateProfileInput{DisplayName: "x"})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Upsert(ctx, bob, UpdateProfileInput{DisplayName: "<i></i>"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	bad := "12"
	_, err = svc.Upsert(ctx, bob, UpdateProfileInput{DisplayName: "Bob", Phone: &bad})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestProfileService_PublicOmitsGatedColumns(t *testing.T) {
	svc := newTestProfileService(t)
	ctx := context.Background()

	public, err := svc.Public(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "Alice", public.DisplayName)
	require.Equal(t, 12, public.ReviewCount)

	_, err = svc.Public(ctx, "user-missing")
	require.ErrorIs(t, err, ErrProfileNotFound)

	summaries, err := svc.PublicSummaries(ctx, []string{alice, carol, alice, "user-missing", ""})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "Carol", summaries[carol].DisplayName)

	details, err := svc.ContactDetails(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, "+1 (555) 010-2000", details.Phone)
}

func TestProfileService_Own(t *testing.T) {
	svc := newTestProfileService(t)

	own, err := svc.Own(context.Background(), bob)
	require.NoError(t, err)
	require.Equal(t, "+44 20 7946 0000", own.Phone)

	exists, err := svc.Exists(context.Background(), "user-missing")
	require.NoError(t, err)
	require.False(t, exists)
}
