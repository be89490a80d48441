package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/internal/app"
	"github.com/charlesng35/tradepost/internal/handlers/testutil"
	"github.com/charlesng35/tradepost/internal/models"
	"github.com/charlesng35/tradepost/internal/services"
)

type checkPayload struct {
	OwnerID       string `json:"owner_id"`
	HasPermission bool   `json:"has_permission"`
	RequestStatus string `json:"request_status"`
}

func requestAccess(t *testing.T, env *testutil.Env, requester, owner string) services.RequestResult {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{
		"owner_id": owner,
		"note":     "Interested in the bike",
	}, env.Token(requester))
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, w.Code, w.Body.String())

	var result services.RequestResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	return result
}

func checkAccess(t *testing.T, env *testutil.Env, viewer, owner string) checkPayload {
	t.Helper()
	w := env.Request(http.MethodGet, "/api/contact-permissions/check/"+owner, nil, env.Token(viewer))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var payload checkPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	return payload
}

func TestContactPermissionHandler_RequestApproveRevoke(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))

	result := requestAccess(t, env, buyer, seller)
	require.Equal(t, services.RequestOutcomeRequested, result.Status)
	require.NotNil(t, result.Permission)
	require.Equal(t, models.ContactPermissionPending, result.Permission.Status)
	permissionID := result.Permission.ID

	// A second request is reported, not duplicated.
	w := env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{"owner_id": seller}, env.Token(buyer))
	require.Equal(t, http.StatusOK, w.Code)
	var dup services.RequestResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &dup)
	require.Equal(t, services.RequestOutcomeAlreadyRequested, dup.Status)
	require.Equal(t, models.ContactPermissionPending, dup.ExistingStatus)

	require.Equal(t, checkPayload{OwnerID: seller, HasPermission: false, RequestStatus: services.RequestStatusPending}, checkAccess(t, env, buyer, seller))

	// The owner sees the request with the requester's public profile.
	w = env.Request(http.MethodGet, "/api/contact-permissions/incoming?status=pending", nil, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code)
	var incoming []services.IncomingRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &incoming)
	require.Len(t, incoming, 1)
	require.Equal(t, permissionID, incoming[0].ID)
	require.NotNil(t, incoming[0].Requester)
	require.Equal(t, "Bea Buyer", incoming[0].Requester.DisplayName)
	require.Equal(t, "Interested in the bike", incoming[0].Note)

	w = env.Request(http.MethodGet, "/api/contact-permissions/outgoing", nil, env.Token(buyer))
	require.Equal(t, http.StatusOK, w.Code)
	var outgoing []services.OutgoingRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &outgoing)
	require.Len(t, outgoing, 1)
	require.Equal(t, "Sam Seller", outgoing[0].Owner.DisplayName)

	// Only the owner may approve.
	w = env.Request(http.MethodPost, "/api/contact-permissions/"+permissionID+"/approve", nil, env.Token(buyer))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPost, "/api/contact-permissions/"+permissionID+"/approve", map[string]any{"expires_in": 3600}, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved models.ContactPermission
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &approved)
	require.Equal(t, models.ContactPermissionApproved, approved.Status)
	require.NotNil(t, approved.GrantedAt)
	require.NotNil(t, approved.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(time.Hour), *approved.ExpiresAt, time.Minute)

	// Approving twice conflicts.
	w = env.Request(http.MethodPost, "/api/contact-permissions/"+permissionID+"/approve", nil, env.Token(seller))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "CONTACT_PERMISSION_RESOLVED", testutil.DecodeResponse(t, w).Error.Code)

	require.True(t, checkAccess(t, env, buyer, seller).HasPermission)

	w = env.Request(http.MethodGet, "/api/profiles/"+seller, nil, env.Token(buyer))
	require.Equal(t, http.StatusOK, w.Code)
	var profile services.SecureProfile
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.True(t, profile.CanViewContact)
	require.NotNil(t, profile.Phone)
	require.Equal(t, "+1 (555) 010-2000", *profile.Phone)
	require.NotNil(t, profile.ContactExpiresAt)

	// A third party still cannot see the details.
	require.False(t, checkAccess(t, env, other, seller).HasPermission)

	w = env.Request(http.MethodDelete, "/api/contact-permissions/requesters/"+buyer, nil, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, checkPayload{OwnerID: seller, HasPermission: false, RequestStatus: services.RequestStatusNone}, checkAccess(t, env, buyer, seller))

	w = env.Request(http.MethodDelete, "/api/contact-permissions/requesters/"+buyer, nil, env.Token(seller))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestContactPermissionHandler_Reject(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))

	result := requestAccess(t, env, buyer, seller)

	w := env.Request(http.MethodPost, "/api/contact-permissions/"+result.Permission.ID+"/reject", nil, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rejected models.ContactPermission
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rejected)
	require.Equal(t, models.ContactPermissionRejected, rejected.Status)

	require.Equal(t, services.RequestStatusRejected, checkAccess(t, env, buyer, seller).RequestStatus)

	again := requestAccess(t, env, buyer, seller)
	require.Equal(t, services.RequestOutcomeAlreadyRequested, again.Status)
	require.Equal(t, models.ContactPermissionRejected, again.ExistingStatus)
}

func TestContactPermissionHandler_ApproveValidation(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))
	result := requestAccess(t, env, buyer, seller)
	path := "/api/contact-permissions/" + result.Permission.ID + "/approve"

	w := env.Request(http.MethodPost, path, map[string]any{"expires_in": -5}, env.Token(seller))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Lifetimes beyond ten years would overflow time.Duration and are rejected.
	w = env.Request(http.MethodPost, path, map[string]any{"expires_in": int64(18446744074)}, env.Token(seller))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "expires in must be at most 315360000", testutil.DecodeResponse(t, w).Error.Message)

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	w = env.Request(http.MethodPost, path, map[string]any{"expires_at": past}, env.Token(seller))
	require.Equal(t, http.StatusBadRequest, w.Code)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	w = env.Request(http.MethodPost, path, map[string]any{"expires_at": future, "expires_in": 60}, env.Token(seller))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/contact-permissions/missing/approve", nil, env.Token(seller))
	require.Equal(t, http.StatusNotFound, w.Code)

	// The largest accepted lifetime is honoured in full.
	w = env.Request(http.MethodPost, path, map[string]any{"expires_in": 315360000}, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved models.ContactPermission
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &approved)
	require.NotNil(t, approved.GrantedAt)
	require.NotNil(t, approved.ExpiresAt)
	require.Equal(t, 315360000*time.Second, approved.ExpiresAt.Sub(*approved.GrantedAt))
}

func TestContactPermissionHandler_RequestErrors(t *testing.T) {
	env := testutil.NewEnv(t,
		testutil.WithProfiles(marketplaceProfiles()...),
		testutil.WithConfig(func(cfg *app.Config) {
			cfg.Contact.RequestLimit = 2
			cfg.Contact.RequestWindow = time.Hour
		}),
	)

	w := env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{"owner_id": seller}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{}, env.Token(buyer))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "owner id is required")

	w = env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{"owner_id": buyer}, env.Token(buyer))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "CONTACT_SELF_REQUEST", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{"owner_id": "ghost"}, env.Token(buyer))
	require.Equal(t, http.StatusNotFound, w.Code)

	// Two attempts are allowed in the window, the third is throttled with a retry hint.
	requestAccess(t, env, buyer, seller)
	requestAccess(t, env, buyer, other)

	w = env.Request(http.MethodPost, "/api/contact-permissions", map[string]string{"owner_id": seller}, env.Token(buyer))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)
	require.Positive(t, resp.Error.RetryAfterSeconds)
	require.LessOrEqual(t, resp.Error.RetryAfterSeconds, 3600)
}

func TestContactPermissionHandler_IncomingRejectsUnknownStatus(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))

	w := env.Request(http.MethodGet, "/api/contact-permissions/incoming?status=bogus", nil, env.Token(seller))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodGet, "/api/contact-permissions/incoming", nil, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code)
}
