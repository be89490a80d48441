package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/internal/handlers/testutil"
	"github.com/charlesng35/tradepost/internal/services"
)

func TestProfileHandler_GetGatesContactDetails(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))

	// Anonymous viewer sees public fields only.
	w := env.Request(http.MethodGet, "/api/profiles/"+seller, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)

	var raw map[string]any
	testutil.DecodeInto(t, resp.Data, &raw)
	require.Equal(t, "Sam Seller", raw["display_name"])
	require.Equal(t, false, raw["can_view_contact"])
	require.NotContains(t, raw, "phone")
	require.NotContains(t, raw, "address")

	// Authenticated viewer without permission is treated the same.
	w = env.Request(http.MethodGet, "/api/profiles/"+seller, nil, env.Token(buyer))
	require.Equal(t, http.StatusOK, w.Code)
	raw = map[string]any{}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &raw)
	require.NotContains(t, raw, "phone")

	// Owner sees everything.
	w = env.Request(http.MethodGet, "/api/profiles/"+seller, nil, env.Token(seller))
	require.Equal(t, http.StatusOK, w.Code)
	var own services.SecureProfile
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &own)
	require.True(t, own.IsOwner)
	require.True(t, own.CanViewContact)
	require.NotNil(t, own.Phone)
	require.Equal(t, "+1 (555) 010-2000", *own.Phone)
}

func TestProfileHandler_GetUnknownProfile(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))

	w := env.Request(http.MethodGet, "/api/profiles/nobody", nil, env.Token(buyer))
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestProfileHandler_ViewBuildsDisplayModel(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithProfiles(marketplaceProfiles()...))

	cases := []struct {
		name    string
		token   string
		actions []string
		visible bool
		status  string
	}{
		{name: "anonymous", token: "", actions: []string{services.ActionSignIn}, visible: false, status: services.RequestStatusNone},
		{name: "stranger", token: env.Token(buyer), actions: []string{services.ActionRequestAccess}, visible: false, status: services.RequestStatusNone},
		{name: "owner", token: env.Token(seller), actions: []string{services.ActionManageRequests}, visible: true, status: services.RequestStatusOwner},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.Request(http.MethodGet, "/api/profiles/"+seller+"/view", nil, tc.token)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var view services.ProfileView
			testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &view)
			require.Equal(t, tc.actions, view.Actions)
			require.Equal(t, tc.visible, view.Contact.Visible)
			require.Equal(t, tc.status, view.RequestStatus)
			if !tc.visible {
				require.True(t, view.Contact.Phone.Masked)
				require.Equal(t, services.MaskedPlaceholder, view.Contact.Phone.Value)
			}
		})
	}
}

func TestProfileHandler_OwnProfileLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("new-user")

	w := env.Request(http.MethodGet, "/api/profile", nil, token)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodGet, "/api/profile", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	body := map[string]any{
		"display_name": "<b>Nina</b> Newcomer",
		"phone":        "+1 (555) 010-4444",
		"address":      "<script>x</script>7 Quay Street",
	}
	w = env.Request(http.MethodPut, "/api/profile", body, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var own services.OwnProfile
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &own)
	require.Equal(t, "Nina Newcomer", own.DisplayName)
	require.Equal(t, "+1 (555) 010-4444", own.Phone)
	require.Equal(t, "7 Quay Street", own.Address)

	w = env.Request(http.MethodGet, "/api/profile", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProfileHandler_UpdateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("new-user")

	w := env.Request(http.MethodPut, "/api/profile", map[string]any{"phone": "+1 555 010 4444"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Contains(t, resp.Error.Message, "display name is required")

	w = env.Request(http.MethodPut, "/api/profile", map[string]any{"display_name": "Nina", "phone": "12"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
