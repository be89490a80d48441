package services

import (
	"context"
	"errors"
	"time"
)

// MaskedPlaceholder replaces gated values the viewer may not see.
const MaskedPlaceholder = "•••"

// Actions a client may offer next to a profile.
const (
	ActionRequestAccess    = "request_access"
	ActionToggleVisibility = "toggle_visibility"
	ActionManageRequests   = "manage_requests"
	ActionSignIn           = "sign_in"
)

// ContactField is one gated value as it should be rendered.
type ContactField struct {
	Value  string `json:"value"`
	Masked bool   `json:"masked"`
}

// ContactBlock groups the gated fields of a profile view.
type ContactBlock struct {
	Visible   bool         `json:"visible"`
	Phone     ContactField `json:"phone"`
	Address   ContactField `json:"address"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

// ProfileView is the display model for a profile page.
type ProfileView struct {
	Profile       PublicProfile `json:"profile"`
	IsOwner       bool          `json:"is_owner"`
	Contact       ContactBlock  `json:"contact"`
	RequestStatus string        `json:"request_status"`
	Actions       []string      `json:"actions"`
}

// ProfileViewService assembles display models from the resolver and the workflow.
type ProfileViewService struct {
	resolver    *ProfileResolver
	permissions *ContactPermissionService
}

// NewProfileViewService constructs a ProfileViewService.
func NewProfileViewService(resolver *ProfileResolver, permissions *ContactPermissionService) (*ProfileViewService, error) {
	if resolver == nil {
		return nil, errors.New("profile view service: resolver is required")
	}
	if permissions == nil {
		return nil, errors.New("profile view service: contact permission service is required")
	}
	return &ProfileViewService{resolver: resolver, permissions: permissions}, nil
}

// Build returns the display model of targetID for viewerID.
func (s *ProfileViewService) Build(ctx context.Context, viewerID, targetID string) (*ProfileView, error) {
	ctx = ensureContext(ctx)

	profile, err := s.resolver.GetSecureProfile(ctx, viewerID, targetID)
	if err != nil {
		return nil, err
	}

	status, _, err := s.permissions.RequestStatus(ctx, viewerID, profile.UserID)
	if err != nil {
		return nil, err
	}

	view := &ProfileView{
		Profile:       profile.PublicProfile,
		IsOwner:       profile.IsOwner,
		RequestStatus: status,
		Contact:       buildContactBlock(profile),
		Actions:       availableActions(viewerID, profile, status),
	}
	return view, nil
}

func buildContactBlock(profile *SecureProfile) ContactBlock {
	if !profile.CanViewContact {
		return ContactBlock{
			Phone:   ContactField{Value: MaskedPlaceholder, Masked: true},
			Address: ContactField{Value: MaskedPlaceholder, Masked: true},
		}
	}

	block := ContactBlock{Visible: true, ExpiresAt: profile.ContactExpiresAt}
	if profile.Phone != nil {
		block.Phone.Value = *profile.Phone
	}
	if profile.Address != nil {
		block.Address.Value = *profile.Address
	}
	return block
}

func availableActions(viewerID string, profile *SecureProfile, status string) []string {
	switch {
	case viewerID == "":
		return []string{ActionSignIn}
	case profile.IsOwner:
		return []string{ActionManageRequests}
	case profile.CanViewContact:
		return []string{ActionToggleVisibility}
	case status == RequestStatusNone || status == RequestStatusExpired:
		return []string{ActionRequestAccess}
	default:
		return []string{}
	}
}
