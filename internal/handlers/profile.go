package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tradepost/internal/middleware"
	"github.com/charlesng35/tradepost/internal/services"
	"github.com/charlesng35/tradepost/pkg/response"
)

// ProfileHandler exposes profile reads and the caller's own profile management.
type ProfileHandler struct {
	profiles *services.ProfileService
	resolver *services.ProfileResolver
	views    *services.ProfileViewService
}

// NewProfileHandler configures a profile handler with required services.
func NewProfileHandler(profiles *services.ProfileService, resolver *services.ProfileResolver, views *services.ProfileViewService) (*ProfileHandler, error) {
	if profiles == nil || resolver == nil || views == nil {
		return nil, errors.New("profile handler: profile, resolver and view services are required")
	}
	return &ProfileHandler{profiles: profiles, resolver: resolver, views: views}, nil
}

// GET /api/profile
func (h *ProfileHandler) GetOwn(c *gin.Context) {
	profile, err := h.profiles.Own(requestContext(c), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// PUT /api/profile
func (h *ProfileHandler) UpdateOwn(c *gin.Context) {
	var body services.UpdateProfileInput
	if !bindAndValidate(c, &body) {
		return
	}

	profile, err := h.profiles.Upsert(requestContext(c), middleware.UserID(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// GET /api/profiles/:id
//
// Contact details are only present when the viewer owns the profile or holds an effective
// permission.
func (h *ProfileHandler) Get(c *gin.Context) {
	targetID, ok := requireParam(c, "id")
	if !ok {
		return
	}

	profile, err := h.resolver.GetSecureProfile(requestContext(c), middleware.UserID(c), targetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// GET /api/profiles/:id/view
func (h *ProfileHandler) View(c *gin.Context) {
	targetID, ok := requireParam(c, "id")
	if !ok {
		return
	}

	view, err := h.views.Build(requestContext(c), middleware.UserID(c), targetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}
