package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tradepost/internal/middleware"
	"github.com/charlesng35/tradepost/internal/models"
	"github.com/charlesng35/tradepost/internal/services"
	"github.com/charlesng35/tradepost/pkg/response"
)

// ContactPermissionHandler exposes the contact disclosure workflow.
type ContactPermissionHandler struct {
	svc *services.ContactPermissionService
}

// NewContactPermissionHandler constructs a handler backed by the workflow service.
func NewContactPermissionHandler(svc *services.ContactPermissionService) (*ContactPermissionHandler, error) {
	if svc == nil {
		return nil, errors.New("contact permission handler: service is required")
	}
	return &ContactPermissionHandler{svc: svc}, nil
}

type contactRequestPayload struct {
	OwnerID string `json:"owner_id" validate:"required,max=64"`
	Note    string `json:"note" validate:"omitempty,max=1000"`
}

type approvePayload struct {
	ExpiresAt *time.Time `json:"expires_at"`
	// ExpiresIn is a lifetime in seconds; zero grants without expiry. The cap keeps the
	// conversion to time.Duration from overflowing.
	ExpiresIn *int64 `json:"expires_in" validate:"omitempty,gte=0,lte=315360000"`
}

// POST /api/contact-permissions
func (h *ContactPermissionHandler) Request(c *gin.Context) {
	var body contactRequestPayload
	if !bindAndValidate(c, &body) {
		return
	}

	result, err := h.svc.Request(requestContext(c), middleware.UserID(c), services.RequestInput{
		OwnerID: body.OwnerID,
		Note:    body.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if result.Status == services.RequestOutcomeAlreadyRequested {
		status = http.StatusOK
	}
	response.Success(c, status, result)
}

// GET /api/contact-permissions/incoming?status=pending
func (h *ContactPermissionHandler) ListIncoming(c *gin.Context) {
	status := models.ContactPermissionStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	items, err := h.svc.ListIncoming(requestContext(c), middleware.UserID(c), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// GET /api/contact-permissions/outgoing
func (h *ContactPermissionHandler) ListOutgoing(c *gin.Context) {
	items, err := h.svc.ListOutgoing(requestContext(c), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// GET /api/contact-permissions/check/:ownerID
func (h *ContactPermissionHandler) Check(c *gin.Context) {
	ownerID, ok := requireParam(c, "ownerID")
	if !ok {
		return
	}

	ctx := requestContext(c)
	viewerID := middleware.UserID(c)

	allowed, err := h.svc.Check(ctx, viewerID, ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, _, err := h.svc.RequestStatus(ctx, viewerID, ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"owner_id":       ownerID,
		"has_permission": allowed,
		"request_status": status,
	})
}

// POST /api/contact-permissions/:id/approve
func (h *ContactPermissionHandler) Approve(c *gin.Context) {
	permissionID, ok := requireParam(c, "id")
	if !ok {
		return
	}

	var body approvePayload
	if c.Request.ContentLength != 0 {
		if !bindAndValidate(c, &body) {
			return
		}
	}

	input := services.ApproveInput{ExpiresAt: body.ExpiresAt}
	if body.ExpiresIn != nil {
		d := time.Duration(*body.ExpiresIn) * time.Second
		input.ExpiresIn = &d
	}

	permission, err := h.svc.Approve(requestContext(c), middleware.UserID(c), permissionID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, permission)
}

// POST /api/contact-permissions/:id/reject
func (h *ContactPermissionHandler) Reject(c *gin.Context) {
	permissionID, ok := requireParam(c, "id")
	if !ok {
		return
	}

	permission, err := h.svc.Reject(requestContext(c), middleware.UserID(c), permissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, permission)
}

// DELETE /api/contact-permissions/requesters/:requesterID
func (h *ContactPermissionHandler) Revoke(c *gin.Context) {
	requesterID, ok := requireParam(c, "requesterID")
	if !ok {
		return
	}

	if err := h.svc.Revoke(requestContext(c), middleware.UserID(c), requesterID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
