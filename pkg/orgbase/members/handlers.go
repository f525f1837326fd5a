// Package members exposes the member-management API for the acting user's
// active organization, mirroring the accounts service operations one to one.
// All requests are scoped to the active organization; requests without one
// fail with 400.
package members

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orgbase/orgbase/pkg/orgbase/accounts"
	"github.com/orgbase/orgbase/pkg/orgbase/auth"
	"github.com/orgbase/orgbase/pkg/orgbase/models"
)

// Handler handles member-management requests
type Handler struct {
	svc *accounts.Service
}

// NewHandler creates a new members handler
func NewHandler(svc *accounts.Service) *Handler {
	return &Handler{svc: svc}
}

// AddMemberRequest represents the request to add a member
type AddMemberRequest struct {
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
	Password string `json:"password" binding:"omitempty"`
	Role     string `json:"role" binding:"omitempty,oneof=owner manager member"`
}

// UpdateMemberRequest represents the request to update a member. Absent
// fields are left unchanged; user fields and membership fields may be
// updated independently.
type UpdateMemberRequest struct {
	FullName *string `json:"full_name" binding:"omitempty"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Active   *bool   `json:"active"`
	Role     *string `json:"role" binding:"omitempty,oneof=owner manager member"`
	IsActive *bool   `json:"is_active"`
}

// MemberResponse represents a member in API responses
type MemberResponse struct {
	ID          uint   `json:"id"`
	UserID      uint   `json:"user_id"`
	UserKey     string `json:"user_key"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	RoleDisplay string `json:"role_display"`
	Status      bool   `json:"status"` // membership is_active flag
	Active      bool   `json:"active"` // user account flag
	CreatedAt   string `json:"created_at"`
}

func memberResponse(m *accounts.Member) MemberResponse {
	return MemberResponse{
		ID:          m.Membership.ID,
		UserID:      m.User.ID,
		UserKey:     m.User.UserKey,
		Email:       m.User.Email,
		FirstName:   m.User.FirstName,
		LastName:    m.User.LastName,
		Role:        string(m.Membership.Role),
		RoleDisplay: m.Membership.Role.Display(),
		Status:      m.Membership.IsActive,
		Active:      m.User.Active,
		CreatedAt:   m.Membership.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// activeOrg resolves the acting user's active organization. Requests without
// one are rejected, matching the single-organization scoping of the API.
func (h *Handler) activeOrg(c *gin.Context) (userID, orgID uint, ok bool) {
	userID, _ = auth.GetUserID(c)
	user, err := h.svc.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return 0, 0, false
	}
	if user.ActiveOrganizationID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User has no active organization"})
		return 0, 0, false
	}
	return userID, *user.ActiveOrganizationID, true
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, accounts.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of the organization"})
	case errors.Is(err, accounts.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "No permission to manage members"})
	case errors.Is(err, accounts.ErrLastOwnerProtection):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Organization cannot be left without an active owner"})
	case errors.Is(err, accounts.ErrAlreadyMember):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User is already a member"})
	case errors.Is(err, accounts.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
	case errors.Is(err, accounts.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet the policy requirements"})
	case errors.Is(err, accounts.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
	case errors.Is(err, accounts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// List returns all members of the active organization
// @Summary List members
// @Description Get all members of the acting user's active organization, in membership creation order
// @Tags members
// @Produce json
// @Success 200 {array} MemberResponse
// @Failure 400 {object} map[string]string "No active organization"
// @Failure 403 {object} map[string]string "Not a member"
// @Security BearerAuth
// @Router /members [get]
func (h *Handler) List(c *gin.Context) {
	userID, orgID, ok := h.activeOrg(c)
	if !ok {
		return
	}

	members, err := h.svc.ListMembers(userID, orgID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := make([]MemberResponse, len(members))
	for i := range members {
		resp[i] = memberResponse(&members[i])
	}
	c.JSON(http.StatusOK, resp)
}

// Create adds a member to the active organization
// @Summary Add a member
// @Description Add a user to the active organization. Creates the user when the email is unknown, otherwise attaches the existing user. Requires owner or manager role.
// @Tags members
// @Accept json
// @Produce json
// @Param request body AddMemberRequest true "Member details"
// @Success 201 {object} MemberResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "No permission"
// @Security BearerAuth
// @Router /members [post]
func (h *Handler) Create(c *gin.Context) {
	userID, orgID, ok := h.activeOrg(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.svc.AddMember(userID, orgID, req.Email, req.FullName, req.Password, models.Role(req.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, memberResponse(member))
}

// Get returns a single member of the active organization
// @Summary Get a member
// @Description Get one member of the active organization by user ID
// @Tags members
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} MemberResponse
// @Failure 404 {object} map[string]string "Member not found"
// @Security BearerAuth
// @Router /members/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, orgID, ok := h.activeOrg(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	member, err := h.svc.GetMember(userID, orgID, uint(targetID))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, memberResponse(member))
}

// Update updates a member of the active organization
// @Summary Update a member
// @Description Update a member's user fields and/or membership fields. Requires owner or manager role. Demoting or deactivating the last active owner is rejected.
// @Tags members
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateMemberRequest true "Fields to update"
// @Success 200 {object} MemberResponse
// @Failure 400 {object} map[string]string "Validation error or last-owner protection"
// @Failure 403 {object} map[string]string "No permission"
// @Security BearerAuth
// @Router /members/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, orgID, ok := h.activeOrg(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := accounts.MemberFields{
		FullName: req.FullName,
		Email:    req.Email,
		Active:   req.Active,
		IsActive: req.IsActive,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		fields.Role = &role
	}

	member, err := h.svc.UpdateMember(userID, orgID, uint(targetID), fields)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, memberResponse(member))
}

// Remove removes a member from the active organization
// @Summary Remove a member
// @Description Remove a member from the active organization. The user record is kept; only the membership is deleted. Requires owner or manager role. The sole active owner cannot be removed.
// @Tags members
// @Produce json
// @Param id path int true "User ID"
// @Success 204 "Member removed"
// @Failure 400 {object} map[string]string "Last-owner protection"
// @Failure 403 {object} map[string]string "No permission"
// @Security BearerAuth
// @Router /members/{id} [delete]
func (h *Handler) Remove(c *gin.Context) {
	userID, orgID, ok := h.activeOrg(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.svc.RemoveMember(userID, orgID, uint(targetID)); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Stats returns member statistics for the active organization
// @Summary Member statistics
// @Description Get aggregate member counts (total, active, inactive, per role) for the active organization
// @Tags members
// @Produce json
// @Success 200 {object} accounts.Stats
// @Failure 403 {object} map[string]string "Not a member"
// @Security BearerAuth
// @Router /members/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	userID, orgID, ok := h.activeOrg(c)
	if !ok {
		return
	}

	stats, err := h.svc.MemberStats(userID, orgID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers member-management routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/stats", h.Stats)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Remove)
}
