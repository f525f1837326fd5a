package organizations

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgbase/orgbase/pkg/orgbase/accounts"
	"github.com/orgbase/orgbase/pkg/orgbase/auth"
)

// Handler handles organization-related requests
type Handler struct {
	svc *accounts.Service
}

// NewHandler creates a new organizations handler
func NewHandler(svc *accounts.Service) *Handler {
	return &Handler{svc: svc}
}

// CreateOrgRequest represents the request to create an organization
type CreateOrgRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=100"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email"`
	TaxID        string `json:"tax_id" binding:"omitempty,max=50"`
}

// OrgResponse represents an organization in API responses
type OrgResponse struct {
	ID           uint   `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
	TaxID        string `json:"tax_id,omitempty"`
	Role         string `json:"role,omitempty"` // acting user's role in this org
	MemberCount  int64  `json:"member_count,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// List returns all organizations the current user is a member of
// @Summary List organizations
// @Description Get all organizations the current user is a member of
// @Tags organizations
// @Produce json
// @Success 200 {array} OrgResponse
// @Security BearerAuth
// @Router /organizations [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	summaries, err := h.svc.ListOrganizations(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch organizations"})
		return
	}

	orgs := make([]OrgResponse, len(summaries))
	for i, s := range summaries {
		orgs[i] = OrgResponse{
			ID:           s.Organization.ID,
			Key:          s.Organization.Key,
			Name:         s.Organization.Name,
			ContactEmail: s.Organization.ContactEmail,
			TaxID:        s.Organization.TaxID,
			Role:         string(s.Role),
			MemberCount:  s.MemberCount,
			CreatedAt:    formatTime(s.Organization.CreatedAt),
		}
	}

	c.JSON(http.StatusOK, orgs)
}

// Create creates a new organization with the current user as owner
// @Summary Create an organization
// @Description Create a new organization. The creator becomes its owner, and the organization becomes their active organization if they have none.
// @Tags organizations
// @Accept json
// @Produce json
// @Param request body CreateOrgRequest true "Organization details"
// @Success 201 {object} OrgResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /organizations [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org, membership, err := h.svc.CreateOrganization(userID, req.Name, req.ContactEmail, req.TaxID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create organization"})
		return
	}

	c.JSON(http.StatusCreated, OrgResponse{
		ID:           org.ID,
		Key:          org.Key,
		Name:         org.Name,
		ContactEmail: org.ContactEmail,
		TaxID:        org.TaxID,
		Role:         string(membership.Role),
		MemberCount:  1,
		CreatedAt:    formatTime(org.CreatedAt),
	})
}

// Activate switches the current user's active organization
// @Summary Switch the active organization
// @Description Make the given organization the current user's active organization. Requires an active membership.
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {object} map[string]string "Active organization switched"
// @Failure 403 {object} map[string]string "Not a member"
// @Security BearerAuth
// @Router /organizations/{id}/activate [post]
func (h *Handler) Activate(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID"})
		return
	}

	user, err := h.svc.SetActiveOrganization(userID, uint(orgID))
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrNotAMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this organization"})
		case errors.Is(err, accounts.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to switch organization"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "Active organization switched",
		"org_active":       user.ActiveOrganization.Name,
		"organization_key": user.ActiveOrganization.Key,
	})
}

// RegisterRoutes registers organization routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/:id/activate", h.Activate)
}
