package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgbase/orgbase/pkg/orgbase/accounts"
	"github.com/orgbase/orgbase/pkg/orgbase/models"
)

// Handler handles authentication requests
type Handler struct {
	svc *accounts.Service
}

// NewHandler creates a new auth handler
func NewHandler(svc *accounts.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenRequest represents the login request body
type TokenRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// ChangePasswordRequest represents the change-password request body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// OrgSummary represents the active organization in auth responses
type OrgSummary struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        uint        `json:"id"`
	UserKey   string      `json:"user_key"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	OrgActive *OrgSummary `json:"org_active"`
}

// TokenResponse represents the authentication response
type TokenResponse struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    UserResponse `json:"user"`
}

func userResponse(user *models.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID,
		UserKey:   user.UserKey,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
	if user.ActiveOrganization != nil {
		resp.OrgActive = &OrgSummary{
			Name: user.ActiveOrganization.Name,
			Key:  user.ActiveOrganization.Key,
		}
	}
	return resp
}

// Register handles user registration
// @Summary Register a new user
// @Description Create a new user account. The returned user key identifies the user externally.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} map[string]string
// @Failure 400 {object} map[string]string "Validation error, duplicate email or weak password"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.RegisterUser(req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrDuplicateEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		case errors.Is(err, accounts.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet the policy requirements"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "User registered successfully",
		"user_key": user.UserKey,
	})
}

// Token handles login and issues an access/refresh token pair
// @Summary Obtain a token pair
// @Description Authenticate with email and password to receive JWT access and refresh tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body TokenRequest true "Login credentials"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/token [post]
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	pair, err := GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    userResponse(user),
	})
}

// Refresh exchanges a refresh token for a new token pair
// @Summary Refresh tokens
// @Description Exchange a valid refresh token for a new access/refresh pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} TokenPair
// @Failure 401 {object} map[string]string "Invalid or expired refresh token"
// @Router /auth/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := ValidateRefreshToken(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	// The user may have been deactivated since the token was issued.
	user, err := h.svc.GetUser(claims.UserID)
	if err != nil || !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	pair, err := GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

// ChangePassword changes the authenticated user's password
// @Summary Change password
// @Description Change the authenticated user's password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} map[string]string "Password changed"
// @Failure 400 {object} map[string]string "Wrong current password or weak new password"
// @Security BearerAuth
// @Router /auth/change-password [post]
func (h *Handler) ChangePassword(c *gin.Context) {
	userID, exists := GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.ChangePassword(userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, accounts.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		case errors.Is(err, accounts.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password does not meet the policy requirements"})
		case errors.Is(err, accounts.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

// Me returns the current authenticated user
// @Summary Get current user
// @Description Get the authenticated user's profile, including the active organization
// @Tags auth
// @Produce json
// @Success 200 {object} UserResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	userID, exists := GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	user, err := h.svc.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, userResponse(user))
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/token", h.Token)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/change-password", AuthMiddleware(), h.ChangePassword)
	rg.GET("/me", AuthMiddleware(), h.Me)
}
