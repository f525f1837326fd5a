package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orgbase/orgbase/pkg/orgbase/accounts"
	"github.com/orgbase/orgbase/pkg/orgbase/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(accounts.NewService(db))
	auth := r.Group("/auth")
	handler.RegisterRoutes(auth)
	return r
}

func doJSON(router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func registerAndLogin(t *testing.T, router *gin.Engine, email, fullName string) TokenResponse {
	t.Helper()
	resp := doJSON(router, "POST", "/auth/register", RegisterRequest{
		FullName: fullName,
		Email:    email,
		Password: "password123",
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("Register failed with %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "POST", "/auth/token", TokenRequest{
		Email:    email,
		Password: "password123",
	}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("Token failed with %d: %s", resp.Code, resp.Body.String())
	}

	var tokens TokenResponse
	json.Unmarshal(resp.Body.Bytes(), &tokens)
	return tokens
}

func TestTokenPair(t *testing.T) {
	pair, err := GenerateTokenPair(1, "test@example.com")
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}

	claims, err := ValidateAccessToken(pair.Access)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.UserID != 1 {
		t.Errorf("Expected UserID 1, got %d", claims.UserID)
	}
	if claims.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", claims.Email)
	}

	if _, err := ValidateRefreshToken(pair.Refresh); err != nil {
		t.Fatalf("ValidateRefreshToken failed: %v", err)
	}

	// Tokens are not interchangeable across types.
	if _, err := ValidateAccessToken(pair.Refresh); err == nil {
		t.Error("Expected refresh token to be rejected as access token")
	}
	if _, err := ValidateRefreshToken(pair.Access); err == nil {
		t.Error("Expected access token to be rejected as refresh token")
	}
}

func TestInvalidToken(t *testing.T) {
	if _, err := ValidateAccessToken("invalid-token"); err == nil {
		t.Error("Expected error for invalid token")
	}
}

func TestRegister(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doJSON(router, "POST", "/auth/register", RegisterRequest{
		FullName: "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}, "")

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response map[string]string
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response["user_key"] == "" {
		t.Error("Expected user_key in response")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	body := RegisterRequest{
		FullName: "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}
	doJSON(router, "POST", "/auth/register", body, "")
	resp := doJSON(router, "POST", "/auth/register", body, "")

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doJSON(router, "POST", "/auth/register", RegisterRequest{
		FullName: "Test User",
		Email:    "test@example.com",
		Password: "short",
	}, "")

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestToken(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tokens := registerAndLogin(t, router, "test@example.com", "Test User")

	if tokens.Access == "" || tokens.Refresh == "" {
		t.Error("Expected access and refresh tokens in response")
	}
	if tokens.User.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", tokens.User.Email)
	}
	if tokens.User.UserKey == "" {
		t.Error("Expected user_key in embedded user")
	}
	if tokens.User.OrgActive != nil {
		t.Error("Expected no active organization for a fresh user")
	}
}

func TestTokenWrongPassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	doJSON(router, "POST", "/auth/register", RegisterRequest{
		FullName: "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}, "")

	resp := doJSON(router, "POST", "/auth/token", TokenRequest{
		Email:    "test@example.com",
		Password: "wrongpassword",
	}, "")

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestRefresh(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tokens := registerAndLogin(t, router, "test@example.com", "Test User")

	resp := doJSON(router, "POST", "/auth/refresh", RefreshRequest{Refresh: tokens.Refresh}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var pair TokenPair
	json.Unmarshal(resp.Body.Bytes(), &pair)
	if pair.Access == "" || pair.Refresh == "" {
		t.Error("Expected a fresh token pair")
	}
	if _, err := ValidateAccessToken(pair.Access); err != nil {
		t.Errorf("Expected refreshed access token to validate, got %v", err)
	}

	// An access token is not accepted as a refresh token.
	resp = doJSON(router, "POST", "/auth/refresh", RefreshRequest{Refresh: tokens.Access}, "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestRefreshDeactivatedUser(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tokens := registerAndLogin(t, router, "test@example.com", "Test User")

	db.Model(&models.User{}).Where("email = ?", "test@example.com").Update("active", false)

	resp := doJSON(router, "POST", "/auth/refresh", RefreshRequest{Refresh: tokens.Refresh}, "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for deactivated user, got %d", resp.Code)
	}
}

func TestChangePassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tokens := registerAndLogin(t, router, "test@example.com", "Test User")

	resp := doJSON(router, "POST", "/auth/change-password", ChangePasswordRequest{
		CurrentPassword: "wrongpassword",
		NewPassword:     "newpassword123",
	}, tokens.Access)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for wrong current password, got %d", resp.Code)
	}

	resp = doJSON(router, "POST", "/auth/change-password", ChangePasswordRequest{
		CurrentPassword: "password123",
		NewPassword:     "newpassword123",
	}, tokens.Access)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Old password no longer works, new one does.
	resp = doJSON(router, "POST", "/auth/token", TokenRequest{
		Email:    "test@example.com",
		Password: "password123",
	}, "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with old password, got %d", resp.Code)
	}
	resp = doJSON(router, "POST", "/auth/token", TokenRequest{
		Email:    "test@example.com",
		Password: "newpassword123",
	}, "")
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 with new password, got %d", resp.Code)
	}
}

func TestMe(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	tokens := registerAndLogin(t, router, "test@example.com", "Test User")

	resp := doJSON(router, "GET", "/auth/me", nil, tokens.Access)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var user UserResponse
	json.Unmarshal(resp.Body.Bytes(), &user)
	if user.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", user.Email)
	}
	if user.FirstName != "Test" || user.LastName != "User" {
		t.Errorf("Expected Test / User, got %s / %s", user.FirstName, user.LastName)
	}
}

func TestMeWithoutAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := doJSON(router, "GET", "/auth/me", nil, "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}
