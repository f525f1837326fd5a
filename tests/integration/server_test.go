package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orgbase/orgbase/pkg/orgbase/accounts"
	"github.com/orgbase/orgbase/pkg/orgbase/auth"
	"github.com/orgbase/orgbase/pkg/orgbase/members"
	"github.com/orgbase/orgbase/pkg/orgbase/models"
	"github.com/orgbase/orgbase/pkg/orgbase/organizations"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// setupFullServer creates a Gin engine with all routes registered.
// This mirrors the setup in cmd/orgbase-server/main.go
func setupFullServer(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	svc := accounts.NewService(db)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "orgbase",
			})
		})

		authHandler := auth.NewHandler(svc)
		authHandler.RegisterRoutes(api.Group("/auth"))

		orgsHandler := organizations.NewHandler(svc)
		orgsHandler.RegisterRoutes(api.Group("/organizations", auth.AuthMiddleware()))

		membersHandler := members.NewHandler(svc)
		membersHandler.RegisterRoutes(api.Group("/members", auth.AuthMiddleware()))
	}

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

// TestServerStartup verifies that all routes can be registered without conflicts
func TestServerStartup(t *testing.T) {
	db := setupTestDB(t)

	// This will panic if there are route conflicts
	router := setupFullServer(db)

	if router == nil {
		t.Fatal("Expected router to be created")
	}
}

// TestHealthEndpoints verifies the health endpoints respond correctly
func TestHealthEndpoints(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	for _, path := range []string{"/health", "/api/health"} {
		resp := doJSON(router, "GET", path, nil, "")
		if resp.Code != http.StatusOK {
			t.Errorf("Expected status 200 for %s, got %d", path, resp.Code)
		}
	}
}

// TestProtectedEndpointsRequireAuth verifies that protected endpoints return 401 without auth
func TestProtectedEndpointsRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	protectedEndpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/organizations"},
		{"POST", "/api/organizations"},
		{"GET", "/api/members"},
		{"POST", "/api/members"},
		{"GET", "/api/members/stats"},
		{"GET", "/api/auth/me"},
		{"POST", "/api/auth/change-password"},
	}

	for _, endpoint := range protectedEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			resp := doJSON(router, endpoint.method, endpoint.path, nil, "")
			if resp.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401 for %s %s, got %d", endpoint.method, endpoint.path, resp.Code)
			}
		})
	}
}

// TestPublicEndpointsNoAuth verifies that public endpoints don't require auth
func TestPublicEndpointsNoAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	publicEndpoints := []struct {
		method       string
		path         string
		expectedCode int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/api/health", http.StatusOK},
		{"POST", "/api/auth/register", http.StatusBadRequest}, // Bad request (no body), but not 401
		{"POST", "/api/auth/token", http.StatusBadRequest},    // Bad request (no body), but not 401
		{"POST", "/api/auth/refresh", http.StatusBadRequest},  // Bad request (no body), but not 401
	}

	for _, endpoint := range publicEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			resp := doJSON(router, endpoint.method, endpoint.path, nil, "")
			if resp.Code != endpoint.expectedCode {
				t.Errorf("Expected status %d for %s %s, got %d", endpoint.expectedCode, endpoint.method, endpoint.path, resp.Code)
			}
		})
	}
}

// TestFullLifecycle walks the whole API: register, login, create an
// organization, add and manage members, then remove one.
func TestFullLifecycle(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(db)

	// Register and log in.
	resp := doJSON(router, "POST", "/api/auth/register", map[string]string{
		"full_name": "Ana Souza",
		"email":     "ana@example.com",
		"password":  "password123",
	}, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("Register failed with %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "POST", "/api/auth/token", map[string]string{
		"email":    "ana@example.com",
		"password": "password123",
	}, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("Token failed with %d: %s", resp.Code, resp.Body.String())
	}
	var tokens auth.TokenResponse
	json.Unmarshal(resp.Body.Bytes(), &tokens)
	token := tokens.Access

	// Members API is unusable until an organization exists.
	resp = doJSON(router, "GET", "/api/members", nil, token)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 with no active organization, got %d", resp.Code)
	}

	// Create an organization; it becomes the active one.
	resp = doJSON(router, "POST", "/api/organizations", map[string]string{
		"name": "Souza Ltd",
	}, token)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Create organization failed with %d: %s", resp.Code, resp.Body.String())
	}

	// Add a member.
	resp = doJSON(router, "POST", "/api/members", map[string]string{
		"full_name": "Bruno Lima",
		"email":     "bruno@example.com",
		"password":  "password123",
	}, token)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Add member failed with %d: %s", resp.Code, resp.Body.String())
	}
	var member members.MemberResponse
	json.Unmarshal(resp.Body.Bytes(), &member)

	// Promote Bruno to manager.
	resp = doJSON(router, "PATCH", fmt.Sprintf("/api/members/%d", member.UserID), map[string]string{
		"role": "manager",
	}, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("Update member failed with %d: %s", resp.Code, resp.Body.String())
	}

	// Stats reflect both members.
	resp = doJSON(router, "GET", "/api/members/stats", nil, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("Stats failed with %d: %s", resp.Code, resp.Body.String())
	}
	var stats accounts.Stats
	json.Unmarshal(resp.Body.Bytes(), &stats)
	if stats.TotalMembers != 2 || stats.Owners != 1 || stats.Managers != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	// Removing the sole owner is rejected; removing Bruno succeeds.
	resp = doJSON(router, "DELETE", fmt.Sprintf("/api/members/%d", tokens.User.ID), nil, token)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 removing the sole owner, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(router, "DELETE", fmt.Sprintf("/api/members/%d", member.UserID), nil, token)
	if resp.Code != http.StatusNoContent {
		t.Errorf("Expected 204 removing a member, got %d: %s", resp.Code, resp.Body.String())
	}
}
