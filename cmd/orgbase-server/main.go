package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/orgbase/orgbase/pkg/orgbase/accounts"
	"github.com/orgbase/orgbase/pkg/orgbase/auth"
	"github.com/orgbase/orgbase/pkg/orgbase/database"
	"github.com/orgbase/orgbase/pkg/orgbase/members"
	"github.com/orgbase/orgbase/pkg/orgbase/models"
	"github.com/orgbase/orgbase/pkg/orgbase/organizations"

	_ "github.com/orgbase/orgbase/api/swagger"
)

// @title Orgbase API
// @version 1.0
// @description Multi-tenant account system: users, organizations and role-based memberships.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT access token. Format: "Bearer {token}"

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("ORGBASE_DB_PATH")
	if dbPath == "" {
		dbPath = "orgbase.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	svc := accounts.NewService(database.GetDB())

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "orgbase",
			})
		})

		// Auth routes (register/token/refresh public, the rest behind the middleware)
		authHandler := auth.NewHandler(svc)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Organization routes (protected)
		orgsHandler := organizations.NewHandler(svc)
		orgsHandler.RegisterRoutes(api.Group("/organizations", auth.AuthMiddleware()))

		// Member management routes, scoped to the active organization (protected)
		membersHandler := members.NewHandler(svc)
		membersHandler.RegisterRoutes(api.Group("/members", auth.AuthMiddleware()))
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting Orgbase server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
