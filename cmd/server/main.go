package main

import (
	"fmt"
	"log"
	"net/http"

	"gamehub/backend/internal/auth"
	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/config"
	"gamehub/backend/internal/container"
	"gamehub/backend/internal/database"
	"gamehub/backend/internal/handler"
	"gamehub/backend/internal/hub"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func init() {
	config.LoadConfig()
}

// newBus picks the fanout backend: Redis when configured, in-process otherwise.
func newBus() bus.Bus {
	if config.AppConfig.RedisURL == "" {
		log.Println("REDIS_URL not set, using in-process event bus")
		return bus.NewMemoryBus()
	}
	opts, err := redis.ParseURL(config.AppConfig.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	return bus.NewRedisBus(redis.NewClient(opts))
}

// @title           Gamehub API
// @version         1.0
// @description     Container membership and realtime fan-out service for multiplayer games.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	// Connect to the database
	database.Connect(config.AppConfig.DatabaseURL)

	eventBus := newBus()
	defer eventBus.Close()

	svc := container.NewService(database.DB, container.NewHooks(), eventBus)
	handler.UseNotifier(svc)

	gateway := hub.NewHub(eventBus, handler.NewGatewayBackend(svc))
	go gateway.Run()
	defer gateway.Stop()

	lobbies := handler.NewContainerHandler(svc, models.KindLobby)
	parties := handler.NewContainerHandler(svc, models.KindParty)
	groups := handler.NewContainerHandler(svc, models.KindGroup)
	adminContainers := handler.NewAdminContainerHandler(svc)
	ws := handler.NewWebSocketHandler(gateway)

	router := gin.Default()

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Realtime gateway
	router.GET("/ws", auth.AuthMiddleware(), ws.HandleWebSocket)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", handler.RegisterUser)
			authRoutes.POST("/login", handler.LoginUser)
		}

		// User routes (protected)
		userRoutes := apiV1.Group("/users")
		userRoutes.Use(auth.AuthMiddleware())
		{
			userRoutes.GET("", handler.SearchUsers) // Must be before /:id
			userRoutes.GET("/me", handler.GetMe)
			userRoutes.GET("/me/relations", handler.GetRelations)
			userRoutes.GET("/:id", handler.GetUserByID)
			userRoutes.GET("/:id/relations", handler.GetUserRelationsByID)

			// Friendship routes
			userRoutes.POST("/:id/request", handler.SendRequest)
			userRoutes.POST("/:id/accept", handler.AcceptRequest)
			userRoutes.POST("/:id/decline", handler.DeclineRequest)
			userRoutes.POST("/:id/remove", handler.RemoveRelation)
		}

		// Notification routes (protected)
		notificationRoutes := apiV1.Group("/notifications")
		notificationRoutes.Use(auth.AuthMiddleware())
		{
			notificationRoutes.GET("", handler.GetNotifications)
			notificationRoutes.POST("/read", handler.MarkNotificationsRead)
		}

		// Game routes. Leaderboard reads are public; everything else needs auth.
		gameRoutes := apiV1.Group("/games")
		{
			gameRoutes.GET("/:id/leaderboard", auth.OptionalAuthMiddleware(), handler.GetLeaderboard)

			authed := gameRoutes.Group("")
			authed.Use(auth.AuthMiddleware())
			authed.GET("", handler.GetGames)
			authed.GET("/:id", handler.GetGameByID)
			authed.POST("/:id/favorite", handler.ToggleFavoriteGame)
			authed.POST("/:id/scores", handler.SubmitScore)
			authed.GET("/:id/leaderboard/me", handler.GetMyRank)
		}

		// Container routes; lobbies, parties and groups share the same handler
		// with kind-specific extras per group. Browsing is public (hidden
		// containers stay filtered), mutations need auth.
		registerContainerRoutes := func(rg *gin.RouterGroup, h *handler.ContainerHandler) *gin.RouterGroup {
			rg.GET("", auth.OptionalAuthMiddleware(), h.List)
			rg.GET("/:id", auth.OptionalAuthMiddleware(), h.Get)

			authed := rg.Group("")
			authed.Use(auth.AuthMiddleware())
			authed.POST("", h.Create)
			authed.PUT("/:id", h.Update)
			authed.DELETE("/:id", h.Delete)
			authed.POST("/:id/join", h.Join)
			authed.POST("/:id/leave", h.Leave)
			authed.DELETE("/:id/members/:userID", h.Kick)
			return authed
		}

		registerContainerRoutes(apiV1.Group("/lobbies"), lobbies)
		registerContainerRoutes(apiV1.Group("/parties"), parties)

		groupAuthed := registerContainerRoutes(apiV1.Group("/groups"), groups)
		{
			groupAuthed.POST("/:id/members/:userID/promote", groups.Promote)
			groupAuthed.POST("/:id/members/:userID/demote", groups.Demote)
			groupAuthed.GET("/:id/requests", groups.ListRequests)
			groupAuthed.POST("/:id/requests/:requestID/approve", groups.ApproveRequest)
			groupAuthed.POST("/:id/requests/:requestID/reject", groups.RejectRequest)
		}

		// Admin routes (protected by auth and admin check)
		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(auth.AuthMiddleware(), auth.AdminMiddleware())
		{
			// Tags CRUD
			tags := adminRoutes.Group("/tags")
			{
				tags.POST("", handler.CreateTag)
				tags.GET("", handler.GetTags)
				tags.PUT("/:id", handler.UpdateTag)
				tags.DELETE("/:id", handler.DeleteTag)
			}

			// Games CRUD (admin-only parts)
			adminGameRoutes := adminRoutes.Group("/games")
			{
				adminGameRoutes.POST("", handler.CreateGame)
				adminGameRoutes.PUT("/:id", handler.UpdateGame)
				adminGameRoutes.DELETE("/:id", handler.DeleteGame)
			}

			// Container moderation
			adminRoutes.GET("/containers", adminContainers.List)
			adminRoutes.POST("/lobbies", adminContainers.CreateHostlessLobby)
			adminRoutes.PUT("/containers/:id", adminContainers.Update)
			adminRoutes.DELETE("/containers/:id", adminContainers.Delete)
			adminRoutes.DELETE("/containers/:id/members/:userID", adminContainers.Kick)
		}
	}

	fmt.Println("Server is running on " + config.AppConfig.ServerAddr)
	log.Fatal(router.Run(config.AppConfig.ServerAddr))
}
