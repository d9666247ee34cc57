package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/dictation"
	"medical-dictation-server/internal/graph"
	"medical-dictation-server/internal/handlers"
	"medical-dictation-server/internal/middleware"
	"medical-dictation-server/internal/models"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, svc *dictation.Service) {
	authHandler := handlers.NewAuthHandler(db, cfg)
	userHandler := handlers.NewUserHandler(db, svc)
	relationshipHandler := handlers.NewRelationshipHandler(svc)
	voiceHandler := handlers.NewVoiceHandler(svc)
	noteHandler := handlers.NewNoteHandler(svc)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg, db))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
			authRoutesPrivate.PUT("/device-token", authHandler.UpdateDeviceToken)
		}

		userRoutes := private.Group("/users")
		{
			// Patient registration by doctors; finer checks happen in the service
			userRoutes.POST("/patients", middleware.RoleAuthMiddleware(models.RoleDoctor), userHandler.CreatePatient)
			userRoutes.PUT("/patients/:id", middleware.RoleAuthMiddleware(models.RoleDoctor), userHandler.UpdatePatient)
			userRoutes.GET("/patients/:id", userHandler.GetPatient)

			adminRoutes := userRoutes.Group("")
			adminRoutes.Use(middleware.PrivilegedMiddleware())
			{
				adminRoutes.POST("", userHandler.CreateUser)
				adminRoutes.GET("", userHandler.GetUsers)
				adminRoutes.GET("/:id", userHandler.GetUserByID)
				adminRoutes.PUT("/:id", userHandler.UpdateUser)
				adminRoutes.DELETE("/:id", userHandler.DeleteUser)
			}
		}

		relationshipRoutes := private.Group("/relationships")
		{
			relationshipRoutes.POST("/:kind/:from/:to", relationshipHandler.Link)
			relationshipRoutes.DELETE("/:kind/:from/:to", relationshipHandler.Unlink)
			relationshipRoutes.GET("/doctors/:id/patients", relationshipHandler.Related(graph.DoctorPatient, graph.Forward))
			relationshipRoutes.GET("/doctors/:id/managers", relationshipHandler.Related(graph.DoctorManager, graph.Forward))
			relationshipRoutes.GET("/patients/:id/doctors", relationshipHandler.Related(graph.DoctorPatient, graph.Backward))
			relationshipRoutes.GET("/managers/:id/doctors", relationshipHandler.Related(graph.DoctorManager, graph.Backward))
			relationshipRoutes.GET("/managers/:id/assistants", relationshipHandler.Related(graph.AssistantManager, graph.Backward))
			relationshipRoutes.GET("/assistants/:id/managers", relationshipHandler.Related(graph.AssistantManager, graph.Forward))
		}

		voiceRoutes := private.Group("/voices")
		{
			voiceRoutes.GET("", middleware.PrivilegedMiddleware(), voiceHandler.ListVoices(""))
			voiceRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleDoctor), voiceHandler.CreateVoice)
			voiceRoutes.GET("/doctor/:id", voiceHandler.ListVoices(models.RoleDoctor))
			voiceRoutes.GET("/manager/:id", voiceHandler.ListVoices(models.RoleManager))
			voiceRoutes.GET("/assistant/:id", voiceHandler.ListVoices(models.RoleAssistant))
			voiceRoutes.GET("/patient/:id", voiceHandler.ListVoices(models.RolePatient))
			voiceRoutes.GET("/:id", voiceHandler.GetVoice)
			voiceRoutes.PUT("/:id", voiceHandler.UpdateVoice)
			voiceRoutes.DELETE("/:id", voiceHandler.DeleteVoice)
			voiceRoutes.GET("/:id/note", voiceHandler.GetVoiceNote)
			voiceRoutes.GET("/:id/audio", voiceHandler.GetVoiceAudio)
		}

		noteRoutes := private.Group("/notes")
		{
			noteRoutes.GET("", middleware.PrivilegedMiddleware(), noteHandler.ListNotes(""))
			noteRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleAssistant), noteHandler.CreateNote)
			noteRoutes.GET("/search", noteHandler.Search)
			noteRoutes.GET("/doctor/:id", noteHandler.ListNotes(models.RoleDoctor))
			noteRoutes.GET("/manager/:id", noteHandler.ListNotes(models.RoleManager))
			noteRoutes.GET("/assistant/:id", noteHandler.ListNotes(models.RoleAssistant))
			noteRoutes.GET("/patient/:id", noteHandler.ListNotes(models.RolePatient))
			noteRoutes.POST("/remarques", noteHandler.CreateRemarque)
			noteRoutes.PATCH("/remarques/:id/seen", noteHandler.MarkRemarqueSeen)
			noteRoutes.GET("/:id", noteHandler.GetNote)
			noteRoutes.PUT("/:id", noteHandler.UpdateNote)
			noteRoutes.DELETE("/:id", noteHandler.DeleteNote)
			noteRoutes.GET("/:id/remarques", noteHandler.ListRemarques)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
