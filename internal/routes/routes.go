package routes

import (
	"patient-records-server/internal/config"
	"patient-records-server/internal/handlers"
	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies are the stores and services the handlers are built from.
type Dependencies struct {
	Config    *config.Config
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Users     repository.UserRepository
	Tokens    repository.TokenRepository
	Messages  repository.MessageRepository
	Files     repository.FileRepository
	Patients  repository.PatientRepository
	MedOrders repository.MedOrderRepository
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	limit := cfg.DefaultPageLimit

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Tokens, cfg, deps.Log, deps.Metrics)
	patientHandler := handlers.NewPatientHandler(deps.Patients, deps.MedOrders, deps.Log, limit)
	noteHandler := handlers.NewNoteHandler(deps.Patients, deps.Log, deps.Metrics)
	medicationHandler := handlers.NewMedicationHandler(deps.Patients, deps.MedOrders, deps.Users, deps.Log, deps.Metrics, limit)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Log, limit)
	messageHandler := handlers.NewMessageHandler(deps.Messages, deps.Patients, deps.Log, limit)
	fileHandler := handlers.NewFileHandler(deps.Files, deps.Patients, deps.Log, cfg.MaxUploadMB)

	clinical := middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleTriage, models.RoleAdmin)
	prescriber := middleware.RoleAuthMiddleware(models.RoleDoctor)
	reviewer := middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin)

	// Public routes (no authentication required)
	public := router.Group("/api")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}
	}

	// Authenticated routes
	private := router.Group("/api")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
		}

		private.POST("/patient", clinical, patientHandler.CreatePatient)
		private.GET("/patients", clinical, patientHandler.ListPatients)

		patientRoutes := private.Group("/patient")
		patientRoutes.Use(clinical)
		{
			// Static segments sit beside :id; lookups by note list and file id.
			patientRoutes.GET("/notes/:id", noteHandler.ListNotes)
			patientRoutes.GET("/files/:fileId", fileHandler.GetFile)

			patientRoutes.GET("/:id", patientHandler.GetPatient)
			patientRoutes.PATCH("/:id", patientHandler.UpdatePatient)

			patientRoutes.POST("/:id/notes/doctor-notes", noteHandler.CreateNote)
			patientRoutes.PATCH("/:id/notes/doctor-notes", noteHandler.UpdateNote)
			patientRoutes.DELETE("/:id/notes/doctor-notes", noteHandler.DeleteNote)

			patientRoutes.GET("/:id/medications", medicationHandler.ListPatientOrders)
			patientRoutes.POST("/:id/medications/med-order", prescriber, medicationHandler.CreateMedOrder)
			patientRoutes.POST("/:id/medications/rx-order", prescriber, medicationHandler.CreateRxOrder)

			patientRoutes.POST("/:id/messages", messageHandler.SendMessage)
			patientRoutes.GET("/:id/messages", messageHandler.ListMessages)

			patientRoutes.POST("/:id/files", fileHandler.UploadFile)
		}

		orderRoutes := private.Group("/med-orders")
		orderRoutes.Use(clinical)
		{
			orderRoutes.GET("", medicationHandler.BatchGetOrders)
			orderRoutes.PATCH("/:orderId/validation", reviewer, medicationHandler.SetOrderValidation)
		}

		private.PATCH("/messages/:messageId/read", clinical, messageHandler.MarkMessageAsRead)

		adminRoutes := private.Group("/admin")
		adminRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			adminRoutes.GET("/med-orders", medicationHandler.ListAllOrders)
			adminRoutes.GET("/signups", adminHandler.ListSignups)
			adminRoutes.PATCH("/users/:id/approval", adminHandler.SetApproval)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		utils.Success(c, "OK", gin.H{"status": "UP"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
}
