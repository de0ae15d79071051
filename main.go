package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"patient-records-server/internal/config"
	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/middleware"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/repository/memory"
	"patient-records-server/internal/routes"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "patient-records-server",
		Short:         "Patient records and care coordination API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(medOrdersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		inMemory      bool
		adminEmail    string
		adminPassword string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			log := logger.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, cleanup, err := buildDependencies(ctx, cfg, log, inMemory)
			if err != nil {
				return err
			}
			defer cleanup()

			if adminEmail != "" {
				if err := ensureAdmin(ctx, deps.Users, adminEmail, adminPassword); err != nil {
					return err
				}
			}

			return runServer(ctx, cfg, log, deps)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep all data in process memory instead of MySQL and MongoDB")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "create this admin account on startup if it does not exist")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for --admin-email")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the relational tables and the document store indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			log := logger.New(cfg.LogLevel)

			db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("error connecting to database: %w", err)
			}
			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("error migrating database: %w", err)
			}

			ctx := cmd.Context()
			client, mdb, err := repository.ConnectMongo(ctx, cfg.Mongo)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())
			if err := repository.EnsureIndexes(ctx, mdb); err != nil {
				return err
			}

			log.WithComponent("migrate").Info("Migrations applied")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("error connecting to database: %w", err)
			}
			return ensureAdmin(cmd.Context(), repository.NewGormUserRepository(db), email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func ensureAdmin(ctx context.Context, users repository.UserRepository, email, password string) error {
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if len(password) < 8 {
		return errors.New("admin password must be at least 8 characters")
	}

	admin := models.User{Email: email, FirstName: "Admin", AccountType: models.RoleAdmin}
	if err := admin.SetPassword(password); err != nil {
		return err
	}
	return users.Create(ctx, &admin)
}

// buildDependencies opens the stores. The returned cleanup closes every
// connection that was opened.
func buildDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger, inMemory bool) (routes.Dependencies, func(), error) {
	deps := routes.Dependencies{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}

	if inMemory {
		log.WithComponent("bootstrap").Warn("Running with in-memory stores; data is lost on exit")
		deps.Users = memory.NewUserStore()
		deps.Tokens = memory.NewTokenStore()
		deps.Messages = memory.NewMessageStore()
		deps.Files = memory.NewFileStore()
		deps.Patients = memory.NewPatientStore()
		deps.MedOrders = memory.NewMedOrderStore()
		return deps, func() {}, nil
	}

	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		return deps, nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return deps, nil, fmt.Errorf("error migrating database: %w", err)
	}

	client, mdb, err := repository.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		closeSQL(db)
		return deps, nil, err
	}
	if err := repository.EnsureIndexes(ctx, mdb); err != nil {
		closeAll(db, client)
		return deps, nil, err
	}

	deps.Users = repository.NewGormUserRepository(db)
	deps.Tokens = repository.NewGormTokenRepository(db)
	deps.Messages = repository.NewGormMessageRepository(db)
	deps.Files = repository.NewGormFileRepository(db)
	deps.Patients = repository.NewMongoPatientRepository(mdb)
	deps.MedOrders = repository.NewMongoMedOrderRepository(mdb)

	return deps, func() { closeAll(db, client) }, nil
}

func closeSQL(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func closeAll(db *gorm.DB, client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = client.Disconnect(ctx)
	closeSQL(db)
}

func runServer(ctx context.Context, cfg *config.Config, log *logger.Logger, deps routes.Dependencies) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Metrics(deps.Metrics))

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			return fmt.Errorf("error initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		router.Use(middleware.ErrorReporter(sentry.CurrentHub()))
	}

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-Match", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("server").WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
		}).Info("Server running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.WithComponent("server").Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
