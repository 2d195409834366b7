package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"stg-database/auth"
	"stg-database/internal/attachment"
	"stg-database/internal/config"
	"stg-database/internal/experiment"
	"stg-database/internal/export"
	"stg-database/internal/middleware"
	"stg-database/internal/session"
	"stg-database/internal/user"
	"stg-database/internal/worker"
	"stg-database/redis"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Initialize Redis (token allow-list + session selections)
	redis.InitRedis()

	// Initialize repositories
	userRepo, err := user.NewFileRepository(config.AppConfig.DataDir)
	if err != nil {
		log.Fatalf("Failed to open user store: %v", err)
	}
	expRepo, err := experiment.NewFileRepository(config.AppConfig.DataDir)
	if err != nil {
		log.Fatalf("Failed to open experiment store: %v", err)
	}
	fileDir, err := attachment.NewDirectory(config.AppConfig.FilePath)
	if err != nil {
		log.Fatalf("Failed to open attachment root: %v", err)
	}

	// Initialize services
	attachService := attachment.NewService(fileDir, expRepo,
		config.AppConfig.MaxFiles, config.AppConfig.MaxFilesizeMB,
		config.AppConfig.NotesMaxBytes, config.AppConfig.AllowedFiletypes)
	expService := experiment.NewService(expRepo, attachService, config.AppConfig.MaxUserExperiments)
	userService := user.NewService(userRepo, config.AppConfig.MaxUsers)
	sessions := session.NewRedisStore(redis.RedisClient, config.AppConfig.SessionTTL)

	// Background pool: ZIP scratch cleanup and the startup reconcile sweep
	pool := worker.NewWorkerPool(4)
	defer pool.Shutdown()

	keys := make([]string, 0)
	for _, e := range expRepo.List() {
		keys = append(keys, e.Key())
	}
	if err := pool.Submit(attachment.ReconcileAll(attachService, keys)); err != nil {
		log.Printf("[WARN] could not queue file-count reconcile: %v", err)
	}

	// Initialize handlers
	userHandler := user.NewHandler(userService, expRepo, sessions)
	expHandler := experiment.NewHandler(expService, attachService, sessions)
	fileHandler := attachment.NewHandler(attachService, expRepo, sessions, pool)
	exportHandler := export.NewHandler(expRepo)

	// Initialize Gin router
	router := gin.Default()

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{"https://stg-database.org"}
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.ErrorHandler())

	// Feature toggles
	registrationOpen := middleware.RequireFeature("registration", func() bool { return config.AppConfig.NewUsersAllowed })
	uploadsOpen := middleware.RequireFeature("uploads", func() bool { return config.AppConfig.UploadsAllowed })
	downloadsOpen := middleware.RequireFeature("downloads", func() bool { return config.AppConfig.DownloadsAllowed })
	editsOpen := middleware.RequireFeature("edits", func() bool { return config.AppConfig.EditsAllowed })
	uploaderOnly := middleware.RequireUploadsEnabled(userService)

	// User routes
	router.POST("/register", registrationOpen, userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.DELETE("/logout", auth.AuthMiddleWare(), userHandler.Logout)
	router.GET("/profile", auth.AuthMiddleWare(), userHandler.GetProfile)
	router.PUT("/profile", auth.AuthMiddleWare(), userHandler.UpdateProfile)
	router.PUT("/profile/password", auth.AuthMiddleWare(), userHandler.ChangePassword)

	// Experiment routes
	router.POST("/experiments", auth.AuthMiddleWare(), uploadsOpen, uploaderOnly, expHandler.Create)
	router.GET("/experiments", auth.AuthMiddleWare(), expHandler.List)
	router.GET("/experiments/:key", auth.AuthMiddleWare(), expHandler.Show)
	router.PUT("/experiments/:key", auth.AuthMiddleWare(), editsOpen, expHandler.UpdateMetadata)
	router.PUT("/experiments/:key/tags", auth.AuthMiddleWare(), editsOpen, expHandler.UpdateTags)
	router.DELETE("/experiments/:key", auth.AuthMiddleWare(), editsOpen, uploaderOnly, expHandler.Delete)

	// Condition routes
	router.POST("/experiments/:key/conditions", auth.AuthMiddleWare(), editsOpen, expHandler.AddCondition)
	router.GET("/experiments/:key/conditions/:index", auth.AuthMiddleWare(), expHandler.ShowCondition)
	router.PUT("/experiments/:key/conditions/:index", auth.AuthMiddleWare(), editsOpen, expHandler.UpdateCondition)
	router.DELETE("/experiments/:key/conditions/:index", auth.AuthMiddleWare(), editsOpen, expHandler.DeleteCondition)

	// File routes operate on the session-selected experiment
	router.GET("/files", auth.AuthMiddleWare(), fileHandler.ListFiles)
	router.POST("/files", auth.AuthMiddleWare(), uploadsOpen, uploaderOnly, fileHandler.Upload)
	router.DELETE("/files/:filename", auth.AuthMiddleWare(), editsOpen, uploaderOnly, fileHandler.DeleteFile)
	router.GET("/files/download", auth.AuthMiddleWare(), downloadsOpen, fileHandler.Download)
	router.GET("/notes", auth.AuthMiddleWare(), fileHandler.GetNotes)
	router.PUT("/notes", auth.AuthMiddleWare(), editsOpen, fileHandler.PutNotes)

	// Export routes
	router.GET("/export/metadata.csv", auth.AuthMiddleWare(), downloadsOpen, exportHandler.MetadataCSV)
	router.GET("/export/metadata.json", auth.AuthMiddleWare(), downloadsOpen, exportHandler.MetadataJSON)
	router.GET("/export/metadata.html", auth.AuthMiddleWare(), exportHandler.MetadataHTML)
	router.GET("/export/procdata.csv", auth.AuthMiddleWare(), downloadsOpen, exportHandler.ProcDataCSV)
	router.GET("/export/procdata.json", auth.AuthMiddleWare(), downloadsOpen, exportHandler.ProcDataJSON)
	router.GET("/export/procdata.html", auth.AuthMiddleWare(), exportHandler.ProcDataHTML)
	router.GET("/export/readme", exportHandler.Readme)

	// Admin routes
	admin := router.Group("/admin", auth.AuthMiddleWare(), middleware.RequireAdmin())
	admin.GET("/users", userHandler.ListUsers)
	admin.PUT("/users/:username", userHandler.AdminUpdateProfile)
	admin.DELETE("/users/:username", userHandler.AdminDelete)
	admin.POST("/users/:username/reset-password", userHandler.AdminResetPassword)
	admin.PUT("/users/:username/uploads", userHandler.AdminSetUploads)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	<-ctx.Done()
	log.Println("Server shutdown complete")
}
