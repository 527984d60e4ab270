// krabbel/main.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"krabbel/config"
	"krabbel/database"
	"krabbel/database/gormstore"
	"krabbel/handlers"
	"krabbel/models"
	"krabbel/utils"
)

type Application struct {
	state       *models.AppState
	logger      *slog.Logger
	adminAuthor string
	sessionTTL  time.Duration
}

// Methods to satisfy the handlers.App interface
func (a *Application) State() *models.AppState   { return a.state }
func (a *Application) Logger() *slog.Logger      { return a.logger }
func (a *Application) AdminAuthor() string       { return a.adminAuthor }
func (a *Application) SessionTTL() time.Duration { return a.sessionTTL }

// adminSeeder is implemented by both backends.
type adminSeeder interface {
	SeedAdmin(ctx context.Context, email, passwordHash, displayName string) error
}

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	settings, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: settings.Level()}))
	slog.SetDefault(logger)

	saltBytes := make([]byte, 32)
	if _, err := rand.Read(saltBytes); err != nil {
		logger.Error("Failed to generate IP salt", "error", err)
		os.Exit(1)
	}
	utils.IPSalt = hex.EncodeToString(saltBytes)

	if err := os.MkdirAll(settings.BackupDir, 0755); err != nil {
		logger.Error("FATAL: Could not create backup directory", "path", settings.BackupDir, "error", err)
		os.Exit(1)
	}

	// --- Storage Service Init ---
	var s3Store *utils.S3Storage
	if settings.S3.Enabled {
		s3 := settings.S3
		s3Store, err = utils.NewS3Storage(context.Background(), s3.Endpoint, s3.AccessKey, s3.SecretKey, s3.Bucket, s3.Region, s3.PublicURL, s3.UseSSL)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		logger.Info("S3 backup storage initialized", "endpoint", s3.Endpoint, "bucket", s3.Bucket)
	}

	// --- Backend Init ---
	var (
		backend models.Backend
		closer  io.Closer
	)
	switch settings.Backend {
	case "postgres":
		store, err := gormstore.NewPostgres(settings.PostgresDSN, logger)
		if err != nil {
			logger.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		store.SessionTTL = settings.SessionTTL
		store.Keep = settings.BackupKeep
		if s3Store != nil {
			store.Storage = s3Store
		} else {
			store.Storage = &utils.LocalStorage{Dir: settings.BackupDir}
		}
		backend, closer = store, store
		logger.Info("Using postgres backend")
	default:
		dbService, err := database.InitDB(settings.SQLitePath, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		dbService.SessionTTL = settings.SessionTTL
		dbService.BackupDir = settings.BackupDir
		dbService.Keep = settings.BackupKeep
		if s3Store != nil {
			dbService.Storage = s3Store
		}
		backend, closer = dbService, dbService
		logger.Info("Using sqlite backend", "path", settings.SQLitePath)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	seedAdmin(backend, settings, logger)

	state := models.NewAppState(backend, logger)
	state.SetBackupInterval(settings.BackupEvery)
	state.Refresh(context.Background())

	if err := handlers.LoadTemplates(); err != nil {
		logger.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	app := &Application{
		state:       state,
		logger:      logger,
		adminAuthor: settings.AdminAuthor,
		sessionTTL:  settings.SessionTTL,
	}

	finalHandler := handlers.NewHandler(app)

	// --- Graceful Shutdown ---
	server := &http.Server{Addr: ":" + settings.Port, Handler: finalHandler}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("krabbel server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+settings.Port,
		"backend", settings.Backend,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}
	logger.Info("Server exiting")
}

// seedAdmin creates the configured admin account. A missing email only
// disables the dashboard.
func seedAdmin(backend models.Backend, settings *config.Settings, logger *slog.Logger) {
	seeder, ok := backend.(adminSeeder)
	if !ok {
		return
	}
	if settings.AdminEmail == "" {
		logger.Warn("KRABBEL_ADMIN_EMAIL not set; no admin account seeded")
		return
	}

	hash := settings.AdminPasswordHash
	if hash == "" {
		if settings.AdminPassword == "" {
			logger.Warn("No admin password configured; no admin account seeded", "email", settings.AdminEmail)
			return
		}
		var err error
		hash, err = utils.HashPassword(settings.AdminPassword)
		if err != nil {
			logger.Error("Failed to hash admin password", "error", err)
			os.Exit(1)
		}
	}

	if err := seeder.SeedAdmin(context.Background(), settings.AdminEmail, hash, settings.AdminAuthor); err != nil {
		logger.Error("Failed to seed admin account", "error", err)
		os.Exit(1)
	}
	logger.Info("Admin account ready", "email", settings.AdminEmail)
}
