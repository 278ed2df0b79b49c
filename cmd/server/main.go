package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/mongo"
	_ "modernc.org/sqlite"

	"github.com/soaringjerry/intake/internal/api"
	"github.com/soaringjerry/intake/internal/config"
	dbstore "github.com/soaringjerry/intake/internal/db"
	"github.com/soaringjerry/intake/internal/middleware"
	"github.com/soaringjerry/intake/internal/notify"
	"github.com/soaringjerry/intake/internal/services"
	"github.com/soaringjerry/intake/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := cfg.ServerLog
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.SQLiteDriver, cfg.SQLitePath, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	store, err := dbstore.NewSQLiteStore(db, logger)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	warnOnOverlappingCycles(ctx, store, logger)

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.JWTIssuer)
	files, err := storage.NewLocalStore(cfg.StorageDir, cfg.PublicBaseURL, []byte(cfg.JWTSecret+":files"), cfg.UploadTTL, cfg.MaxUploadBytes, logger)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}

	var mongoClient *mongo.Client
	var notifier services.SubmissionNotifier = notify.LogNotifier{Logger: logger}
	if cfg.MessengerEndpoint != "" {
		var recorder notify.FailureRecorder
		if cfg.MongoURI != "" {
			mongoClient, err = notify.Connect(ctx, cfg.MongoURI, 10*time.Second)
			if err != nil {
				logger.Printf("failed notifications will not be recorded: %v", err)
			} else {
				coll := mongoClient.Database(cfg.MongoDatabase).Collection(cfg.FailedNotificationCollection)
				recorder = notify.NewMongoRecorder(coll)
			}
		}
		notifier = notify.NewMessengerNotifier(cfg.MessengerEndpoint, cfg.MessengerDestination, cfg.MessengerTimeout, recorder, logger)
	}

	router := api.NewRouter(api.Config{
		Store:          store,
		Auth:           auth,
		Storage:        files,
		Notifier:       notifier,
		Files:          files.Handler(),
		Logger:         logger,
		TokenTTL:       cfg.TokenTTL,
		ReviewerEmails: cfg.ReviewerEmails,
		AllowedOrigins: cfg.AllowedOrigins,
		Ping:           db.PingContext,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		logger.Printf("intake server listening on %s", cfg.Addr)
		errChan <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		logger.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Printf("mongo disconnect: %v", err)
		}
	}
}
