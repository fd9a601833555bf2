package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/easildur24/investorcenter.ai-sub015/configs"
	db2 "github.com/easildur24/investorcenter.ai-sub015/db"
	"github.com/easildur24/investorcenter.ai-sub015/internal/auth"
	"github.com/easildur24/investorcenter.ai-sub015/internal/objectstore"
	"github.com/easildur24/investorcenter.ai-sub015/internal/postgres"
	"github.com/easildur24/investorcenter.ai-sub015/internal/rabbitmq"
	"github.com/easildur24/investorcenter.ai-sub015/internal/server"

	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	cfg := configs.InitConfig()

	// Fail fast on a missing or weak signing secret
	if err := cfg.JWT.Validate(); err != nil {
		log.Fatal(err)
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	d, err := iofs.New(db2.Migrations, "migrations")
	if err != nil {
		log.Fatal(err)
		return
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, cfg.Database.ToMigrationUri())
	if err != nil {
		log.Fatal(err)
		return
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal(err)
		}
	}
	slog.Info("Migrations ran successfully")

	ctx := context.Background()

	storage, err := postgres.NewStorage(ctx, cfg.Database.ToDbConnectionUri())
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("Postgres connection has been initialized successfully")

	rabbitClient, err := rabbitmq.NewRabbitMQClient(ctx, cfg.RabbitMQ.ToRabbitConnectionUri(), []string{cfg.RabbitMQ.EventsQueueName})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		err = rabbitClient.Close()
		if err != nil {
			slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
		}
	}()
	slog.Info("RabbitMQ has been initialized successfully")

	var objectStore server.ObjectStore
	if cfg.ObjectStore.Bucket != "" {
		s3Client, err := objectstore.NewClient(ctx, cfg.ObjectStore)
		if err != nil {
			slog.Error("Object store initialization failed, file downloads disabled", "error", err.Error())
		} else {
			objectStore = s3Client
			slog.Info("Object store has been initialized successfully")
		}
	}

	authManager := auth.NewManager(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	serverLogic := server.NewServerLogic(storage, rabbitClient, objectStore, authManager, cfg.RabbitMQ.EventsQueueName)

	router := server.SetupHTTPServer(serverLogic, authManager, storage, rabbitClient)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		log.Printf("Starting server on port %s\n", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerTimeOutInSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
