package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mbeckers/relaychat/internal/auth"
	"github.com/mbeckers/relaychat/internal/config"
	"github.com/mbeckers/relaychat/internal/server"
	"github.com/mbeckers/relaychat/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.FromEnv()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	ctx := context.Background()

	client, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Printf("MongoDB disconnect error: %v", err)
		}
	}()

	db := client.Database(cfg.MongoDatabase)
	users := store.NewUserRepository(db)
	messages := store.NewMessageRepository(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to create user indexes: %v", err)
	}
	if err := messages.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to create message indexes: %v", err)
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)

	srv := server.New(cfg, users, messages, tokens)
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down...", sig)
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := srv.Hub().Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
}
