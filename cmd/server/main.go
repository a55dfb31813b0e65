// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/unoroom/unoroom/internal/auth"
	"github.com/unoroom/unoroom/internal/cache"
	"github.com/unoroom/unoroom/internal/handlers"
	"github.com/unoroom/unoroom/internal/middleware"
)

func main() {
	// Signing keys: from file when provided, ephemeral otherwise.
	privPath := os.Getenv("JWT_PRIVATE_KEY_PATH")
	pubPath := os.Getenv("JWT_PUBLIC_KEY_PATH")
	if privPath != "" && pubPath != "" {
		if err := auth.InitFromPath(privPath, pubPath); err != nil {
			log.Fatalf("failed to load signing keys: %v", err)
		}
	} else {
		auth.Init()
	}

	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	// The action log is best-effort: without Redis the game still runs, it
	// just leaves no trail for the historian worker.
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, action log disabled: %v", err)
		cache.Rdb = nil
	}

	srv := handlers.NewGameServer()

	mux := http.NewServeMux()

	// session endpoint
	mux.Handle("/session", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.SessionHandler,
	)))

	// room endpoints
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/room/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))
	mux.Handle("/room/resolve", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ResolveRoomCodeHandler(srv),
	)))
	mux.Handle("/room/qr", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomQRHandler(srv),
	)))

	// room ws
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, srv),
	)))

	// game ws
	mux.Handle("/game/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GameWSHandler(logger, srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
