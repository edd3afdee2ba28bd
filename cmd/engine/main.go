package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"sealbox/internal/config"
	"sealbox/internal/database"
	"sealbox/internal/envelope"
	"sealbox/internal/events"
	"sealbox/internal/handlers"
	"sealbox/internal/ledger"
	"sealbox/internal/middleware"
	"sealbox/internal/utils"
	"sealbox/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	metrics := utils.NewMetricsCollector()

	// Durable store, selected by DB_TYPE. Empty type runs the ledger purely
	// in memory.
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if store != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(ctx); err != nil {
				log.Printf("Warning: failed to close store: %v", err)
			}
		}()
	}

	sealer, err := buildSealer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize sealer: %v", err)
	}

	// WebSocket hub for event push
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize actor system and spawn the ledger
	system := actor.NewActorSystem()
	eng, err := ledger.NewEngine(system, ledger.Config{
		OwnerID: cfg.OwnerID,
		Sealer:  sealer,
		Sink:    events.NewHubSink(hub),
		Store:   store,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("Failed to start ledger engine: %v", err)
	}

	server := handlers.NewServer(system, system.Root, eng, metrics, store, sealer, hub)

	mux := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"/health":               server.HandleHealth(),
		"/user/register":        server.HandleUserRegistration(),
		"/user/login":           server.HandleUserLogin(),
		"/user/profile":         server.HandleUserProfile(),
		"/user/block":           server.HandleBlockUser(),
		"/user/unblock":         server.HandleUnblockUser(),
		"/user/blocked":         server.HandleBlockStatus(),
		"/message":              server.HandleMessage(),
		"/message/inbox":        server.HandleInbox(),
		"/message/sent":         server.HandleSent(),
		"/message/read":         server.HandleMarkRead(),
		"/message/unread/count": server.HandleUnreadCount(),
		"/admin/pause":          server.HandlePause(),
	}
	for path, handler := range routes {
		mux.HandleFunc(path, middleware.ApplyJWTMiddleware(server.Instrument(handler), path))
	}
	// WebSocket authenticates via its token query parameter instead of the
	// Authorization header.
	mux.HandleFunc("/ws", server.Instrument(server.HandleWebSocket()))

	corsHandler := middleware.CORSMiddleware(middleware.DefaultCORSConfig(cfg.AllowedOrigins))(mux)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting sealbox server on %s", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// openStore connects the configured durable backend.
func openStore(cfg *config.Config) (database.Store, error) {
	switch cfg.Database.Type {
	case "mongodb":
		log.Println("Using MongoDB store")
		db, err := database.NewMongoDB(cfg.Database.URI)
		if err != nil {
			return nil, err
		}
		return db, nil

	case "postgres":
		log.Println("Using PostgreSQL store")
		db, err := database.NewPostgresDB(cfg.Database.URI)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.InitializeTables(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize tables: %w", err)
		}
		return db, nil

	default:
		log.Println("No durable store configured, running in memory")
		return nil, nil
	}
}

// buildSealer returns the configured secretbox sealer. Without SEALER_KEY an
// ephemeral key is generated, so sealed content does not survive a restart.
func buildSealer(cfg *config.Config) (envelope.Sealer, error) {
	if len(cfg.SealerKey) > 0 {
		return envelope.NewSecretboxSealer(cfg.SealerKey)
	}
	log.Println("SEALER_KEY not set, using an ephemeral sealing key")
	return envelope.NewEphemeralSealer(), nil
}
