package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"sealbox/internal/database"
	"sealbox/internal/envelope"
	"sealbox/internal/ledger"
	"sealbox/internal/utils"
	"sealbox/internal/websocket"
)

// Server holds all server dependencies, including the actor system and the
// ledger engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *ledger.Engine
	LedgerPID      *actor.PID
	Metrics        *utils.MetricsCollector
	Store          database.Store
	Sealer         envelope.Sealer
	Hub            *websocket.Hub
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	context *actor.RootContext,
	engine *ledger.Engine,
	metrics *utils.MetricsCollector,
	store database.Store,
	sealer envelope.Sealer,
	hub *websocket.Hub,
) *Server {
	return &Server{
		System:         system,
		Context:        context,
		Engine:         engine,
		LedgerPID:      engine.LedgerPID(),
		Metrics:        metrics,
		Store:          store,
		Sealer:         sealer,
		Hub:            hub,
		RequestTimeout: 5 * time.Second, // Default timeout for actor requests
	}
}

// Instrument counts a handled request before passing it on to the handler.
func (s *Server) Instrument(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Metrics.IncrementRequests()
		handler(w, r)
	}
}

// askLedger sends a message to the ledger actor and waits for the response.
func (s *Server) askLedger(msg interface{}) (interface{}, error) {
	future := s.Context.RequestFuture(s.LedgerPID, msg, s.RequestTimeout)
	return future.Result()
}

// writeJSON encodes a response body with the standard headers.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("HTTP Handler: Failed to encode response: %v", err)
	}
}

// writeAppError maps a ledger AppError onto the HTTP status taxonomy and
// writes it as a JSON error body.
func (s *Server) writeAppError(w http.ResponseWriter, appErr *utils.AppError) {
	s.Metrics.IncrementErrors()
	writeJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), map[string]string{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}
