package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"sealbox/internal/api"
	"sealbox/internal/ledger"
	"sealbox/internal/middleware"
	"sealbox/internal/utils"
)

// PauseRequest represents a request to toggle the send pause switch
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// HandlePause toggles the process-wide pause switch. The ledger rejects
// callers other than the configured owner.
func (s *Server) HandlePause() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		callerID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req PauseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		result, err := s.askLedger(&ledger.SetPausedMsg{
			CallerID: callerID,
			Paused:   req.Paused,
		})
		if err != nil {
			http.Error(w, "Failed to toggle pause switch", http.StatusInternalServerError)
			return
		}

		if appErr, ok := result.(*utils.AppError); ok {
			s.writeAppError(w, appErr)
			return
		}

		writeJSON(w, http.StatusOK, api.StatusResponse{Success: true})
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Only allow GET requests
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		result, err := s.askLedger(&ledger.GetCountsMsg{})
		if err != nil {
			http.Error(w, "Failed to get ledger counts", http.StatusInternalServerError)
			return
		}
		counts, ok := result.(*ledger.LedgerCounts)
		if !ok {
			http.Error(w, "Invalid response type", http.StatusInternalServerError)
			return
		}

		requests, errors, latencies := s.Metrics.Snapshot()

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "healthy",
			"user_count":      counts.Users,
			"message_count":   counts.Messages,
			"paused":          counts.Paused,
			"uptime_seconds":  int64(s.Metrics.Uptime().Seconds()),
			"request_count":   requests,
			"error_count":     errors,
			"mean_latency_ms": latencies,
			"server_time":     time.Now(),
		})
	}
}
