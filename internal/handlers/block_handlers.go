package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"sealbox/internal/api"
	"sealbox/internal/ledger"
	"sealbox/internal/middleware"
	"sealbox/internal/utils"
)

// BlockRequest represents a request to block or unblock another account
type BlockRequest struct {
	TargetID string `json:"targetId"`
}

// HandleBlockUser adds a directed block pair from the caller to the target
func (s *Server) HandleBlockUser() http.HandlerFunc {
	return s.handleBlockChange(func(callerID, targetID uuid.UUID) interface{} {
		return &ledger.BlockUserMsg{BlockerID: callerID, TargetID: targetID}
	})
}

// HandleUnblockUser clears a directed block pair from the caller to the target
func (s *Server) HandleUnblockUser() http.HandlerFunc {
	return s.handleBlockChange(func(callerID, targetID uuid.UUID) interface{} {
		return &ledger.UnblockUserMsg{BlockerID: callerID, TargetID: targetID}
	})
}

func (s *Server) handleBlockChange(build func(callerID, targetID uuid.UUID) interface{}) http.HandlerFunc {
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

		var req BlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		targetID, err := uuid.Parse(req.TargetID)
		if err != nil {
			http.Error(w, "Invalid target ID format", http.StatusBadRequest)
			return
		}

		result, err := s.askLedger(build(callerID, targetID))
		if err != nil {
			http.Error(w, "Failed to update block relation", http.StatusInternalServerError)
			return
		}

		if appErr, ok := result.(*utils.AppError); ok {
			s.writeAppError(w, appErr)
			return
		}

		writeJSON(w, http.StatusOK, api.StatusResponse{Success: true})
	}
}

// HandleBlockStatus reports whether the caller has blocked the target
func (s *Server) HandleBlockStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		callerID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		targetIDStr := r.URL.Query().Get("targetId")
		if targetIDStr == "" {
			http.Error(w, "Target ID required", http.StatusBadRequest)
			return
		}
		targetID, err := uuid.Parse(targetIDStr)
		if err != nil {
			http.Error(w, "Invalid target ID format", http.StatusBadRequest)
			return
		}

		result, err := s.askLedger(&ledger.IsBlockedMsg{BlockerID: callerID, BlockedID: targetID})
		if err != nil {
			http.Error(w, "Failed to get block status", http.StatusInternalServerError)
			return
		}
		blocked, ok := result.(bool)
		if !ok {
			http.Error(w, "Invalid response type", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, api.BlockStatusResponse{
			BlockerID: callerID.String(),
			BlockedID: targetID.String(),
			Blocked:   blocked,
		})
	}
}
