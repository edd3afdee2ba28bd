package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"sealbox/internal/api"
	"sealbox/internal/envelope"
	"sealbox/internal/ledger"
	"sealbox/internal/middleware"
	"sealbox/internal/models"
	"sealbox/internal/utils"
)

// SendMessageRequest represents a request to send a sealed message
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// MarkReadRequest represents a request to mark a received message as read
type MarkReadRequest struct {
	MessageID uint64 `json:"messageId"`
}

// messageResponse builds the view of one message for a caller. The plaintext
// is included only when the sealer holds a grant for (token, caller); everyone
// else sees the metadata with no content.
func (s *Server) messageResponse(message *models.Message, callerID uuid.UUID) api.MessageResponse {
	resp := api.MessageResponse{
		ID:         message.ID,
		SenderID:   message.SenderID.String(),
		ReceiverID: message.ReceiverID.String(),
		CreatedAt:  message.CreatedAt,
		IsRead:     message.IsRead,
	}
	if opener, ok := s.Sealer.(envelope.Opener); ok {
		if plaintext, err := opener.Open(message.Content, callerID); err == nil {
			resp.Content = string(plaintext)
		}
	}
	return resp
}

// fetchMessageViews resolves an ordered id sequence into message views.
func (s *Server) fetchMessageViews(ids []uint64, callerID uuid.UUID) ([]api.MessageResponse, error) {
	views := make([]api.MessageResponse, 0, len(ids))
	for _, id := range ids {
		result, err := s.askLedger(&ledger.GetMessageMsg{MessageID: id})
		if err != nil {
			return nil, err
		}
		message, ok := result.(*models.Message)
		if !ok {
			// Indexed ids always resolve; anything else is a ledger bug.
			return nil, fmt.Errorf("message %d missing from ledger", id)
		}
		views = append(views, s.messageResponse(message, callerID))
	}
	return views, nil
}

// HandleMessage handles sending a message (POST) and fetching a single
// message view (GET ?messageId=).
func (s *Server) HandleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req SendMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request", http.StatusBadRequest)
				return
			}

			receiverID, err := uuid.Parse(req.ReceiverID)
			if err != nil {
				http.Error(w, "Invalid receiver ID format", http.StatusBadRequest)
				return
			}

			result, err := s.askLedger(&ledger.SendMessageMsg{
				SenderID:   callerID,
				ReceiverID: receiverID,
				Content:    []byte(req.Content),
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Failed to send message: %v", err), http.StatusInternalServerError)
				return
			}

			if appErr, ok := result.(*utils.AppError); ok {
				s.writeAppError(w, appErr)
				return
			}
			message, ok := result.(*models.Message)
			if !ok {
				http.Error(w, "Invalid response type", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, s.messageResponse(message, callerID))

		case http.MethodGet:
			messageIDStr := r.URL.Query().Get("messageId")
			if messageIDStr == "" {
				http.Error(w, "Message ID required", http.StatusBadRequest)
				return
			}
			messageID, err := strconv.ParseUint(messageIDStr, 10, 64)
			if err != nil {
				http.Error(w, "Invalid message ID format", http.StatusBadRequest)
				return
			}

			result, err := s.askLedger(&ledger.GetMessageMsg{MessageID: messageID})
			if err != nil {
				http.Error(w, "Failed to get message", http.StatusInternalServerError)
				return
			}

			if appErr, ok := result.(*utils.AppError); ok {
				s.writeAppError(w, appErr)
				return
			}
			message, ok := result.(*models.Message)
			if !ok {
				http.Error(w, "Invalid response type", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, s.messageResponse(message, callerID))

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleInbox returns the caller's received messages in arrival order
func (s *Server) HandleInbox() http.HandlerFunc {
	return s.handleMessageList(func(callerID uuid.UUID) interface{} {
		return &ledger.GetInboxMsg{UserID: callerID}
	})
}

// HandleSent returns the caller's sent messages in send order
func (s *Server) HandleSent() http.HandlerFunc {
	return s.handleMessageList(func(callerID uuid.UUID) interface{} {
		return &ledger.GetSentMsg{UserID: callerID}
	})
}

func (s *Server) handleMessageList(query func(callerID uuid.UUID) interface{}) http.HandlerFunc {
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

		result, err := s.askLedger(query(callerID))
		if err != nil {
			http.Error(w, "Failed to get messages", http.StatusInternalServerError)
			return
		}
		ids, ok := result.([]uint64)
		if !ok {
			http.Error(w, "Invalid response type", http.StatusInternalServerError)
			return
		}

		views, err := s.fetchMessageViews(ids, callerID)
		if err != nil {
			http.Error(w, "Failed to resolve messages", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, api.MessageListResponse{
			MessageIDs: ids,
			Messages:   views,
		})
	}
}

// HandleMarkRead marks one of the caller's received messages as read
func (s *Server) HandleMarkRead() http.HandlerFunc {
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

		var req MarkReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		result, err := s.askLedger(&ledger.MarkMessageReadMsg{
			CallerID:  callerID,
			MessageID: req.MessageID,
		})
		if err != nil {
			http.Error(w, "Failed to mark message read", http.StatusInternalServerError)
			return
		}

		if appErr, ok := result.(*utils.AppError); ok {
			s.writeAppError(w, appErr)
			return
		}
		message, ok := result.(*models.Message)
		if !ok {
			http.Error(w, "Invalid response type", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, s.messageResponse(message, callerID))
	}
}

// HandleUnreadCount returns how many of the caller's received messages are
// still unread
func (s *Server) HandleUnreadCount() http.HandlerFunc {
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

		result, err := s.askLedger(&ledger.GetUnreadCountMsg{UserID: callerID})
		if err != nil {
			http.Error(w, "Failed to get unread count", http.StatusInternalServerError)
			return
		}
		count, ok := result.(int)
		if !ok {
			http.Error(w, "Invalid response type", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"unreadCount": count})
	}
}
