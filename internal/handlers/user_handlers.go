package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sealbox/internal/api"
	"sealbox/internal/ledger"
	"sealbox/internal/middleware"
	"sealbox/internal/models"
	"sealbox/internal/utils"
)

// RegisterUserRequest represents a request to register a new account
type RegisterUserRequest struct {
	PublicName string `json:"publicName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// LoginRequest represents a request to log in a user
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func profileResponse(user *models.UserProfile) api.UserProfileResponse {
	return api.UserProfileResponse{
		ID:               user.ID.String(),
		PublicName:       user.PublicName,
		Email:            user.Email,
		IsRegistered:     user.IsRegistered,
		MessagesSent:     user.MessagesSent,
		MessagesReceived: user.MessagesReceived,
		CreatedAt:        user.CreatedAt,
		LastActive:       user.LastActive,
	}
}

// HandleUserRegistration handles requests to register a new account
func (s *Server) HandleUserRegistration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req RegisterUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			http.Error(w, "Email and password are required", http.StatusBadRequest)
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "Failed to process password", http.StatusInternalServerError)
			return
		}

		result, err := s.askLedger(&ledger.RegisterUserMsg{
			UserID:         uuid.New(),
			PublicName:     req.PublicName,
			Email:          req.Email,
			HashedPassword: string(hashed),
		})
		if err != nil {
			http.Error(w, "Failed to register user", http.StatusInternalServerError)
			return
		}

		if appErr, ok := result.(*utils.AppError); ok {
			s.writeAppError(w, appErr)
			return
		}
		user, ok := result.(*models.UserProfile)
		if !ok {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, profileResponse(user))
	}
}

// HandleUserLogin handles requests to log in a user
func (s *Server) HandleUserLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		log.Printf("HTTP Handler: Received login request for email: %s", req.Email)

		result, err := s.askLedger(&ledger.GetUserByEmailMsg{Email: req.Email})
		if err != nil {
			log.Printf("HTTP Handler: Error getting login result: %v", err)
			http.Error(w, "Failed to process login", http.StatusInternalServerError)
			return
		}

		user, ok := result.(*models.UserProfile)
		if !ok {
			// Same response for unknown email and wrong password.
			writeJSON(w, http.StatusUnauthorized, api.LoginResponse{
				Success: false,
				Error:   "Invalid email or password",
			})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
			writeJSON(w, http.StatusUnauthorized, api.LoginResponse{
				Success: false,
				Error:   "Invalid email or password",
			})
			return
		}

		token, err := middleware.GenerateToken(user.ID)
		if err != nil {
			log.Printf("HTTP Handler: Failed to generate token: %v", err)
			http.Error(w, "Failed to generate auth token", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, api.LoginResponse{
			Success: true,
			Token:   token,
			UserID:  user.ID.String(),
		})
	}
}

// HandleUserProfile handles requests to get a user's profile
func (s *Server) HandleUserProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userIDStr := r.URL.Query().Get("userId")
		if userIDStr == "" {
			// Default to the authenticated caller's own profile.
			if callerID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
				userIDStr = callerID.String()
			}
		}
		if userIDStr == "" {
			http.Error(w, "User ID required", http.StatusBadRequest)
			return
		}

		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			http.Error(w, "Invalid user ID format", http.StatusBadRequest)
			return
		}

		result, err := s.askLedger(&ledger.GetUserProfileMsg{UserID: userID})
		if err != nil {
			http.Error(w, "Failed to get user profile", http.StatusInternalServerError)
			return
		}

		if appErr, ok := result.(*utils.AppError); ok {
			s.writeAppError(w, appErr)
			return
		}
		user, ok := result.(*models.UserProfile)
		if !ok {
			http.Error(w, "Invalid response type", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, profileResponse(user))
	}
}
