package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"sealbox/internal/middleware"
	"sealbox/internal/websocket"
)

// Every authentication failure on the WebSocket endpoint is the caller's
// fault and must come back as 401.
func TestHandleWebSocketRejectsBadTokens(t *testing.T) {
	server := &Server{Hub: websocket.NewHub()}
	handler := server.HandleWebSocket()

	req := httptest.NewRequest("GET", "/ws", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/ws?token=not-a-jwt", nil)
	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A well-signed token carrying a nil user ID is rejected the same way.
	token, err := middleware.GenerateToken(uuid.Nil)
	assert.NoError(t, err)
	req = httptest.NewRequest("GET", "/ws?token="+token, nil)
	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
