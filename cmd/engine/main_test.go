package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"sealbox/internal/envelope"
	"sealbox/internal/handlers"
	"sealbox/internal/ledger"
	"sealbox/internal/middleware"
	"sealbox/internal/utils"
	"sealbox/internal/websocket"
)

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestIntegrationFlow(t *testing.T) {
	ownerID := uuid.New()

	metrics := utils.NewMetricsCollector()
	system := actor.NewActorSystem()
	sealer := envelope.NewEphemeralSealer()
	eng, err := ledger.NewEngine(system, ledger.Config{
		OwnerID: ownerID,
		Sealer:  sealer,
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("Failed to start ledger engine: %v", err)
	}
	hub := websocket.NewHub()
	go hub.Run()
	server := handlers.NewServer(system, system.Root, eng, metrics, nil, sealer, hub)

	// Protected handlers go through the JWT middleware and the request
	// counter like in main.
	registerHandler := server.Instrument(server.HandleUserRegistration())
	loginHandler := server.Instrument(server.HandleUserLogin())
	messageHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleMessage()), "/message")
	inboxHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleInbox()), "/message/inbox")
	sentHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleSent()), "/message/sent")
	readHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleMarkRead()), "/message/read")
	unreadHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleUnreadCount()), "/message/unread/count")
	blockHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleBlockUser()), "/user/block")
	unblockHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandleUnblockUser()), "/user/unblock")
	pauseHandler := middleware.ApplyJWTMiddleware(server.Instrument(server.HandlePause()), "/admin/pause")
	healthHandler := server.Instrument(server.HandleHealth())

	// Step 1: Register alice and bob
	w := doJSON(t, registerHandler, "POST", "/user/register", "", map[string]string{
		"publicName": "alice",
		"email":      "alice@example.com",
		"password":   "password123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var aliceProfile struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &aliceProfile)
	aliceID, err := uuid.Parse(aliceProfile.ID)
	assert.NoError(t, err)
	t.Logf("Alice registered with ID: %s", aliceID)

	w = doJSON(t, registerHandler, "POST", "/user/register", "", map[string]string{
		"publicName": "bob",
		"email":      "bob@example.com",
		"password":   "password456",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var bobProfile struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &bobProfile)
	bobID, err := uuid.Parse(bobProfile.ID)
	assert.NoError(t, err)
	t.Logf("Bob registered with ID: %s", bobID)

	// Registering alice's email a second time conflicts instead of minting
	// another account.
	w = doJSON(t, registerHandler, "POST", "/user/register", "", map[string]string{
		"publicName": "alice again",
		"email":      "alice@example.com",
		"password":   "password789",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Step 2: Login alice, reject a wrong password
	w = doJSON(t, loginHandler, "POST", "/user/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &login)
	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)
	aliceToken := login.Token

	w = doJSON(t, loginHandler, "POST", "/user/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bobToken, err := middleware.GenerateToken(bobID)
	assert.NoError(t, err)

	// Step 3: A request without a token is rejected
	w = doJSON(t, messageHandler, "POST", "/message", "", map[string]string{
		"receiverId": bobID.String(),
		"content":    "42",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Step 4: Alice sends "42" to bob
	w = doJSON(t, messageHandler, "POST", "/message", aliceToken, map[string]string{
		"receiverId": bobID.String(),
		"content":    "42",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var sentMessage struct {
		ID      uint64 `json:"id"`
		Content string `json:"content"`
		IsRead  bool   `json:"isRead"`
	}
	json.Unmarshal(w.Body.Bytes(), &sentMessage)
	assert.Equal(t, uint64(1), sentMessage.ID)
	assert.Equal(t, "42", sentMessage.Content)
	assert.False(t, sentMessage.IsRead)

	// Step 5: Self-send is rejected
	w = doJSON(t, messageHandler, "POST", "/message", aliceToken, map[string]string{
		"receiverId": aliceID.String(),
		"content":    "note to self",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Step 6: Bob's inbox holds message 1 with the decrypted content
	w = doJSON(t, inboxHandler, "GET", "/message/inbox", bobToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var inbox struct {
		MessageIDs []uint64 `json:"messageIds"`
		Messages   []struct {
			ID      uint64 `json:"id"`
			Content string `json:"content"`
			IsRead  bool   `json:"isRead"`
		} `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &inbox)
	assert.Equal(t, []uint64{1}, inbox.MessageIDs)
	if assert.Len(t, inbox.Messages, 1) {
		assert.Equal(t, "42", inbox.Messages[0].Content)
	}

	w = doJSON(t, sentHandler, "GET", "/message/sent", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Step 7: Unread count drops after bob marks the message read
	w = doJSON(t, unreadHandler, "GET", "/message/unread/count", bobToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var unread map[string]int
	json.Unmarshal(w.Body.Bytes(), &unread)
	assert.Equal(t, 1, unread["unreadCount"])

	w = doJSON(t, readHandler, "POST", "/message/read", bobToken, map[string]uint64{
		"messageId": 1,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, unreadHandler, "GET", "/message/unread/count", bobToken, nil)
	json.Unmarshal(w.Body.Bytes(), &unread)
	assert.Equal(t, 0, unread["unreadCount"])

	// Marking twice conflicts
	w = doJSON(t, readHandler, "POST", "/message/read", bobToken, map[string]uint64{
		"messageId": 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Step 8: Bob blocks alice, her sends bounce until he unblocks
	w = doJSON(t, blockHandler, "POST", "/user/block", bobToken, map[string]string{
		"targetId": aliceID.String(),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, messageHandler, "POST", "/message", aliceToken, map[string]string{
		"receiverId": bobID.String(),
		"content":    "hello?",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, unblockHandler, "POST", "/user/unblock", bobToken, map[string]string{
		"targetId": aliceID.String(),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, messageHandler, "POST", "/message", aliceToken, map[string]string{
		"receiverId": bobID.String(),
		"content":    "back again",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Step 9: Only the owner can pause; paused sends return 503
	w = doJSON(t, pauseHandler, "POST", "/admin/pause", aliceToken, map[string]bool{
		"paused": true,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	ownerToken, err := middleware.GenerateToken(ownerID)
	assert.NoError(t, err)
	w = doJSON(t, pauseHandler, "POST", "/admin/pause", ownerToken, map[string]bool{
		"paused": true,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, messageHandler, "POST", "/message", aliceToken, map[string]string{
		"receiverId": bobID.String(),
		"content":    "anyone home",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, pauseHandler, "POST", "/admin/pause", ownerToken, map[string]bool{
		"paused": false,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Step 10: Health reflects the ledger counts
	w = doJSON(t, healthHandler, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status       string `json:"status"`
		UserCount    int    `json:"user_count"`
		MessageCount uint64 `json:"message_count"`
		Paused       bool   `json:"paused"`
		RequestCount uint64 `json:"request_count"`
		ErrorCount   uint64 `json:"error_count"`
	}
	json.Unmarshal(w.Body.Bytes(), &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.UserCount)
	assert.Equal(t, uint64(2), health.MessageCount)
	assert.False(t, health.Paused)
	// Every instrumented call above is counted, rejections included.
	assert.Greater(t, health.RequestCount, health.ErrorCount)
}
