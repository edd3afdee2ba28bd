package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"sealbox/internal/envelope"
	"sealbox/internal/models"
	"sealbox/internal/utils"
)

func spawnLedger(t *testing.T, cfg Config) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewLedgerActor(cfg)
	})
	pid := system.Root.Spawn(props)
	return system, pid
}

func ask(t *testing.T, system *actor.ActorSystem, pid *actor.PID, msg interface{}) interface{} {
	t.Helper()
	future := system.Root.RequestFuture(pid, msg, 5*time.Second)
	result, err := future.Result()
	if err != nil {
		t.Fatalf("Request %T failed: %v", msg, err)
	}
	return result
}

func register(t *testing.T, system *actor.ActorSystem, pid *actor.PID, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	result := ask(t, system, pid, &RegisterUserMsg{
		UserID:     id,
		PublicName: name,
		Email:      name + "@example.com",
	})
	if _, ok := result.(*models.UserProfile); !ok {
		t.Fatalf("Registration of %s failed: %v", name, result)
	}
	return id
}

func assertAppError(t *testing.T, result interface{}, code string) *utils.AppError {
	t.Helper()
	appErr, ok := result.(*utils.AppError)
	if !ok {
		t.Fatalf("Expected AppError %s, got %T: %v", code, result, result)
	}
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestRegisterUser(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	userID := uuid.New()
	result := ask(t, system, pid, &RegisterUserMsg{
		UserID:     userID,
		PublicName: "alice",
		Email:      "alice@example.com",
	})

	profile, ok := result.(*models.UserProfile)
	if !ok {
		t.Fatalf("Registration failed: %v", result)
	}
	assert.Equal(t, userID, profile.ID)
	assert.Equal(t, "alice", profile.PublicName)
	assert.True(t, profile.IsRegistered)
	assert.Zero(t, profile.MessagesSent)
	assert.Zero(t, profile.MessagesReceived)

	// Second registration for the same ID must fail and keep the first profile.
	result = ask(t, system, pid, &RegisterUserMsg{
		UserID:     userID,
		PublicName: "impostor",
		Email:      "impostor@example.com",
	})
	assertAppError(t, result, utils.ErrAlreadyRegistered)

	result = ask(t, system, pid, &GetUserProfileMsg{UserID: userID})
	kept := result.(*models.UserProfile)
	assert.Equal(t, "alice", kept.PublicName)
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	result := ask(t, system, pid, &RegisterUserMsg{
		UserID:     uuid.New(),
		PublicName: "alice",
		Email:      "alice@example.com",
	})
	if _, ok := result.(*models.UserProfile); !ok {
		t.Fatalf("Registration failed: %v", result)
	}

	// A fresh ID with a taken email is still a duplicate account.
	result = ask(t, system, pid, &RegisterUserMsg{
		UserID:     uuid.New(),
		PublicName: "alice again",
		Email:      "alice@example.com",
	})
	assertAppError(t, result, utils.ErrAlreadyRegistered)

	counts := ask(t, system, pid, &GetCountsMsg{}).(*LedgerCounts)
	assert.Equal(t, 1, counts.Users)
}

func TestRegisterUserNameLength(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	result := ask(t, system, pid, &RegisterUserMsg{
		UserID:     uuid.New(),
		PublicName: "",
	})
	assertAppError(t, result, utils.ErrInvalidNameLength)

	tooLong := make([]byte, models.PublicNameMaxLen+1)
	for i := range tooLong {
		tooLong[i] = 'x'
	}
	result = ask(t, system, pid, &RegisterUserMsg{
		UserID:     uuid.New(),
		PublicName: string(tooLong),
	})
	assertAppError(t, result, utils.ErrInvalidNameLength)

	// Rejected registrations leave no user behind.
	counts := ask(t, system, pid, &GetCountsMsg{}).(*LedgerCounts)
	assert.Equal(t, 0, counts.Users)
}

func TestSendMessageLifecycle(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	aliceID := register(t, system, pid, "alice")
	bobID := register(t, system, pid, "bob")

	result := ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: bobID,
		Content:    []byte("hello bob"),
	})
	message, ok := result.(*models.Message)
	if !ok {
		t.Fatalf("Send failed: %v", result)
	}
	assert.Equal(t, uint64(1), message.ID)
	assert.Equal(t, aliceID, message.SenderID)
	assert.Equal(t, bobID, message.ReceiverID)
	assert.False(t, message.IsRead)
	// The stored content is a sealed token, not the plaintext.
	assert.NotEqual(t, []byte("hello bob"), []byte(message.Content))

	total := ask(t, system, pid, &GetTotalMessagesMsg{}).(uint64)
	assert.Equal(t, uint64(1), total)

	inbox := ask(t, system, pid, &GetInboxMsg{UserID: bobID}).([]uint64)
	assert.Equal(t, []uint64{1}, inbox)

	sent := ask(t, system, pid, &GetSentMsg{UserID: aliceID}).([]uint64)
	assert.Equal(t, []uint64{1}, sent)

	unread := ask(t, system, pid, &GetUnreadCountMsg{UserID: bobID}).(int)
	assert.Equal(t, 1, unread)

	aliceProfile := ask(t, system, pid, &GetUserProfileMsg{UserID: aliceID}).(*models.UserProfile)
	assert.Equal(t, uint64(1), aliceProfile.MessagesSent)
	bobProfile := ask(t, system, pid, &GetUserProfileMsg{UserID: bobID}).(*models.UserProfile)
	assert.Equal(t, uint64(1), bobProfile.MessagesReceived)

	// IDs are dense: the next send allocates 2.
	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   bobID,
		ReceiverID: aliceID,
		Content:    []byte("hello alice"),
	})
	second := result.(*models.Message)
	assert.Equal(t, uint64(2), second.ID)
}

func TestSendMessageValidation(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	aliceID := register(t, system, pid, "alice")
	strangerID := uuid.New()

	result := ask(t, system, pid, &SendMessageMsg{
		SenderID:   strangerID,
		ReceiverID: aliceID,
		Content:    []byte("psst"),
	})
	assertAppError(t, result, utils.ErrSenderNotRegistered)

	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: strangerID,
		Content:    []byte("anyone there"),
	})
	assertAppError(t, result, utils.ErrReceiverNotRegistered)

	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: aliceID,
		Content:    []byte("note to self"),
	})
	assertAppError(t, result, utils.ErrSelfSend)

	// No rejected send changed the ledger.
	total := ask(t, system, pid, &GetTotalMessagesMsg{}).(uint64)
	assert.Equal(t, uint64(0), total)
	inbox := ask(t, system, pid, &GetInboxMsg{UserID: aliceID}).([]uint64)
	assert.Empty(t, inbox)
}

func TestBlockCycle(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	aliceID := register(t, system, pid, "alice")
	bobID := register(t, system, pid, "bob")

	// Bob blocks alice.
	result := ask(t, system, pid, &BlockUserMsg{BlockerID: bobID, TargetID: aliceID})
	assert.Equal(t, true, result)

	blocked := ask(t, system, pid, &IsBlockedMsg{BlockerID: bobID, BlockedID: aliceID}).(bool)
	assert.True(t, blocked)

	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: bobID,
		Content:    []byte("let me in"),
	})
	assertAppError(t, result, utils.ErrBlocked)

	// The block is directed: bob can still message alice.
	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   bobID,
		ReceiverID: aliceID,
		Content:    []byte("one way street"),
	})
	if _, ok := result.(*models.Message); !ok {
		t.Fatalf("Reverse direction send failed: %v", result)
	}

	result = ask(t, system, pid, &BlockUserMsg{BlockerID: bobID, TargetID: aliceID})
	assertAppError(t, result, utils.ErrAlreadyBlocked)

	// Unblock restores delivery.
	result = ask(t, system, pid, &UnblockUserMsg{BlockerID: bobID, TargetID: aliceID})
	assert.Equal(t, true, result)

	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: bobID,
		Content:    []byte("thanks"),
	})
	if _, ok := result.(*models.Message); !ok {
		t.Fatalf("Send after unblock failed: %v", result)
	}

	result = ask(t, system, pid, &UnblockUserMsg{BlockerID: bobID, TargetID: aliceID})
	assertAppError(t, result, utils.ErrNotBlocked)
}

func TestBlockValidation(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	aliceID := register(t, system, pid, "alice")

	result := ask(t, system, pid, &BlockUserMsg{BlockerID: aliceID, TargetID: aliceID})
	assertAppError(t, result, utils.ErrSelfBlock)

	result = ask(t, system, pid, &BlockUserMsg{BlockerID: aliceID, TargetID: uuid.New()})
	assertAppError(t, result, utils.ErrTargetNotRegistered)

	result = ask(t, system, pid, &BlockUserMsg{BlockerID: uuid.New(), TargetID: aliceID})
	assertAppError(t, result, utils.ErrNotRegistered)
}

func TestMarkMessageRead(t *testing.T) {
	system, pid := spawnLedger(t, Config{})

	aliceID := register(t, system, pid, "alice")
	bobID := register(t, system, pid, "bob")

	sendResult := ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: bobID,
		Content:    []byte("read me"),
	})
	message := sendResult.(*models.Message)

	// Only the receiver may mark a message read.
	result := ask(t, system, pid, &MarkMessageReadMsg{CallerID: aliceID, MessageID: message.ID})
	assertAppError(t, result, utils.ErrNotReceiver)

	result = ask(t, system, pid, &MarkMessageReadMsg{CallerID: uuid.New(), MessageID: message.ID})
	assertAppError(t, result, utils.ErrNotRegistered)

	result = ask(t, system, pid, &MarkMessageReadMsg{CallerID: bobID, MessageID: 999})
	assertAppError(t, result, utils.ErrMessageNotFound)

	result = ask(t, system, pid, &MarkMessageReadMsg{CallerID: bobID, MessageID: message.ID})
	read := result.(*models.Message)
	assert.True(t, read.IsRead)

	unread := ask(t, system, pid, &GetUnreadCountMsg{UserID: bobID}).(int)
	assert.Equal(t, 0, unread)

	// IsRead is terminal, a second mark conflicts.
	result = ask(t, system, pid, &MarkMessageReadMsg{CallerID: bobID, MessageID: message.ID})
	assertAppError(t, result, utils.ErrAlreadyRead)
}

func TestPauseSwitch(t *testing.T) {
	ownerID := uuid.New()
	system, pid := spawnLedger(t, Config{OwnerID: ownerID})

	aliceID := register(t, system, pid, "alice")
	bobID := register(t, system, pid, "bob")

	result := ask(t, system, pid, &SetPausedMsg{CallerID: aliceID, Paused: true})
	assertAppError(t, result, utils.ErrNotOwner)

	result = ask(t, system, pid, &SetPausedMsg{CallerID: ownerID, Paused: true})
	assert.Equal(t, true, result)

	// Sends are rejected for everyone while paused.
	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: bobID,
		Content:    []byte("anyone home"),
	})
	assertAppError(t, result, utils.ErrPaused)

	// Registration and block changes stay available.
	register(t, system, pid, "carol")
	result = ask(t, system, pid, &BlockUserMsg{BlockerID: aliceID, TargetID: bobID})
	assert.Equal(t, true, result)

	result = ask(t, system, pid, &SetPausedMsg{CallerID: ownerID, Paused: false})
	assert.Equal(t, true, result)

	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   bobID,
		ReceiverID: aliceID,
		Content:    []byte("back online"),
	})
	if _, ok := result.(*models.Message); !ok {
		t.Fatalf("Send after resume failed: %v", result)
	}
}

func TestAliceBobScenario(t *testing.T) {
	sealer := envelope.NewEphemeralSealer()
	system, pid := spawnLedger(t, Config{Sealer: sealer})

	aliceID := register(t, system, pid, "alice")
	bobID := register(t, system, pid, "bob")
	carolID := register(t, system, pid, "carol")

	result := ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: bobID,
		Content:    []byte("42"),
	})
	message := result.(*models.Message)
	assert.Equal(t, uint64(1), message.ID)

	inbox := ask(t, system, pid, &GetInboxMsg{UserID: bobID}).([]uint64)
	assert.Equal(t, []uint64{1}, inbox)
	unread := ask(t, system, pid, &GetUnreadCountMsg{UserID: bobID}).(int)
	assert.Equal(t, 1, unread)

	// Both parties can open the sealed content, a third party cannot.
	plaintext, err := sealer.Open(message.Content, bobID)
	assert.NoError(t, err)
	assert.Equal(t, "42", string(plaintext))
	plaintext, err = sealer.Open(message.Content, aliceID)
	assert.NoError(t, err)
	assert.Equal(t, "42", string(plaintext))
	_, err = sealer.Open(message.Content, carolID)
	assert.ErrorIs(t, err, envelope.ErrNotGranted)

	result = ask(t, system, pid, &MarkMessageReadMsg{CallerID: bobID, MessageID: 1})
	read := result.(*models.Message)
	assert.True(t, read.IsRead)

	unread = ask(t, system, pid, &GetUnreadCountMsg{UserID: bobID}).(int)
	assert.Equal(t, 0, unread)

	sent := ask(t, system, pid, &GetSentMsg{UserID: aliceID}).([]uint64)
	assert.Equal(t, []uint64{1}, sent)
}

func TestRestoreFromSeed(t *testing.T) {
	aliceID := uuid.New()
	bobID := uuid.New()
	carolID := uuid.New()
	now := time.Now()

	seed := &Snapshot{
		Users: []*models.UserProfile{
			{ID: aliceID, PublicName: "alice", IsRegistered: true, MessagesSent: 2},
			{ID: bobID, PublicName: "bob", IsRegistered: true, MessagesReceived: 2},
			{ID: carolID, PublicName: "carol", IsRegistered: true},
		},
		Messages: []*models.Message{
			{ID: 1, SenderID: aliceID, ReceiverID: bobID, CreatedAt: now, IsRead: true},
			{ID: 2, SenderID: aliceID, ReceiverID: bobID, CreatedAt: now},
		},
		Blocks: []*models.BlockRelation{
			{BlockerID: bobID, BlockedID: carolID, CreatedAt: now},
		},
	}

	system, pid := spawnLedger(t, Config{Seed: seed})

	inbox := ask(t, system, pid, &GetInboxMsg{UserID: bobID}).([]uint64)
	assert.Equal(t, []uint64{1, 2}, inbox)
	unread := ask(t, system, pid, &GetUnreadCountMsg{UserID: bobID}).(int)
	assert.Equal(t, 1, unread)

	blocked := ask(t, system, pid, &IsBlockedMsg{BlockerID: bobID, BlockedID: carolID}).(bool)
	assert.True(t, blocked)

	// The replayed block still rejects sends.
	result := ask(t, system, pid, &SendMessageMsg{
		SenderID:   carolID,
		ReceiverID: bobID,
		Content:    []byte("remember me"),
	})
	assertAppError(t, result, utils.ErrBlocked)

	// ID allocation continues after the highest replayed id.
	result = ask(t, system, pid, &SendMessageMsg{
		SenderID:   aliceID,
		ReceiverID: carolID,
		Content:    []byte("fresh start"),
	})
	message := result.(*models.Message)
	assert.Equal(t, uint64(3), message.ID)
}

func TestRestoreRebuildsGrants(t *testing.T) {
	key := bytes.Repeat([]byte{7}, envelope.KeySize)

	// Seal a message with the previous process's sealer.
	before, err := envelope.NewSecretboxSealer(key)
	assert.NoError(t, err)
	token, err := before.Seal([]byte("42"))
	assert.NoError(t, err)

	aliceID := uuid.New()
	bobID := uuid.New()
	carolID := uuid.New()
	seed := &Snapshot{
		Users: []*models.UserProfile{
			{ID: aliceID, PublicName: "alice", IsRegistered: true, MessagesSent: 1},
			{ID: bobID, PublicName: "bob", IsRegistered: true, MessagesReceived: 1},
			{ID: carolID, PublicName: "carol", IsRegistered: true},
		},
		Messages: []*models.Message{
			{ID: 1, SenderID: aliceID, ReceiverID: bobID, Content: token, CreatedAt: time.Now()},
		},
	}

	// A restart builds a fresh sealer from the same key, whose grant table
	// starts empty. Replay must hand both parties their access back.
	after, err := envelope.NewSecretboxSealer(key)
	assert.NoError(t, err)
	system, pid := spawnLedger(t, Config{Sealer: after, Seed: seed})

	message := ask(t, system, pid, &GetMessageMsg{MessageID: 1}).(*models.Message)

	plaintext, err := after.Open(message.Content, bobID)
	assert.NoError(t, err)
	assert.Equal(t, "42", string(plaintext))
	plaintext, err = after.Open(message.Content, aliceID)
	assert.NoError(t, err)
	assert.Equal(t, "42", string(plaintext))

	// Third parties stay locked out after the replay.
	_, err = after.Open(message.Content, carolID)
	assert.ErrorIs(t, err, envelope.ErrNotGranted)
}
