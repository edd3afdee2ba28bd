package ledger

import (
	stdctx "context"
	"log"
	"time"
	"unicode/utf8"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"

	"sealbox/internal/database"
	"sealbox/internal/envelope"
	"sealbox/internal/events"
	"sealbox/internal/models"
	"sealbox/internal/utils"
)

// Config wires the LedgerActor's collaborators. Store, Sink, Clock and
// Metrics are optional; Seed carries previously persisted state to replay
// at startup.
type Config struct {
	OwnerID uuid.UUID
	Sealer  envelope.Sealer
	Sink    events.Sink
	Store   database.Store
	Clock   Clock
	Metrics *utils.MetricsCollector
	Seed    *Snapshot
}

// Snapshot is the persisted ledger state loaded at startup.
type Snapshot struct {
	Users    []*models.UserProfile
	Messages []*models.Message
	Blocks   []*models.BlockRelation
}

// LedgerActor owns all ledger state. One actor, one mailbox: every
// operation either fully applies or responds with an AppError and
// applies nothing.
type LedgerActor struct {
	users    map[uuid.UUID]*models.UserProfile
	messages map[uint64]*models.Message
	inbox    map[uuid.UUID][]uint64
	sent     map[uuid.UUID][]uint64
	blocks   map[uuid.UUID]map[uuid.UUID]bool

	messageCount uint64
	paused       bool
	ownerID      uuid.UUID

	sealer  envelope.Sealer
	sink    events.Sink
	store   database.Store
	clock   Clock
	metrics *utils.MetricsCollector
}

func NewLedgerActor(cfg Config) *LedgerActor {
	a := &LedgerActor{
		users:    make(map[uuid.UUID]*models.UserProfile),
		messages: make(map[uint64]*models.Message),
		inbox:    make(map[uuid.UUID][]uint64),
		sent:     make(map[uuid.UUID][]uint64),
		blocks:   make(map[uuid.UUID]map[uuid.UUID]bool),
		ownerID:  cfg.OwnerID,
		sealer:   cfg.Sealer,
		sink:     cfg.Sink,
		store:    cfg.Store,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
	}
	if a.sealer == nil {
		a.sealer = envelope.NewEphemeralSealer()
	}
	if a.sink == nil {
		a.sink = events.NopSink{}
	}
	if a.clock == nil {
		a.clock = SystemClock()
	}
	if a.metrics == nil {
		a.metrics = utils.NewMetricsCollector()
	}
	if cfg.Seed != nil {
		a.restore(cfg.Seed)
	}
	return a
}

// restore replays persisted state. Messages arrive sorted by ID, so the
// inbox and sent sequences rebuild in original order.
func (a *LedgerActor) restore(seed *Snapshot) {
	for _, user := range seed.Users {
		u := *user
		a.users[u.ID] = &u
	}
	for _, msg := range seed.Messages {
		m := *msg
		a.messages[m.ID] = &m
		a.inbox[m.ReceiverID] = append(a.inbox[m.ReceiverID], m.ID)
		a.sent[m.SenderID] = append(a.sent[m.SenderID], m.ID)
		if m.ID > a.messageCount {
			a.messageCount = m.ID
		}
		// The grant table lives only in memory, so both parties get their
		// access back on replay.
		if len(m.Content) > 0 {
			if err := a.sealer.Grant(m.Content, m.SenderID); err != nil {
				log.Printf("Warning: failed to restore sender grant for message %d: %v", m.ID, err)
			}
			if err := a.sealer.Grant(m.Content, m.ReceiverID); err != nil {
				log.Printf("Warning: failed to restore receiver grant for message %d: %v", m.ID, err)
			}
		}
	}
	for _, rel := range seed.Blocks {
		if _, ok := a.blocks[rel.BlockerID]; !ok {
			a.blocks[rel.BlockerID] = make(map[uuid.UUID]bool)
		}
		a.blocks[rel.BlockerID][rel.BlockedID] = true
	}
	log.Printf("Ledger restored: %d users, %d messages, %d block pairs",
		len(seed.Users), len(seed.Messages), len(seed.Blocks))
}

func (a *LedgerActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *RegisterUserMsg:
		a.handleRegisterUser(context, msg)
	case *SendMessageMsg:
		a.handleSendMessage(context, msg)
	case *MarkMessageReadMsg:
		a.handleMarkMessageRead(context, msg)
	case *BlockUserMsg:
		a.handleBlockUser(context, msg)
	case *UnblockUserMsg:
		a.handleUnblockUser(context, msg)
	case *SetPausedMsg:
		a.handleSetPaused(context, msg)
	case *GetInboxMsg:
		context.Respond(copyIDs(a.inbox[msg.UserID]))
	case *GetSentMsg:
		context.Respond(copyIDs(a.sent[msg.UserID]))
	case *GetMessageMsg:
		if message, exists := a.messages[msg.MessageID]; exists {
			snapshot := *message
			context.Respond(&snapshot)
		} else {
			context.Respond(utils.NewMessageNotFoundError(msg.MessageID))
		}
	case *GetUserProfileMsg:
		if user, exists := a.users[msg.UserID]; exists {
			snapshot := *user
			context.Respond(&snapshot)
		} else {
			context.Respond(utils.NewUserNotFoundError(msg.UserID.String()))
		}
	case *GetUserByEmailMsg:
		a.handleGetUserByEmail(context, msg)
	case *IsBlockedMsg:
		context.Respond(a.isBlocked(msg.BlockerID, msg.BlockedID))
	case *GetTotalMessagesMsg:
		context.Respond(a.messageCount)
	case *GetUnreadCountMsg:
		context.Respond(a.unreadCount(msg.UserID))
	case *GetCountsMsg:
		context.Respond(&LedgerCounts{
			Users:    len(a.users),
			Messages: a.messageCount,
			Paused:   a.paused,
		})
	}
}

func (a *LedgerActor) handleRegisterUser(context actor.Context, msg *RegisterUserMsg) {
	startTime := time.Now()

	if _, exists := a.users[msg.UserID]; exists {
		context.Respond(utils.NewAppError(utils.ErrAlreadyRegistered, "account is already registered", nil))
		return
	}
	// Email is the login identity, one account per address.
	for _, user := range a.users {
		if user.Email == msg.Email {
			context.Respond(utils.NewAppError(utils.ErrAlreadyRegistered, "email is already registered", nil))
			return
		}
	}
	nameLen := utf8.RuneCountInString(msg.PublicName)
	if nameLen < models.PublicNameMinLen || nameLen > models.PublicNameMaxLen {
		context.Respond(utils.NewAppError(utils.ErrInvalidNameLength, "public name must be 1 to 50 characters", nil))
		return
	}

	now := a.clock.Now()
	user := &models.UserProfile{
		ID:             msg.UserID,
		PublicName:     msg.PublicName,
		Email:          msg.Email,
		HashedPassword: msg.HashedPassword,
		IsRegistered:   true,
		CreatedAt:      now,
		LastActive:     now,
	}
	a.users[user.ID] = user

	a.persist(func(ctx stdctx.Context) error {
		return a.store.SaveUser(ctx, user)
	}, "save user")

	a.sink.Emit(&events.UserRegistered{UserID: user.ID, PublicName: user.PublicName, At: now})
	a.metrics.AddOperationLatency("register_user", time.Since(startTime))
	log.Printf("Registered user %s (%q)", user.ID, user.PublicName)

	snapshot := *user
	context.Respond(&snapshot)
}

func (a *LedgerActor) handleSendMessage(context actor.Context, msg *SendMessageMsg) {
	startTime := time.Now()

	// All preconditions are checked before any state changes so a rejected
	// send leaves the ledger untouched.
	if a.paused {
		context.Respond(utils.NewAppError(utils.ErrPaused, "message sending is paused", nil))
		return
	}
	sender, senderExists := a.users[msg.SenderID]
	if !senderExists {
		context.Respond(utils.NewAppError(utils.ErrSenderNotRegistered, "sender is not registered", nil))
		return
	}
	receiver, receiverExists := a.users[msg.ReceiverID]
	if !receiverExists {
		context.Respond(utils.NewAppError(utils.ErrReceiverNotRegistered, "receiver is not registered", nil))
		return
	}
	if msg.SenderID == msg.ReceiverID {
		context.Respond(utils.NewAppError(utils.ErrSelfSend, "cannot send a message to yourself", nil))
		return
	}
	if a.isBlocked(msg.ReceiverID, msg.SenderID) {
		context.Respond(utils.NewAppError(utils.ErrBlocked, "receiver has blocked the sender", nil))
		return
	}

	token, err := a.sealer.Seal(msg.Content)
	if err != nil {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "failed to seal message content", err))
		return
	}
	// Both parties may decrypt what the ledger itself cannot read.
	if err := a.sealer.Grant(token, msg.SenderID); err != nil {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "failed to grant sender access", err))
		return
	}
	if err := a.sealer.Grant(token, msg.ReceiverID); err != nil {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "failed to grant receiver access", err))
		return
	}

	now := a.clock.Now()
	a.messageCount++
	message := &models.Message{
		ID:         a.messageCount,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    token,
		CreatedAt:  now,
		IsRead:     false,
	}
	a.messages[message.ID] = message
	a.inbox[msg.ReceiverID] = append(a.inbox[msg.ReceiverID], message.ID)
	a.sent[msg.SenderID] = append(a.sent[msg.SenderID], message.ID)
	sender.MessagesSent++
	receiver.MessagesReceived++
	sender.LastActive = now

	a.persist(func(ctx stdctx.Context) error {
		if err := a.store.SaveMessage(ctx, message); err != nil {
			return err
		}
		return a.store.BumpMessageCounters(ctx, msg.SenderID, msg.ReceiverID, now)
	}, "save message")

	a.sink.Emit(&events.MessageSent{
		MessageID:  message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		At:         now,
	})
	a.metrics.AddOperationLatency("send_message", time.Since(startTime))
	log.Printf("Message %d sent from %s to %s", message.ID, msg.SenderID, msg.ReceiverID)

	snapshot := *message
	context.Respond(&snapshot)
}

func (a *LedgerActor) handleMarkMessageRead(context actor.Context, msg *MarkMessageReadMsg) {
	startTime := time.Now()

	caller, callerExists := a.users[msg.CallerID]
	if !callerExists {
		context.Respond(utils.NewAppError(utils.ErrNotRegistered, "caller is not registered", nil))
		return
	}
	message, exists := a.messages[msg.MessageID]
	if !exists {
		context.Respond(utils.NewMessageNotFoundError(msg.MessageID))
		return
	}
	if message.ReceiverID != msg.CallerID {
		context.Respond(utils.NewAppError(utils.ErrNotReceiver, "only the receiver may mark a message read", nil))
		return
	}
	if message.IsRead {
		context.Respond(utils.NewAppError(utils.ErrAlreadyRead, "message is already marked as read", nil))
		return
	}

	now := a.clock.Now()
	message.IsRead = true
	caller.LastActive = now

	a.persist(func(ctx stdctx.Context) error {
		return a.store.MarkMessageRead(ctx, message.ID, now)
	}, "mark message read")

	a.sink.Emit(&events.MessageRead{
		MessageID: message.ID,
		ReaderID:  msg.CallerID,
		SenderID:  message.SenderID,
		At:        now,
	})
	a.metrics.AddOperationLatency("mark_message_read", time.Since(startTime))

	snapshot := *message
	context.Respond(&snapshot)
}

func (a *LedgerActor) handleBlockUser(context actor.Context, msg *BlockUserMsg) {
	startTime := time.Now()

	if _, exists := a.users[msg.BlockerID]; !exists {
		context.Respond(utils.NewAppError(utils.ErrNotRegistered, "caller is not registered", nil))
		return
	}
	if _, exists := a.users[msg.TargetID]; !exists {
		context.Respond(utils.NewAppError(utils.ErrTargetNotRegistered, "target is not registered", nil))
		return
	}
	if msg.BlockerID == msg.TargetID {
		context.Respond(utils.NewAppError(utils.ErrSelfBlock, "cannot block yourself", nil))
		return
	}
	if a.isBlocked(msg.BlockerID, msg.TargetID) {
		context.Respond(utils.NewAppError(utils.ErrAlreadyBlocked, "target is already blocked", nil))
		return
	}

	now := a.clock.Now()
	if _, ok := a.blocks[msg.BlockerID]; !ok {
		a.blocks[msg.BlockerID] = make(map[uuid.UUID]bool)
	}
	a.blocks[msg.BlockerID][msg.TargetID] = true

	a.persist(func(ctx stdctx.Context) error {
		return a.store.SaveBlock(ctx, &models.BlockRelation{
			BlockerID: msg.BlockerID,
			BlockedID: msg.TargetID,
			CreatedAt: now,
		})
	}, "save block")

	a.sink.Emit(&events.UserBlocked{BlockerID: msg.BlockerID, BlockedID: msg.TargetID, At: now})
	a.metrics.AddOperationLatency("block_user", time.Since(startTime))
	log.Printf("User %s blocked %s", msg.BlockerID, msg.TargetID)

	context.Respond(true)
}

func (a *LedgerActor) handleUnblockUser(context actor.Context, msg *UnblockUserMsg) {
	startTime := time.Now()

	if !a.isBlocked(msg.BlockerID, msg.TargetID) {
		context.Respond(utils.NewAppError(utils.ErrNotBlocked, "target is not blocked", nil))
		return
	}

	delete(a.blocks[msg.BlockerID], msg.TargetID)
	if len(a.blocks[msg.BlockerID]) == 0 {
		delete(a.blocks, msg.BlockerID)
	}

	a.persist(func(ctx stdctx.Context) error {
		return a.store.DeleteBlock(ctx, msg.BlockerID, msg.TargetID)
	}, "delete block")

	a.sink.Emit(&events.UserUnblocked{BlockerID: msg.BlockerID, BlockedID: msg.TargetID, At: a.clock.Now()})
	a.metrics.AddOperationLatency("unblock_user", time.Since(startTime))
	log.Printf("User %s unblocked %s", msg.BlockerID, msg.TargetID)

	context.Respond(true)
}

// handleSetPaused flips the process-wide pause switch. Only message sending
// is gated by it; registration, read-marking and block changes stay
// available while paused.
func (a *LedgerActor) handleSetPaused(context actor.Context, msg *SetPausedMsg) {
	if msg.CallerID != a.ownerID {
		context.Respond(utils.NewAppError(utils.ErrNotOwner, "only the owner may toggle the pause switch", nil))
		return
	}
	a.paused = msg.Paused
	log.Printf("Pause switch set to %v by owner", msg.Paused)
	context.Respond(true)
}

// handleGetUserByEmail is a linear scan; the user set is small enough that an
// email index is not worth maintaining. Used by the login handler.
func (a *LedgerActor) handleGetUserByEmail(context actor.Context, msg *GetUserByEmailMsg) {
	for _, user := range a.users {
		if user.Email == msg.Email {
			snapshot := *user
			context.Respond(&snapshot)
			return
		}
	}
	context.Respond(utils.NewUserNotFoundError(msg.Email))
}

func (a *LedgerActor) isBlocked(blocker, blocked uuid.UUID) bool {
	return a.blocks[blocker][blocked]
}

// unreadCount is a linear scan over the user's inbox, bounded by that
// user's message count.
func (a *LedgerActor) unreadCount(userID uuid.UUID) int {
	count := 0
	for _, id := range a.inbox[userID] {
		if message, exists := a.messages[id]; exists && !message.IsRead {
			count++
		}
	}
	return count
}

// persist runs a write-through against the durable store. The actor state is
// authoritative; a store failure is logged and does not roll back the
// committed operation.
func (a *LedgerActor) persist(fn func(ctx stdctx.Context) error, what string) {
	if a.store == nil {
		return
	}
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("Warning: failed to %s in store: %v", what, err)
	}
}

func copyIDs(ids []uint64) []uint64 {
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}
