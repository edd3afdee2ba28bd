package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/asynkron/protoactor-go/actor"

	"sealbox/internal/database"
)

// Engine spawns the ledger actor and hands out its PID.
type Engine struct {
	ledgerPID *actor.PID
}

// NewEngine loads any persisted state from the store, then spawns the
// LedgerActor seeded with it.
func NewEngine(system *actor.ActorSystem, cfg Config) (*Engine, error) {
	if cfg.Store != nil && cfg.Seed == nil {
		seed, err := LoadSnapshot(context.Background(), cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger state: %w", err)
		}
		cfg.Seed = seed
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewLedgerActor(cfg)
	})
	pid := system.Root.Spawn(props)

	return &Engine{ledgerPID: pid}, nil
}

// LedgerPID returns the PID of the ledger actor.
func (e *Engine) LedgerPID() *actor.PID {
	return e.ledgerPID
}

// LoadSnapshot reads the full persisted ledger state. Messages are sorted by
// ID so replay rebuilds the inbox and sent sequences in send order.
func LoadSnapshot(ctx context.Context, store database.Store) (*Snapshot, error) {
	users, err := store.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := store.GetAllMessages(ctx)
	if err != nil {
		return nil, err
	}
	blocks, err := store.GetAllBlocks(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ID < messages[j].ID
	})

	return &Snapshot{
		Users:    users,
		Messages: messages,
		Blocks:   blocks,
	}, nil
}
