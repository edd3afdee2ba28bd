package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) error {
	log.Printf("Starting activities simulation...")

	// Reads and blocks only make sense once some messages exist.
	messagesAvailable := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateMessages(ctx, messagesAvailable)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-messagesAvailable:
			log.Printf("Starting read-marking after messages available...")
			s.simulateReads(ctx)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-messagesAvailable:
			log.Printf("Starting block churn after messages available...")
			s.simulateBlocks(ctx)
		}
	}()

	wg.Wait()
	return nil
}

func (s *EnhancedSimulator) simulateMessages(ctx context.Context, messagesAvailable chan struct{}) {
	log.Printf("Starting message simulation...")

	tickInterval := 500 * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	const numWorkers = 5
	sendJobs := make(chan *SimulatedUser, s.config.NumUsers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for user := range sendJobs {
				if rand.Float64() < (s.config.MessageFrequency/3600.0)/2.0 {
					receiver := s.pickReceiver(user)
					if receiver == nil {
						continue
					}

					data := map[string]interface{}{
						"receiverId": receiver.ID.String(),
						"content":    fmt.Sprintf("Message from %s at %s", user.PublicName, time.Now().Format(time.RFC3339)),
					}

					resp, err := s.makeRequest("POST", "/message", user.AuthToken, data)
					if err != nil {
						// Blocked sends are an expected outcome of the block
						// churn, count them separately.
						var errorResp ErrorResponse
						if json.Unmarshal(resp, &errorResp) == nil && errorResp.Code == "BLOCKED" {
							s.stats.mu.Lock()
							s.stats.RejectedSends++
							s.stats.mu.Unlock()
							continue
						}
						log.Printf("Debug: Worker %d failed to send message: %v", workerID, err)
						continue
					}

					s.stats.mu.Lock()
					messageCount := s.stats.TotalMessages + 1
					s.stats.TotalMessages = messageCount
					s.stats.mu.Unlock()

					log.Printf("Sent message from %s to %s (Total: %d)",
						user.PublicName, receiver.PublicName, messageCount)

					if messageCount == 10 {
						select {
						case <-messagesAvailable: // Check if already closed
						default:
							close(messagesAvailable)
						}
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(sendJobs)
			wg.Wait()
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, user := range s.users {
				select {
				case sendJobs <- user:
				default: // Don't block if channel is full
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *EnhancedSimulator) simulateReads(ctx context.Context) {
	tickInterval := 500 * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	const numWorkers = 5
	readJobs := make(chan *SimulatedUser, s.config.NumUsers)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for user := range readJobs {
				if rand.Float64() < (s.config.ReadFrequency/3600.0)/2.0 {
					messageID, err := s.getUnreadMessage(user)
					if err != nil {
						continue
					}

					data := map[string]interface{}{
						"messageId": messageID,
					}
					if _, err := s.makeRequest("POST", "/message/read", user.AuthToken, data); err != nil {
						log.Printf("Debug: Worker %d failed to mark message %d read: %v", workerID, messageID, err)
						continue
					}

					s.stats.mu.Lock()
					s.stats.TotalReads++
					readCount := s.stats.TotalReads
					s.stats.mu.Unlock()
					log.Printf("User %s read message %d (Total reads: %d)", user.PublicName, messageID, readCount)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(readJobs)
			wg.Wait()
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, user := range s.users {
				select {
				case readJobs <- user:
				default:
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *EnhancedSimulator) simulateBlocks(ctx context.Context) {
	tickInterval := time.Second
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, user := range s.users {
				if rand.Float64() >= s.config.BlockFrequency/3600.0 {
					continue
				}

				// Unblock an existing target sometimes, otherwise add a block.
				if len(user.Blocked) > 0 && rand.Float64() < s.config.UnblockRate {
					target := randomBlockedTarget(user)
					data := map[string]interface{}{"targetId": target.String()}
					if _, err := s.makeRequest("POST", "/user/unblock", user.AuthToken, data); err == nil {
						delete(user.Blocked, target)
						s.stats.mu.Lock()
						s.stats.TotalUnblocks++
						s.stats.mu.Unlock()
						log.Printf("User %s unblocked %s", user.PublicName, target)
					}
					continue
				}

				target := s.pickReceiver(user)
				if target == nil || user.Blocked[target.ID] {
					continue
				}
				data := map[string]interface{}{"targetId": target.ID.String()}
				if _, err := s.makeRequest("POST", "/user/block", user.AuthToken, data); err == nil {
					user.Blocked[target.ID] = true
					s.stats.mu.Lock()
					s.stats.TotalBlocks++
					s.stats.mu.Unlock()
					log.Printf("User %s blocked %s", user.PublicName, target.PublicName)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Helper functions

// pickReceiver chooses another user, skewed by the Zipf distribution so the
// first users in the slice receive most traffic.
func (s *EnhancedSimulator) pickReceiver(sender *SimulatedUser) *SimulatedUser {
	if len(s.users) < 2 {
		return nil
	}
	for attempts := 0; attempts < 3; attempts++ {
		receiver := s.users[int(s.zipf.Uint64())]
		if receiver.ID != sender.ID {
			return receiver
		}
	}
	return nil
}

// getUnreadMessage fetches the user's inbox and returns a random unread
// message id.
func (s *EnhancedSimulator) getUnreadMessage(user *SimulatedUser) (uint64, error) {
	resp, err := s.makeRequest("GET", "/message/inbox", user.AuthToken, nil)
	if err != nil {
		return 0, err
	}

	var inbox struct {
		Messages []struct {
			ID     uint64 `json:"id"`
			IsRead bool   `json:"isRead"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resp, &inbox); err != nil {
		return 0, fmt.Errorf("failed to parse inbox: %v", err)
	}

	unread := make([]uint64, 0, len(inbox.Messages))
	for _, message := range inbox.Messages {
		if !message.IsRead {
			unread = append(unread, message.ID)
		}
	}
	if len(unread) == 0 {
		return 0, fmt.Errorf("no unread messages")
	}
	return unread[rand.Intn(len(unread))], nil
}

func randomBlockedTarget(user *SimulatedUser) uuid.UUID {
	n := rand.Intn(len(user.Blocked))
	for target := range user.Blocked {
		if n == 0 {
			return target
		}
		n--
	}
	return uuid.Nil
}
