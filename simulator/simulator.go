package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type SimConfig struct {
	NumUsers         int
	SimulationTime   time.Duration
	MessageFrequency float64 // messages per user per hour
	ReadFrequency    float64 // read-marks per user per hour
	BlockFrequency   float64 // block changes per user per hour
	UnblockRate      float64 // chance a block change is an unblock
	ZipfS            float64 // receiver popularity skew
	EngineURL        string
}

type SimulationStats struct {
	mu               sync.RWMutex
	StartTime        time.Time
	TotalRequests    int64
	SuccessRequests  int64
	FailedRequests   int64
	AverageLatency   time.Duration
	TotalMessages    int
	TotalReads       int
	TotalBlocks      int
	TotalUnblocks    int
	RejectedSends    int
	RequestLatencies []time.Duration
}

// Track simulated users with their credentials and local view of the ledger
type SimulatedUser struct {
	ID         uuid.UUID
	PublicName string
	Email      string
	AuthToken  string             // JWT from login, sent as Bearer token
	Blocked    map[uuid.UUID]bool // targets this user currently blocks
}

type EnhancedSimulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	client *http.Client
	zipf   *rand.Zipf
	mu     sync.RWMutex
}

func NewEnhancedSimulator(config SimConfig) *EnhancedSimulator {
	return &EnhancedSimulator{
		config: config,
		stats: &SimulationStats{
			StartTime:        time.Now(),
			RequestLatencies: make([]time.Duration, 0),
		},
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *EnhancedSimulator) Run(ctx context.Context) error {
	log.Printf("Starting sealbox simulation...")

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.SimulateActivities(ctx); err != nil {
			log.Printf("Activities simulation error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

func (s *EnhancedSimulator) initialize(ctx context.Context) error {
	log.Printf("Starting initialization...")

	log.Printf("Phase 1: Registering %d users...", s.config.NumUsers)
	if err := s.createInitialUsers(ctx); err != nil {
		return fmt.Errorf("failed to create initial users: %v", err)
	}

	// Receiver popularity follows a Zipf distribution so a few inboxes get
	// most of the traffic, like real messaging workloads.
	s.zipf = rand.NewZipf(rand.New(rand.NewSource(time.Now().UnixNano())),
		s.config.ZipfS, 1, uint64(len(s.users)-1))

	log.Printf("Initialization completed with %d users", len(s.users))
	return nil
}

func (s *EnhancedSimulator) createInitialUsers(ctx context.Context) error {
	s.users = make([]*SimulatedUser, 0, s.config.NumUsers)
	s.mu.Lock()
	defer s.mu.Unlock()

	// A few workers with a shared rate limiter so registration does not
	// overwhelm the engine.
	numWorkers := 5
	userJobs := make(chan int, numWorkers)
	results := make(chan *SimulatedUser, numWorkers)

	var wg sync.WaitGroup

	rateLimiter := time.NewTicker(100 * time.Millisecond) // 10 requests per second
	defer rateLimiter.Stop()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			for userNum := range userJobs {
				<-rateLimiter.C

				user := &SimulatedUser{
					PublicName: fmt.Sprintf("user_%d", userNum),
					Email:      fmt.Sprintf("user_%d@test.com", userNum),
					Blocked:    make(map[uuid.UUID]bool),
				}

				// Exponential backoff on registration failures
				var err error
				for retries := 0; retries < 3; retries++ {
					if err = s.registerAndLogin(ctx, user, client); err == nil {
						results <- user
						break
					}
					backoffDuration := time.Duration(math.Pow(2, float64(retries))) * time.Second
					log.Printf("Worker %d: Retry %d for user %s after %v delay",
						workerID, retries+1, user.PublicName, backoffDuration)
					time.Sleep(backoffDuration)
				}

				if err != nil {
					log.Printf("Worker %d: Failed to register user %s after retries: %v",
						workerID, user.PublicName, err)
				}
			}
		}(i)
	}

	go func() {
		for i := 0; i < s.config.NumUsers; i++ {
			userJobs <- i
		}
		close(userJobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	successCount := 0
	progressTicker := time.NewTicker(2 * time.Second)
	defer progressTicker.Stop()

	for user := range results {
		s.users = append(s.users, user)
		successCount++

		select {
		case <-progressTicker.C:
			log.Printf("Progress: %d/%d users created (%.2f%%)",
				successCount, s.config.NumUsers,
				float64(successCount)/float64(s.config.NumUsers)*100)
		default:
		}
	}

	log.Printf("Successfully created %d users", len(s.users))
	return nil
}

// registerAndLogin registers a user and logs in to obtain the JWT the
// message endpoints require.
func (s *EnhancedSimulator) registerAndLogin(ctx context.Context, user *SimulatedUser, client *http.Client) error {
	registerData := map[string]interface{}{
		"publicName": user.PublicName,
		"email":      user.Email,
		"password":   "testpass123",
	}

	resp, err := s.makeRequestWithClient(client, "POST", "/user/register", "", registerData)
	if err != nil {
		return fmt.Errorf("failed to register user: %v", err)
	}

	var profile struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp, &profile); err != nil {
		return fmt.Errorf("failed to parse registration response: %v", err)
	}
	registeredID, err := uuid.Parse(profile.ID)
	if err != nil {
		return fmt.Errorf("invalid user ID returned: %v", err)
	}
	user.ID = registeredID

	loginData := map[string]interface{}{
		"email":    user.Email,
		"password": "testpass123",
	}
	resp, err = s.makeRequestWithClient(client, "POST", "/user/login", "", loginData)
	if err != nil {
		return fmt.Errorf("failed to login user: %v", err)
	}

	var login struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(resp, &login); err != nil {
		return fmt.Errorf("failed to parse login response: %v", err)
	}
	if !login.Success || login.Token == "" {
		return fmt.Errorf("login rejected for user %s", user.PublicName)
	}
	user.AuthToken = login.Token

	return nil
}

// makeRequest sends a JSON request with the shared client.
func (s *EnhancedSimulator) makeRequest(method, endpoint, token string, data interface{}) ([]byte, error) {
	return s.makeRequestWithClient(s.client, method, endpoint, token, data)
}

func (s *EnhancedSimulator) makeRequestWithClient(client *http.Client, method, endpoint, token string, data interface{}) ([]byte, error) {
	var body []byte
	var err error

	if data != nil {
		body, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, s.config.EngineURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	s.recordRequestMetrics(start, err)

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode >= 400 {
		return payload, fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}

	return payload, nil
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	s.stats.RequestLatencies = append(s.stats.RequestLatencies, latency)

	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	log.Printf("Starting metrics collection...")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stats.mu.RLock()
			elapsed := time.Since(s.stats.StartTime)
			requestRate := float64(s.stats.TotalRequests) / elapsed.Seconds()
			successRate := 0.0
			if s.stats.TotalRequests > 0 {
				successRate = float64(s.stats.SuccessRequests) / float64(s.stats.TotalRequests) * 100
			}

			log.Printf("\nSimulation Metrics (%.1f seconds elapsed):", elapsed.Seconds())
			log.Printf("- Request Rate: %.2f req/sec", requestRate)
			log.Printf("- Success Rate: %.1f%%", successRate)
			log.Printf("- Average Latency: %v", s.stats.AverageLatency)
			log.Printf("- Total Messages: %d (Rejected: %d)", s.stats.TotalMessages, s.stats.RejectedSends)
			log.Printf("- Total Reads: %d", s.stats.TotalReads)
			log.Printf("- Blocks/Unblocks: %d/%d", s.stats.TotalBlocks, s.stats.TotalUnblocks)
			log.Printf("- Failed Requests: %d", s.stats.FailedRequests)

			s.stats.mu.RUnlock()
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	TotalMessages     int
	TotalReads        int
	TotalBlocks       int
	TotalUnblocks     int
	RejectedSends     int
	AverageLatency    time.Duration
	ErrorCount        int
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)
	requestRate := float64(s.stats.TotalRequests) / elapsed.Seconds()

	return SimulationMetrics{
		TotalUsers:        len(s.users),
		TotalMessages:     s.stats.TotalMessages,
		TotalReads:        s.stats.TotalReads,
		TotalBlocks:       s.stats.TotalBlocks,
		TotalUnblocks:     s.stats.TotalUnblocks,
		RejectedSends:     s.stats.RejectedSends,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		RequestsPerSecond: requestRate,
	}
}
