package main

import (
	"context"
	"log"
	"time"

	"sealbox/simulator"
)

func main() {
	// Define simulation configuration
	config := simulator.SimConfig{
		NumUsers:         10,
		SimulationTime:   10 * time.Minute,
		MessageFrequency: 120.0,
		ReadFrequency:    90.0,
		BlockFrequency:   10.0,
		UnblockRate:      0.4,
		ZipfS:            1.07,
		EngineURL:        "http://localhost:8080",
	}

	sim := simulator.NewEnhancedSimulator(config)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	// Log configuration
	log.Printf("Starting simulation with configuration:")
	log.Printf("- Engine URL: %s", config.EngineURL)
	log.Printf("- Number of users: %d", config.NumUsers)
	log.Printf("- Simulation time: %v", config.SimulationTime)
	log.Printf("- Message frequency: %.2f messages/user/hour", config.MessageFrequency)
	log.Printf("- Read frequency: %.2f reads/user/hour", config.ReadFrequency)
	log.Printf("- Block frequency: %.2f changes/user/hour", config.BlockFrequency)
	log.Printf("- Unblock rate: %.2f", config.UnblockRate)
	log.Printf("- Zipf parameter: %.2f", config.ZipfS)

	// Start simulation
	if err := sim.Run(ctx); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	// Print final metrics
	metrics := sim.GetMetrics()
	log.Printf("\nSimulation completed. Final metrics:")
	log.Printf("- Total users: %d", metrics.TotalUsers)
	log.Printf("- Total messages: %d (rejected sends: %d)", metrics.TotalMessages, metrics.RejectedSends)
	log.Printf("- Total reads: %d", metrics.TotalReads)
	log.Printf("- Blocks/unblocks: %d/%d", metrics.TotalBlocks, metrics.TotalUnblocks)
	log.Printf("- Average latency: %v", metrics.AverageLatency)
	log.Printf("- Error count: %d", metrics.ErrorCount)
}
