package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/internal/model"
	"github.com/thep200/github-graph-crawler/pkg/kafka"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

func main() {
	// Parse command line arguments
	consumerType := flag.String("type", "", "Type of consumer to run (discovery, run-result)")
	flag.Parse()

	if *consumerType == "" {
		fmt.Println("Please specify a consumer type: -type=[discovery|run-result]")
		os.Exit(1)
	}

	// Load configuration
	loader, err := cfg.NewViperLoader()
	if err != nil {
		fmt.Printf("Failed to init config loader: %v\n", err)
		os.Exit(1)
	}
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLogger()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	switch *consumerType {
	case "discovery":
		startDiscoveryConsumer(ctx, config, logger)
	case "run-result":
		startRunResultConsumer(ctx, config, logger)
	default:
		logger.Error(ctx, "Unknown consumer type: %s", *consumerType)
		os.Exit(1)
	}

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

func startDiscoveryConsumer(ctx context.Context, config *cfg.Config, logger log.Logger) {
	consumer, err := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicDiscovery, config.Kafka.Consumer.GroupID)
	if err != nil {
		logger.Error(ctx, "Failed to create discovery consumer: %v", err)
		os.Exit(1)
	}

	// Register handler for discovery events
	consumer.RegisterHandler("discovery", func(data []byte) error {
		var msg model.DiscoveryMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal discovery message: %w", err)
		}
		if msg.Kind == "user" {
			logger.Info(ctx, "Discovered user %s at depth %d", msg.Login, msg.Depth)
		} else {
			logger.Info(ctx, "Discovered repo %d at depth %d", msg.RepoID, msg.Depth)
		}
		return nil
	})

	// Start consumer in a goroutine
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Discovery consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Discovery consumer started successfully")
}

func startRunResultConsumer(ctx context.Context, config *cfg.Config, logger log.Logger) {
	consumer, err := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicRunResult, config.Kafka.Consumer.GroupID)
	if err != nil {
		logger.Error(ctx, "Failed to create run result consumer: %v", err)
		os.Exit(1)
	}

	// Register handler for run summaries
	consumer.RegisterHandler("run-result", func(data []byte) error {
		var msg model.RunResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal run result message: %w", err)
		}
		logger.Info(ctx, "Run finished in %v: fetches=%d users=%d repos=%d discovered=%d edges=%d",
			msg.FinishedAt.Sub(msg.StartedAt), msg.Fetches, msg.UsersCrawled, msg.ReposCrawled, msg.Discovered, msg.EdgesCreated)
		if msg.RateLimited {
			logger.Warn(ctx, "Run was cut short by the API rate limit")
		}
		return nil
	})

	// Start consumer in a goroutine
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Run result consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Run result consumer started successfully")
}
