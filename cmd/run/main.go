package main

import (
	"context"
	"fmt"
	"os"

	"github.com/thep200/github-graph-crawler/cfg"
	"github.com/thep200/github-graph-crawler/internal/crawler"
	"github.com/thep200/github-graph-crawler/internal/model"
	"github.com/thep200/github-graph-crawler/pkg/db"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

func main() {
	ctx := context.Background()
	// loader, _ := cfg.NewMockLoader()
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
	logger, _ := log.NewCslLogger()
	mysql, err := db.NewMysql(config)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Migrate database
	if err := mysql.Migrate(model.All()...); err != nil {
		logger.Error(ctx, "Failed to migrate database: %v", err)
		os.Exit(1)
	}

	runner, err := crawler.FactoryCrawler(logger, config, mysql)
	if err != nil {
		logger.Error(ctx, "Failed to build crawler: %v", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Starting Github graph crawler run")
	summary, err := runner.Crawl(ctx)
	if err != nil {
		logger.Error(ctx, "Crawl run failed: %v", err)
		os.Exit(1)
	}
	if summary.RateLimited {
		logger.Warn(ctx, "Run ended early on rate limit, remaining work rolls over to the next run")
	}
	logger.Info(ctx, "Successfully!")
}
