package crawler

import (
	"context"

	"github.com/thep200/github-graph-crawler/cfg"
	githubapi "github.com/thep200/github-graph-crawler/internal/github_api"
	"github.com/thep200/github-graph-crawler/internal/store"
	"github.com/thep200/github-graph-crawler/pkg/db"
	kafkapkg "github.com/thep200/github-graph-crawler/pkg/kafka"
	"github.com/thep200/github-graph-crawler/pkg/log"
)

// FactoryCrawler wires a Runner against the gorm store and the HTTP GitHub
// caller, with Kafka event publication when enabled.
func FactoryCrawler(logger log.Logger, config *cfg.Config, mysql *db.Mysql) (*Runner, error) {
	graph, err := store.NewGorm(config, logger, mysql)
	if err != nil {
		return nil, err
	}

	caller := githubapi.NewCaller(logger, config)
	runner, err := NewRunner(logger, config, graph, caller)
	if err != nil {
		return nil, err
	}

	if config.Kafka.Enabled {
		discovery, err := kafkapkg.NewProducer(config, logger, config.Kafka.Producer.TopicDiscovery)
		if err != nil {
			return nil, err
		}
		result, err := kafkapkg.NewProducer(config, logger, config.Kafka.Producer.TopicRunResult)
		if err != nil {
			return nil, err
		}
		runner.Publisher = &topicPublisher{discovery: discovery, result: result}
	}

	return runner, nil
}

// topicPublisher routes run results and discovery events to their topics.
type topicPublisher struct {
	discovery *kafkapkg.Producer
	result    *kafkapkg.Producer
}

func (p *topicPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	if key == "run-result" {
		return p.result.Publish(ctx, key, value)
	}
	return p.discovery.Publish(ctx, key, value)
}
