package cfg

import "fmt"

type (
	App struct {
		Name    string
		Version string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	GithubApi struct {
		AccessToken       string
		ApiUrl            string
		PerPage           int
		RequestsPerSecond int
		ThrottleDelay     int // milliseconds between limiter re-checks
		RateLimitResetMin int // fallback wait when no reset header is available
		MaxRetries        int
	}

	Crawler struct {
		MaxCrawlCountTotal         int
		MaxCrawlCountNew           int
		RefreshUpdateRepoDays      int
		RefreshUpdateUserDays      int
		RefreshUpdateUserReposDays int
		RefreshCrawlDays           int
		WorkerCount                int
		WallClockBudgetSec         int
		SeedLogin                  string
		SeedBatchSize              int
	}

	Kafka struct {
		Enabled  bool
		Brokers  []string
		Producer KafkaProducer
		Consumer KafkaConsumer
	}

	KafkaProducer struct {
		TopicDiscovery string
		TopicRunResult string
	}

	KafkaConsumer struct {
		GroupID string
	}
)

type Config struct {
	App       App
	Mysql     Mysql
	GithubApi GithubApi
	Crawler   Crawler
	Kafka     Kafka
}

// Validate rejects configurations the run controller cannot safely start with.
func (c *Config) Validate() error {
	if c.Crawler.MaxCrawlCountTotal < 0 || c.Crawler.MaxCrawlCountNew < 0 {
		return fmt.Errorf("crawler budgets must not be negative")
	}
	if c.Crawler.WorkerCount <= 0 {
		return fmt.Errorf("crawler worker count must be positive, got %d", c.Crawler.WorkerCount)
	}
	if c.Crawler.WallClockBudgetSec <= 0 {
		return fmt.Errorf("crawler wall clock budget must be positive, got %d", c.Crawler.WallClockBudgetSec)
	}
	if c.Crawler.RefreshUpdateRepoDays <= 0 ||
		c.Crawler.RefreshUpdateUserDays <= 0 ||
		c.Crawler.RefreshUpdateUserReposDays <= 0 ||
		c.Crawler.RefreshCrawlDays <= 0 {
		return fmt.Errorf("refresh cadences must be positive")
	}
	if c.GithubApi.RequestsPerSecond <= 0 {
		return fmt.Errorf("github api requests per second must be positive")
	}
	return nil
}
