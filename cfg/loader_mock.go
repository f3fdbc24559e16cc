package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "github-graph-crawler",
			Version: "0.0.1",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "git_data",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:       "",
			ApiUrl:            "https://api.github.com",
			PerPage:           100,
			RequestsPerSecond: 5,
			ThrottleDelay:     200,
			RateLimitResetMin: 5,
			MaxRetries:        3,
		},

		// Crawler
		Crawler: Crawler{
			MaxCrawlCountTotal:         30,
			MaxCrawlCountNew:           30,
			RefreshUpdateRepoDays:      7,
			RefreshUpdateUserDays:      7,
			RefreshUpdateUserReposDays: 1,
			RefreshCrawlDays:           30,
			WorkerCount:                4,
			WallClockBudgetSec:         600,
			SeedLogin:                  "",
			SeedBatchSize:              50,
		},

		// Kafka
		Kafka: Kafka{
			Enabled: false,
			Brokers: []string{"127.0.0.1:9092"},
			Producer: KafkaProducer{
				TopicDiscovery: "graph-discovery",
				TopicRunResult: "graph-run-result",
			},
			Consumer: KafkaConsumer{
				GroupID: "graph-crawler",
			},
		},
	}, nil
}
