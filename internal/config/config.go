package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	Queue      *queueConfig
	Generation *generationConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"tryon"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string `envconfig:"TRYON_ADDRESS" default:":3443"`
	MetricsAddress string `envconfig:"TRYON_METRICS_ADDRESS" default:":8080"`
	BaseUrl        string `envconfig:"TRYON_BASE_URL" default:"https://localhost:3443"`
	LogLevel       string `envconfig:"TRYON_LOG_LEVEL" default:"info"`
	ResultsDir     string `envconfig:"TRYON_RESULTS_DIR" default:"/var/lib/tryon/results"`
}

type queueConfig struct {
	MaxConcurrent     int    `envconfig:"TRYON_QUEUE_MAX_CONCURRENT" default:"3"`
	TickInterval      string `envconfig:"TRYON_QUEUE_TICK_INTERVAL" default:"30s"`
	MaxAttempts       int    `envconfig:"TRYON_QUEUE_MAX_ATTEMPTS" default:"3"`
	RetryBackoff      string `envconfig:"TRYON_QUEUE_RETRY_BACKOFF" default:"60s"`
	StatusTTL         string `envconfig:"TRYON_STATUS_TTL" default:"1h"`
	RetentionAge      string `envconfig:"TRYON_QUEUE_RETENTION_AGE" default:"168h"`
	RetentionInterval string `envconfig:"TRYON_QUEUE_RETENTION_INTERVAL" default:"1h"`
}

type generationConfig struct {
	Endpoint       string `envconfig:"TRYON_GENERATION_ENDPOINT" default:""`
	ApiKey         string `envconfig:"TRYON_GENERATION_API_KEY" default:""`
	Model          string `envconfig:"TRYON_GENERATION_MODEL" default:"gemini-2.5-flash-image"`
	MaxAttempts    int    `envconfig:"TRYON_GENERATION_MAX_ATTEMPTS" default:"3"`
	RequestTimeout string `envconfig:"TRYON_GENERATION_REQUEST_TIMEOUT" default:"120s"`
	RatePerMinute  int    `envconfig:"TRYON_GENERATION_RATE_PER_MINUTE" default:"10"`
	ImageCacheTTL  string `envconfig:"TRYON_IMAGE_CACHE_TTL" default:"24h"`
	MaxImageSide   int    `envconfig:"TRYON_MAX_IMAGE_SIDE" default:"1024"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration suitable for tests. It uses an
// in-memory sqlite database instead of postgres.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: ":memory:",
		},
		Service: &svcConfig{
			Address:    "localhost:3443",
			LogLevel:   "debug",
			ResultsDir: "/tmp/tryon-results",
		},
		Queue: &queueConfig{
			MaxConcurrent:     3,
			TickInterval:      "30s",
			MaxAttempts:       3,
			RetryBackoff:      "60s",
			StatusTTL:         "1h",
			RetentionAge:      "168h",
			RetentionInterval: "1h",
		},
		Generation: &generationConfig{
			Model:          "gemini-2.5-flash-image",
			MaxAttempts:    3,
			RequestTimeout: "120s",
			RatePerMinute:  10,
			ImageCacheTTL:  "24h",
			MaxImageSide:   1024,
		},
	}
}
