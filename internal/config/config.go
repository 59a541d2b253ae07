package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var validate = validator.New()

// AppConfig configures the summary server.
type AppConfig struct {
	Port      string `validate:"required,numeric"`
	LogLevel  string
	LogFormat string `validate:"oneof=text json"`

	// Where the aggregation job output lives.
	SummarySource string `validate:"oneof=s3 file"`
	SummaryBucket string `validate:"required_if=SummarySource s3"`
	SummaryKey    string `validate:"required"`
	SummaryPath   string `validate:"required_if=SummarySource file"`

	AWSRegion  string
	S3Endpoint string `validate:"omitempty,url"`

	// CacheMaxAge bounds how long a fetched summary is served without refetching.
	CacheMaxAge     time.Duration `validate:"gte=0"`
	RefreshInterval time.Duration `validate:"gte=0"` // 0 disables the scheduler
	HTTPTimeout     time.Duration `validate:"gt=0"`
}

// JobConfig configures the batch aggregation job. Flags override it.
type JobConfig struct {
	LogLevel  string
	LogFormat string `validate:"oneof=text json"`

	Mappers    int `validate:"gte=1"`
	Reducers   int `validate:"gte=1"`
	ChunkLines int `validate:"gte=1"`
	Combine    bool

	KafkaBrokers []string
	KafkaTopic   string `validate:"required_with=KafkaBrokers"`
	KafkaGroupID string

	AWSRegion  string
	S3Endpoint string `validate:"omitempty,url"`

	// Job metrics are pushed here after a run; empty disables them.
	PushgatewayURL string `validate:"omitempty,url"`
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file loaded")
	}
}

// Load reads server configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	loadDotEnv()

	cfg := &AppConfig{
		Port:          getenvDefault("PORT", "8080"),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		LogFormat:     getenvDefault("LOG_FORMAT", "text"),
		SummarySource: getenvDefault("SUMMARY_SOURCE", "file"),
		SummaryBucket: os.Getenv("SUMMARY_BUCKET"),
		SummaryKey:    getenvDefault("SUMMARY_KEY", "monthly_weather_stats.txt"),
		SummaryPath:   getenvDefault("SUMMARY_PATH", "."),
		AWSRegion:     os.Getenv("AWS_REGION"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
	}

	var err error
	if cfg.CacheMaxAge, err = getenvDuration("CACHE_MAX_AGE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadJob reads batch job configuration from environment with sensible defaults.
func LoadJob() (*JobConfig, error) {
	loadDotEnv()

	cfg := &JobConfig{
		LogLevel:     getenvDefault("LOG_LEVEL", "info"),
		LogFormat:    getenvDefault("LOG_FORMAT", "text"),
		Mappers:      getenvInt("JOB_MAPPERS", 4),
		Reducers:     getenvInt("JOB_REDUCERS", 1),
		ChunkLines:   getenvInt("JOB_CHUNK_LINES", 10000),
		Combine:      getenvBool("JOB_COMBINE", true),
		KafkaBrokers: getenvList("KAFKA_BROKERS"),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),
		KafkaGroupID: os.Getenv("KAFKA_GROUP_ID"),
		AWSRegion:    os.Getenv("AWS_REGION"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg after flag overrides have been applied.
func (c *JobConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid job config: %w", err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
