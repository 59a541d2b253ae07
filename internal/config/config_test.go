package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "file", cfg.SummarySource)
	assert.Equal(t, "monthly_weather_stats.txt", cfg.SummaryKey)
	assert.Equal(t, 5*time.Minute, cfg.CacheMaxAge)
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUMMARY_SOURCE", "s3")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SUMMARY_BUCKET", "weather")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "weather", cfg.SummaryBucket)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"unknown source":  {"SUMMARY_SOURCE", "ftp"},
		"bad duration":    {"CACHE_MAX_AGE", "soon"},
		"bad port":        {"PORT", "http"},
		"bad log format":  {"LOG_FORMAT", "xml"},
		"zero timeout":    {"HTTP_TIMEOUT", "0s"},
		"bad s3 endpoint": {"S3_ENDPOINT", "not a url"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadJob(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JOB_MAPPERS", "8")
	t.Setenv("JOB_COMBINE", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("KAFKA_TOPIC", "observations")

	cfg, err := LoadJob()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Mappers)
	assert.Equal(t, 1, cfg.Reducers)
	assert.Equal(t, 10000, cfg.ChunkLines)
	assert.False(t, cfg.Combine)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestJobConfig_Validate(t *testing.T) {
	cfg := JobConfig{LogFormat: "text", Mappers: 1, Reducers: 1, ChunkLines: 1}
	require.NoError(t, cfg.Validate())

	cfg.Reducers = 0
	assert.Error(t, cfg.Validate())

	cfg.Reducers = 1
	cfg.KafkaBrokers = []string{"localhost:9092"}
	assert.Error(t, cfg.Validate())

	cfg.KafkaBrokers = nil
	cfg.PushgatewayURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg.PushgatewayURL = "http://pushgateway:9091"
	assert.NoError(t, cfg.Validate())
}

// chdir changes the working directory for the duration of the test,
// restoring the original directory on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
