package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/monthly-weather-stats/internal/config"
	"github.com/i474232898/monthly-weather-stats/internal/ingest"
	"github.com/i474232898/monthly-weather-stats/internal/observability"
	"github.com/i474232898/monthly-weather-stats/internal/pipeline"
	"github.com/i474232898/monthly-weather-stats/internal/resilience"
	"github.com/i474232898/monthly-weather-stats/internal/summary/sources"
)

type options struct {
	inputs []string
	output string

	kafkaMaxMessages int
	kafkaIdle        time.Duration

	latitude  float64
	longitude float64
	startDate string
	endDate   string
	timezone  string
}

func main() {
	cfg, err := config.LoadJob()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var opts options
	rootCmd := &cobra.Command{
		Use:   "monthly-stats-job",
		Short: "Aggregate daily weather observations into monthly statistics",
		Long: `monthly-stats-job reads JSON lines of daily observations (date, temperature_2m_max,
precipitation_sum) from files, S3, Kafka or the Open-Meteo archive, and writes one line
per month with the average daily maximum temperature and the total precipitation.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, cfg, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVarP(&opts.inputs, "input", "i", nil, "Input files, s3://bucket/key objects or - for stdin")
	flags.StringVarP(&opts.output, "output", "o", "-", "Output file, s3://bucket/key or - for stdout")
	flags.IntVarP(&cfg.Mappers, "mappers", "m", cfg.Mappers, "Number of concurrent map workers")
	flags.IntVarP(&cfg.Reducers, "reducers", "r", cfg.Reducers, "Number of reduce partitions")
	flags.IntVar(&cfg.ChunkLines, "chunk-lines", cfg.ChunkLines, "Lines per input shard")
	flags.BoolVar(&cfg.Combine, "combine", cfg.Combine, "Pre-aggregate each shard before the shuffle")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text or json)")
	flags.StringVar(&cfg.PushgatewayURL, "pushgateway", cfg.PushgatewayURL, "Prometheus Pushgateway URL for job metrics")

	flags.StringSliceVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "Kafka brokers to consume observations from")
	flags.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "Kafka topic with observation lines")
	flags.StringVar(&cfg.KafkaGroupID, "kafka-group", cfg.KafkaGroupID, "Kafka consumer group; offsets are committed when set")
	flags.IntVar(&opts.kafkaMaxMessages, "kafka-max-messages", 0, "Stop after this many messages (0 reads until idle)")
	flags.DurationVar(&opts.kafkaIdle, "kafka-idle", 5*time.Second, "Stop after the topic is idle this long")

	flags.Float64Var(&opts.latitude, "lat", 0, "Open-Meteo latitude")
	flags.Float64Var(&opts.longitude, "lon", 0, "Open-Meteo longitude")
	flags.StringVar(&opts.startDate, "start", "", "Open-Meteo start date (YYYY-MM-DD)")
	flags.StringVar(&opts.endDate, "end", "", "Open-Meteo end date (YYYY-MM-DD)")
	flags.StringVar(&opts.timezone, "timezone", "UTC", "Open-Meteo timezone for daily aggregation")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.JobConfig, opts options) error {
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	var objects *sources.S3Store
	needS3 := strings.HasPrefix(opts.output, "s3://")
	for _, in := range opts.inputs {
		needS3 = needS3 || strings.HasPrefix(in, "s3://")
	}
	if needS3 {
		client, err := sources.NewS3Client(ctx, cfg.AWSRegion, cfg.S3Endpoint, 0)
		if err != nil {
			return err
		}
		objects = sources.NewS3Store(client, "", resilience.DefaultBackoff)
	}

	input, err := openInputs(ctx, cmd, cfg, opts, objects, logger)
	if err != nil {
		return err
	}
	defer input.Close()

	job := pipeline.Job{
		Mappers:    cfg.Mappers,
		Reducers:   cfg.Reducers,
		ChunkLines: cfg.ChunkLines,
		Combine:    cfg.Combine,
		Logger:     logger,
	}
	if cfg.PushgatewayURL != "" {
		job.Metrics = observability.NewMetrics()
	}
	res, err := job.Run(ctx, input)
	if job.Metrics != nil {
		if perr := job.Metrics.PushJobMetrics(ctx, cfg.PushgatewayURL, "monthly-stats-job"); perr != nil {
			logger.WithError(perr).Warn("could not push job metrics")
		}
	}
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	var buf bytes.Buffer
	if _, err := res.WriteTo(&buf); err != nil {
		return err
	}
	if err := writeOutput(ctx, opts.output, buf.Bytes(), objects, logger); err != nil {
		return err
	}

	for _, kind := range res.Errors.Names() {
		logger.WithFields(log.Fields{"kind": kind, "lines": res.Errors[kind]}).Warn("skipped input lines")
	}
	return nil
}

// openInputs concatenates the Open-Meteo archive, the Kafka topic and the
// --input URIs, in that order. With no source configured stdin is read.
func openInputs(ctx context.Context, cmd *cobra.Command, cfg *config.JobConfig, opts options, objects *sources.S3Store, logger log.FieldLogger) (io.ReadCloser, error) {
	var prefix [][]byte

	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("start") {
		q, err := openMeteoQuery(opts)
		if err != nil {
			return nil, err
		}
		src := ingest.NewOpenMeteoSource(&http.Client{Timeout: 30 * time.Second}, logger)
		data, err := src.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, data)
	}

	if cfg.KafkaTopic != "" {
		src := ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers:     cfg.KafkaBrokers,
			Topic:       cfg.KafkaTopic,
			GroupID:     cfg.KafkaGroupID,
			MaxMessages: opts.kafkaMaxMessages,
			IdleTimeout: opts.kafkaIdle,
		}, logger)
		data, err := src.ReadAll(ctx)
		closeErr := src.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			logger.WithError(closeErr).Warn("closing kafka reader")
		}
		prefix = append(prefix, data)
	}

	var opener ingest.ObjectOpener
	if objects != nil {
		opener = objects
	}

	if len(opts.inputs) == 0 && len(prefix) > 0 {
		return io.NopCloser(bytes.NewReader(bytes.Join(prefix, nil))), nil
	}
	files, err := ingest.OpenAll(ctx, opts.inputs, opener)
	if err != nil {
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(bytes.Join(prefix, nil)), files), files}, nil
}

func openMeteoQuery(opts options) (ingest.OpenMeteoQuery, error) {
	start, err := time.Parse(time.DateOnly, opts.startDate)
	if err != nil {
		return ingest.OpenMeteoQuery{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, opts.endDate)
	if err != nil {
		return ingest.OpenMeteoQuery{}, fmt.Errorf("invalid --end: %w", err)
	}
	return ingest.OpenMeteoQuery{
		Latitude:  opts.latitude,
		Longitude: opts.longitude,
		Start:     start,
		End:       end,
		Timezone:  opts.timezone,
	}, nil
}

func writeOutput(ctx context.Context, target string, data []byte, objects *sources.S3Store, logger log.FieldLogger) error {
	loc, err := ingest.ParseLocation(target)
	if err != nil {
		return err
	}

	switch {
	case loc.Stdin:
		_, err := os.Stdout.Write(data)
		return err
	case loc.Bucket != "":
		runID, err := objects.WithBucket(loc.Bucket).Put(ctx, loc.Key, data, "text/plain; charset=utf-8")
		if err != nil {
			return err
		}
		logger.WithFields(log.Fields{"bucket": loc.Bucket, "key": loc.Key, "object_run_id": runID}).Info("output uploaded")
		return nil
	default:
		if err := os.WriteFile(loc.Path, data, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		logger.WithField("path", loc.Path).Info("output written")
		return nil
	}
}
