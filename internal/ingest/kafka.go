package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const defaultIdleTimeout = 5 * time.Second

// messageReader is the subset of *kafkago.Reader used by KafkaSource.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig selects the topic observation lines are consumed from.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MaxMessages int           // 0 reads until idle
	IdleTimeout time.Duration // stop after this long without a message
}

// KafkaSource drains observation lines from a Kafka topic.
type KafkaSource struct {
	cfg    KafkaConfig
	reader messageReader
	logger log.FieldLogger
}

func NewKafkaSource(cfg KafkaConfig, logger log.FieldLogger) *KafkaSource {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaSource(cfg, r, logger)
}

func newKafkaSource(cfg KafkaConfig, r messageReader, logger log.FieldLogger) *KafkaSource {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &KafkaSource{
		cfg:    cfg,
		reader: r,
		logger: logger.WithFields(log.Fields{"source": "kafka", "topic": cfg.Topic}),
	}
}

// ReadAll consumes messages until MaxMessages is reached or the topic stays
// idle for IdleTimeout, commits them when a group is configured, and returns
// their values as newline-separated lines.
func (k *KafkaSource) ReadAll(ctx context.Context) ([]byte, error) {
	var (
		buf  bytes.Buffer
		msgs []kafkago.Message
	)
	for k.cfg.MaxMessages <= 0 || len(msgs) < k.cfg.MaxMessages {
		fetchCtx, cancel := context.WithTimeout(ctx, k.cfg.IdleTimeout)
		msg, err := k.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				k.logger.WithField("messages", len(msgs)).Debug("topic idle, stopping")
				break
			}
			return nil, fmt.Errorf("fetch kafka message: %w", err)
		}

		buf.Write(bytes.TrimRight(msg.Value, "\r\n"))
		buf.WriteByte('\n')
		msgs = append(msgs, msg)
	}

	if k.cfg.GroupID != "" && len(msgs) > 0 {
		if err := k.reader.CommitMessages(ctx, msgs...); err != nil {
			return nil, fmt.Errorf("commit kafka offsets: %w", err)
		}
	}

	k.logger.WithField("messages", len(msgs)).Info("consumed observation lines")
	return buf.Bytes(), nil
}

func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
