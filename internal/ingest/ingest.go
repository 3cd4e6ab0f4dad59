package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/fitness-tracker/internal/sensor"
)

// ConsumerConfig captures the runtime tunables for the sample stream.
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// sampleMessage is the wire format of one sensor sample on the stream.
type sampleMessage struct {
	UserID     string  `json:"userId"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	RecordedAt string  `json:"recordedAt"`
}

// Recorder persists incoming samples into the local sensor archive.
type Recorder interface {
	Record(ctx context.Context, metric sensor.Metric, recordedAt time.Time, value float64) error
	RecordCategorical(ctx context.Context, metric sensor.Metric, recordedAt time.Time, value int) error
}

// CycleTrigger refreshes a user's aggregates after new samples arrive.
// Overlapping triggers for the same user are coalesced downstream, so firing
// once per message is cheap.
type CycleTrigger interface {
	Trigger(ctx context.Context, userID string)
}

// messageFetcher captures the read capability of the Kafka reader so tests
// can script message sequences.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

// messageCommitter acknowledges consumed messages so the group offset
// advances. Without the commit a restart would replay the whole topic into
// the append-only archive and inflate every total.
type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer streams sensor samples from Kafka into the local archive.
type Consumer struct {
	cfg       ConsumerConfig
	reader    *kafka.Reader
	fetcher   messageFetcher
	committer messageCommitter
	recorder  Recorder
	trigger   CycleTrigger
	logger    *slog.Logger
	poll      time.Duration
}

// NewConsumer builds a Kafka reader for the sample topic.
func NewConsumer(cfg ConsumerConfig, recorder Recorder, trigger CycleTrigger, logger *slog.Logger) (*Consumer, error) {
	if recorder == nil {
		return nil, errors.New("ingest: recorder must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("ingest: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("ingest: topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("ingest: consumer group must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	return &Consumer{
		cfg:       cfg,
		reader:    reader,
		fetcher:   reader,
		committer: reader,
		recorder:  recorder,
		trigger:   trigger,
		logger:    logger,
		poll:      poll,
	}, nil
}

// Close shuts down the underlying Kafka reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until the context is cancelled or the reader is closed,
// recording samples and triggering refresh cycles.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("ingest: nil consumer")
	}

	c.logger.InfoContext(ctx, "sample consumer started",
		"topic", c.cfg.Topic,
		"group", c.cfg.GroupID,
		"brokers", strings.Join(c.cfg.Brokers, ","),
	)
	defer c.logger.Info("sample consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.logger.ErrorContext(ctx, "sample fetch failed", "error", err)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// Dropped messages are not committed; a later successful commit
			// advances the group offset past them.
			c.logger.WarnContext(ctx, "sample message dropped", "error", err, "offset", msg.Offset)
			continue
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.committer.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.logger.ErrorContext(ctx, "sample commit failed", "error", err, "offset", msg.Offset)
			}
		}
		commitCancel()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var payload sampleMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}

	metric, err := sensor.ParseMetric(payload.Metric)
	if err != nil {
		return err
	}
	recordedAt, err := time.Parse(time.RFC3339, payload.RecordedAt)
	if err != nil {
		return fmt.Errorf("parse recordedAt: %w", err)
	}

	if metric == sensor.MetricStandHours {
		err = c.recorder.RecordCategorical(ctx, metric, recordedAt, int(payload.Value))
	} else {
		err = c.recorder.Record(ctx, metric, recordedAt, payload.Value)
	}
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}

	if c.trigger != nil && payload.UserID != "" {
		c.trigger.Trigger(ctx, payload.UserID)
	}
	return nil
}
