package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/fitness-tracker/internal/sensor"
)

type scriptedFetcher struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
}

func (f *scriptedFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return kafka.Message{}, io.ErrClosedPipe
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *scriptedFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range msgs {
		f.committed = append(f.committed, msg.Offset)
	}
	return nil
}

type recordingArchive struct {
	mu          sync.Mutex
	samples     []sensor.RawSample
	metrics     []sensor.Metric
	categorical []sensor.CategoricalSample
}

func (r *recordingArchive) Record(_ context.Context, metric sensor.Metric, recordedAt time.Time, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, metric)
	r.samples = append(r.samples, sensor.RawSample{Timestamp: recordedAt, Value: value})
	return nil
}

func (r *recordingArchive) RecordCategorical(_ context.Context, metric sensor.Metric, recordedAt time.Time, value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, metric)
	r.categorical = append(r.categorical, sensor.CategoricalSample{Timestamp: recordedAt, Value: value})
	return nil
}

type recordingTrigger struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingTrigger) Trigger(_ context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func newTestConsumer(fetcher *scriptedFetcher, recorder Recorder, trigger CycleTrigger) *Consumer {
	return &Consumer{
		cfg:       ConsumerConfig{Brokers: []string{"test:9092"}, Topic: "sensor-samples", GroupID: "test"},
		fetcher:   fetcher,
		committer: fetcher,
		recorder:  recorder,
		trigger:   trigger,
		logger:    slog.New(slog.DiscardHandler),
		poll:      time.Second,
	}
}

func TestConsumerRun(t *testing.T) {
	t.Parallel()

	t.Run("records cumulative and categorical samples", func(t *testing.T) {
		t.Parallel()
		fetcher := &scriptedFetcher{messages: []kafka.Message{
			{Offset: 0, Value: []byte(`{"userId":"user-1","metric":"steps","value":120,"recordedAt":"2024-03-13T07:00:00Z"}`)},
			{Offset: 1, Value: []byte(`{"userId":"user-1","metric":"standHours","value":0,"recordedAt":"2024-03-13T08:00:00Z"}`)},
		}}
		archive := &recordingArchive{}
		trigger := &recordingTrigger{}
		consumer := newTestConsumer(fetcher, archive, trigger)

		if err := consumer.Run(context.Background()); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		if len(archive.samples) != 1 || archive.samples[0].Value != 120 {
			t.Fatalf("unexpected cumulative samples: %+v", archive.samples)
		}
		if len(archive.categorical) != 1 || archive.categorical[0].Value != sensor.StandHourStood {
			t.Fatalf("unexpected categorical samples: %+v", archive.categorical)
		}
		if len(trigger.users) != 2 || trigger.users[0] != "user-1" {
			t.Fatalf("unexpected triggers: %v", trigger.users)
		}
		if len(fetcher.committed) != 2 || fetcher.committed[1] != 1 {
			t.Fatalf("expected both offsets committed, got %v", fetcher.committed)
		}
	})

	t.Run("commits handled samples so a restart does not replay them", func(t *testing.T) {
		t.Parallel()
		fetcher := &scriptedFetcher{messages: []kafka.Message{
			{Offset: 7, Value: []byte(`{"userId":"user-1","metric":"steps","value":500,"recordedAt":"2024-03-13T09:00:00Z"}`)},
		}}
		archive := &recordingArchive{}
		consumer := newTestConsumer(fetcher, archive, nil)

		if err := consumer.Run(context.Background()); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		if len(fetcher.committed) != 1 || fetcher.committed[0] != 7 {
			t.Fatalf("expected offset 7 committed, got %v", fetcher.committed)
		}
	})

	t.Run("drops malformed messages without stopping", func(t *testing.T) {
		t.Parallel()
		fetcher := &scriptedFetcher{messages: []kafka.Message{
			{Offset: 0, Value: []byte(`not-json`)},
			{Offset: 1, Value: []byte(`{"metric":"mood","value":1,"recordedAt":"2024-03-13T07:00:00Z"}`)},
			{Offset: 2, Value: []byte(`{"userId":"user-2","metric":"calories","value":45,"recordedAt":"2024-03-13T07:30:00Z"}`)},
		}}
		archive := &recordingArchive{}
		trigger := &recordingTrigger{}
		consumer := newTestConsumer(fetcher, archive, trigger)

		if err := consumer.Run(context.Background()); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}

		if len(archive.metrics) != 1 || archive.metrics[0] != sensor.MetricCalories {
			t.Fatalf("expected only the valid sample, got %v", archive.metrics)
		}
		if len(trigger.users) != 1 || trigger.users[0] != "user-2" {
			t.Fatalf("unexpected triggers: %v", trigger.users)
		}
		if len(fetcher.committed) != 1 || fetcher.committed[0] != 2 {
			t.Fatalf("expected only the handled offset committed, got %v", fetcher.committed)
		}
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		consumer := newTestConsumer(&scriptedFetcher{}, &recordingArchive{}, nil)
		if err := consumer.Run(ctx); err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
