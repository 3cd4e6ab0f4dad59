package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/example/fitness-tracker/internal/calendar"
	"github.com/example/fitness-tracker/internal/sensor"
	"github.com/example/fitness-tracker/internal/store"
)

// ServiceFactory assists tests with constructing services using deterministic
// identifiers, clocks, and an in-memory document store.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Calculator  *calendar.Calculator
	Store       *store.MemoryStore
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Calculator:  calendar.NewCalculator(time.UTC),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Calculator == nil {
		factory.Calculator = calendar.NewCalculator(time.UTC)
	}
	if factory.Store == nil {
		factory.Store = store.NewMemoryStore(factory.Clock.NowFunc())
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithCalculator overrides the calendar calculator used by the factory.
func WithCalculator(calc *calendar.Calculator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Calculator = calc
	}
}

// ScriptedSource is a sensor source whose responses are scripted per metric.
// Unscripted metrics read as empty. It is safe for concurrent use.
type ScriptedSource struct {
	mu          sync.Mutex
	Samples     map[sensor.Metric][]sensor.RawSample
	Categorical map[sensor.Metric][]sensor.CategoricalSample
	Errors      map[sensor.Metric]error
	AuthErr     error
}

// NewScriptedSource returns an empty scripted source.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{
		Samples:     make(map[sensor.Metric][]sensor.RawSample),
		Categorical: make(map[sensor.Metric][]sensor.CategoricalSample),
		Errors:      make(map[sensor.Metric]error),
	}
}

// Script replaces the cumulative samples for a metric.
func (s *ScriptedSource) Script(metric sensor.Metric, samples []sensor.RawSample) {
	s.mu.Lock()
	s.Samples[metric] = samples
	s.mu.Unlock()
}

// ScriptCategorical replaces the categorical samples for a metric.
func (s *ScriptedSource) ScriptCategorical(metric sensor.Metric, samples []sensor.CategoricalSample) {
	s.mu.Lock()
	s.Categorical[metric] = samples
	s.mu.Unlock()
}

// Fail makes every query for the metric return err.
func (s *ScriptedSource) Fail(metric sensor.Metric, err error) {
	s.mu.Lock()
	s.Errors[metric] = err
	s.mu.Unlock()
}

func (s *ScriptedSource) Authorize(context.Context, []sensor.Scope) error {
	return s.AuthErr
}

func (s *ScriptedSource) QueryCumulative(ctx context.Context, metric sensor.Metric, start, end time.Time) (float64, error) {
	samples, err := s.rangeSamples(metric, start, end)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, sample := range samples {
		total += sample.Value
	}
	return total, nil
}

func (s *ScriptedSource) QueryCumulativeByInterval(ctx context.Context, metric sensor.Metric, start, end time.Time, _ sensor.IntervalUnit) ([]sensor.RawSample, error) {
	return s.rangeSamples(metric, start, end)
}

func (s *ScriptedSource) QueryCategoricalSamples(ctx context.Context, metric sensor.Metric, start, end time.Time) ([]sensor.CategoricalSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errors[metric]; err != nil {
		return nil, err
	}
	out := make([]sensor.CategoricalSample, 0)
	for _, sample := range s.Categorical[metric] {
		if !sample.Timestamp.Before(start) && sample.Timestamp.Before(end) {
			out = append(out, sample)
		}
	}
	return out, nil
}

func (s *ScriptedSource) rangeSamples(metric sensor.Metric, start, end time.Time) ([]sensor.RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errors[metric]; err != nil {
		return nil, err
	}
	out := make([]sensor.RawSample, 0)
	for _, sample := range s.Samples[metric] {
		if !sample.Timestamp.Before(start) && sample.Timestamp.Before(end) {
			out = append(out, sample)
		}
	}
	return out, nil
}
