package core

import (
	"context"
	"errors"
	"time"

	"doccore/pkg/domain"

	"github.com/google/uuid"
)

const defaultLoadConcurrency = 8

// Service opens unit-of-work sessions against a document store.
type Service struct {
	store           domain.DocumentStore
	serializer      domain.Serializer
	logger          Logger
	metrics         MetricsRecorder
	tracer          Tracer
	identityOpts    []IdentityMapOption
	loadConcurrency int
	newID           func() string
	closeHooks      []func() error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSerializer overrides the JSON serializer.
func WithSerializer(serializer domain.Serializer) ServiceOption {
	return func(s *Service) {
		if serializer != nil {
			s.serializer = serializer
		}
	}
}

// WithLogger wires a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder wires a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer wires a tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithExactlyOnceSessionLoads makes every session identity map share one
// loader invocation between concurrent first loads of a key.
func WithExactlyOnceSessionLoads() ServiceOption {
	return func(s *Service) {
		s.identityOpts = append(s.identityOpts, WithExactlyOnceLoads())
	}
}

// WithLoadConcurrency bounds the parallel fetches issued by LoadMany.
func WithLoadConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.loadConcurrency = n
		}
	}
}

// WithIDGenerator overrides the UUID generator used for new documents.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCloseHook registers fn to run after the store is closed, for exporters
// that flush on shutdown.
func WithCloseHook(fn func() error) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.closeHooks = append(s.closeHooks, fn)
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.DocumentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		serializer:      JSONSerializer{},
		logger:          noopLogger{},
		metrics:         noopMetrics{},
		tracer:          noopTracer{},
		loadConcurrency: defaultLoadConcurrency,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore {
	return s.store
}

// Close releases the underlying document store, then runs the close hooks.
func (s *Service) Close() error {
	errs := []error{s.store.Close()}
	for _, hook := range s.closeHooks {
		errs = append(errs, hook())
	}
	return errors.Join(errs...)
}

// OpenSession starts a unit of work with its own identity map.
func (s *Service) OpenSession() *Session {
	return &Session{
		svc:      s,
		identity: NewIdentityMap(s.serializer, s.identityOpts...),
		tracked:  make(map[docKey]*trackedDoc),
		deletes:  make(map[docKey]struct{}),
	}
}

func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	span.End(err)
	if err != nil {
		s.logger.Debug("session operation failed", "operation", operation, "error", err)
	}
	return err
}
