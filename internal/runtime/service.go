package runtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/msgflow/internal/runtime/clock"
	configpkg "github.com/drblury/msgflow/internal/runtime/config"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
	transportpkg "github.com/drblury/msgflow/transport"
)

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	// TransportRegistry resolves Config.PubSubSystem. Defaults to
	// transport.DefaultRegistry.
	TransportRegistry *transportpkg.Registry
	// Registry receives the Prometheus collectors when metrics are enabled.
	// A private registry is created when nil.
	Registry *prometheus.Registry
	// Tracer is used for correlator spans. Defaults to the global provider.
	Tracer trace.Tracer
	// Clock drives block timeouts, idle retirement and request expiry.
	Clock clock.Clock
}

// Service builds msgflow components from a shared Config and owns their
// lifecycle: forwarders and correlators it creates are closed by Close, and
// subscriber sources are run by Start.
type Service struct {
	Conf    *configpkg.Config
	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.Metrics

	registry *prometheus.Registry
	tracer   trace.Tracer
	clock    clock.Clock

	transports *transportpkg.Registry
	transport  transportpkg.Transport
	hasBridge  bool

	mu         sync.Mutex
	components []*ComponentInfo
	closers    []func(context.Context) error
	runners    []func(context.Context) error
	closed     bool
}

var serverShutdownTimeout = 5 * time.Second

// NewService constructs a Service for the supplied configuration and panics
// when it is invalid. Use TryNewService to handle the error instead.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService validates conf, registers metrics when enabled and builds the
// bridge transport when PubSubSystem is set.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	withDefaults := conf.WithDefaults()
	log.Info("Creating msgflow service", loggingpkg.LogFields{
		"pubsub_system": withDefaults.PubSubSystem,
		"config":        withDefaults.String(),
	})

	s := &Service{
		Conf:       &withDefaults,
		Logger:     log,
		registry:   deps.Registry,
		tracer:     deps.Tracer,
		clock:      clock.OrReal(deps.Clock),
		transports: deps.TransportRegistry,
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.transports == nil {
		s.transports = transportpkg.DefaultRegistry
	}

	if withDefaults.MetricsEnabled {
		s.Metrics = metricspkg.New(withDefaults.MetricsNamespace, s.registry)
		if err := s.Metrics.Register(); err != nil {
			return nil, err
		}
	}

	if withDefaults.PubSubSystem != "" {
		tr, err := s.transports.Build(ctx, s.Conf, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, err
		}
		s.transport = tr
		s.hasBridge = true
	}

	return s, nil
}

// Publisher returns the bridge publisher, or nil without a transport.
func (s *Service) Publisher() message.Publisher { return s.transport.Publisher }

// Subscriber returns the bridge subscriber, or nil without a transport.
func (s *Service) Subscriber() message.Subscriber { return s.transport.Subscriber }

// Capabilities reports what the configured transport guarantees.
func (s *Service) Capabilities() transportpkg.Capabilities {
	return s.transports.GetCapabilities(s.Conf.PubSubSystem)
}

func (s *Service) track(info *ComponentInfo, closer, runner func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, info)
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	if runner != nil {
		s.runners = append(s.runners, runner)
	}
	s.Logger.Debug("Component created", loggingpkg.LogFields{"component": info.Name, "kind": info.Kind})
}

// Start runs every subscriber source and, when AdminAddress is set, the admin
// HTTP server, until ctx ends or one of them fails.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	runners := append([]func(context.Context) error(nil), s.runners...)
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error { return run(ctx) })
	}
	if addr := s.Conf.AdminAddress; addr != "" {
		g.Go(func() error { return s.serveAdmin(ctx, addr) })
	}
	return g.Wait()
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting admin HTTP server", loggingpkg.LogFields{"address": addr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.Logger.Error("Admin HTTP server failed", err, loggingpkg.LogFields{"address": addr})
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Close closes every tracked forwarder and correlator in reverse creation
// order, then the transport. Forwarders drain their buffers until ctx ends.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i](ctx))
	}
	if s.hasBridge {
		errs = append(errs, s.transport.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		s.Logger.Error("Service closed with errors", err, nil)
	} else {
		s.Logger.Info("Service closed", nil)
	}
	return err
}
