package runtime

import (
	"context"

	"github.com/drblury/msgflow/internal/runtime/bridge"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	"github.com/drblury/msgflow/internal/runtime/forwarder"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	"github.com/drblury/msgflow/internal/runtime/queue"
	"github.com/drblury/msgflow/internal/runtime/rpc"
)

func (s *Service) queueOptions(name string) (queue.Options, error) {
	opts, err := queue.OptionsFromConfig(s.Conf.Queue)
	if err != nil {
		return queue.Options{}, err
	}
	opts.Name = name
	opts.Clock = s.clock
	opts.Metrics = s.Metrics
	return opts, nil
}

func (s *Service) forwarderOptions(name string, hooks []forwarder.WorkerHooks) forwarder.Options {
	opts := forwarder.OptionsFromConfig(s.Conf.Forwarder)
	opts.Name = name
	opts.Clock = s.clock
	opts.Logger = s.Logger
	opts.Metrics = s.Metrics
	opts.Hooks = forwarder.LoggingHooks(s.Logger)
	for _, h := range hooks {
		opts.Hooks = opts.Hooks.Merge(h)
	}
	return opts
}

// NewFanout creates a connection source owned by svc.
func NewFanout[M any](svc *Service, name string) (*fabric.Fanout[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name = idspkg.ComponentName(KindFanout, name)
	f := fabric.New[M](fabric.Options{Name: name, Logger: svc.Logger, Metrics: svc.Metrics})
	svc.track(&ComponentInfo{Name: name, Kind: KindFanout, stats: func() any {
		return FanoutStats{Subscribers: f.Len()}
	}}, nil, nil)
	return f, nil
}

// NewReceiver creates a FIFO receiver sized and configured by Config.Queue.
func NewReceiver[M any](svc *Service, name string) (*queue.Receiver[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name = idspkg.ComponentName(KindReceiver, name)
	opts, err := svc.queueOptions(name)
	if err != nil {
		return nil, err
	}
	r := queue.New[M](opts)
	svc.track(&ComponentInfo{Name: name, Kind: KindReceiver, stats: receiverStats[M](r)}, nil, nil)
	return r, nil
}

// NewPriorityReceiver creates a priority receiver configured by Config.Queue.
// less reports whether a has lower priority than b.
func NewPriorityReceiver[M any](svc *Service, name string, less func(a, b M) bool) (*queue.PriorityReceiver[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name = idspkg.ComponentName(KindPriorityReceiver, name)
	opts, err := svc.queueOptions(name)
	if err != nil {
		return nil, err
	}
	r, err := queue.NewPriority(less, opts)
	if err != nil {
		return nil, err
	}
	svc.track(&ComponentInfo{Name: name, Kind: KindPriorityReceiver, stats: receiverStats[M](r)}, nil, nil)
	return r, nil
}

// NewForwarder creates an active forwarder over a FIFO buffer. Its workers
// log through the service logger; extra hooks run after the logging hooks.
// Service.Close drains it.
func NewForwarder[M any](svc *Service, name string, hooks ...forwarder.WorkerHooks) (*forwarder.Forwarder[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name = idspkg.ComponentName(KindForwarder, name)
	qopts, err := svc.queueOptions(name)
	if err != nil {
		return nil, err
	}
	f, err := forwarder.NewQueue[M](qopts, svc.forwarderOptions(name, hooks))
	if err != nil {
		return nil, err
	}
	svc.trackForwarder(name, f.Stats, f.Close)
	return f, nil
}

// NewPriorityForwarder creates an active forwarder over a priority buffer.
func NewPriorityForwarder[M any](svc *Service, name string, less func(a, b M) bool, hooks ...forwarder.WorkerHooks) (*forwarder.Forwarder[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name = idspkg.ComponentName(KindForwarder, name)
	qopts, err := svc.queueOptions(name)
	if err != nil {
		return nil, err
	}
	f, err := forwarder.NewPriority[M](less, qopts, svc.forwarderOptions(name, hooks))
	if err != nil {
		return nil, err
	}
	svc.trackForwarder(name, f.Stats, f.Close)
	return f, nil
}

func (s *Service) trackForwarder(name string, stats func() forwarder.Stats, closeFn func(context.Context) error) {
	s.track(&ComponentInfo{Name: name, Kind: KindForwarder, stats: func() any { return stats() }}, closeFn, nil)
}

// NewCorrelator creates a request/reply correlator using
// Config.Correlator.DefaultTimeout. Service.Close fails its pending requests.
func NewCorrelator[Req, Resp any](svc *Service, name string) (*rpc.Correlator[Req, Resp], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name = idspkg.ComponentName(KindCorrelator, name)
	c := rpc.New[Req, Resp](rpc.Options{
		DefaultTimeout: svc.Conf.Correlator.DefaultTimeout,
		Clock:          svc.clock,
		Logger:         svc.Logger,
		Metrics:        svc.Metrics,
		Tracer:         svc.tracer,
		Name:           name,
	})
	svc.track(&ComponentInfo{Name: name, Kind: KindCorrelator, stats: func() any {
		return CorrelatorStats{Pending: c.Pending()}
	}}, func(context.Context) error { return c.Close() }, nil)
	return c, nil
}

// NewPublisherSink creates a sink that publishes to topic on the service
// transport.
func NewPublisherSink[M any](svc *Service, topic string, codec bridge.Codec[M]) (*bridge.PublisherSink[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	p, err := bridge.NewPublisherSink(svc.Publisher(), topic, codec, bridge.PublisherOptions{Logger: svc.Logger})
	if err != nil {
		return nil, err
	}
	svc.track(&ComponentInfo{Name: "publisher-" + topic, Kind: KindPublisher, Topic: topic}, nil, nil)
	return p, nil
}

// NewSubscriberSource creates a source fed by topic on the service transport.
// Service.Start runs it.
func NewSubscriberSource[M any](svc *Service, topic string, codec bridge.Codec[M]) (*bridge.SubscriberSource[M], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	name := "subscriber-" + topic
	src, err := bridge.NewSubscriberSource(svc.Subscriber(), topic, codec, bridge.SubscriberOptions{
		Name:    name,
		Logger:  svc.Logger.With(loggingpkg.LogFields{"component": name}),
		Metrics: svc.Metrics,
	})
	if err != nil {
		return nil, err
	}
	svc.track(&ComponentInfo{Name: name, Kind: KindSubscriber, Topic: topic, stats: func() any {
		return FanoutStats{Subscribers: src.Len()}
	}}, nil, src.Run)
	return src, nil
}
